package models

import (
	"testing"
	"time"

	"github.com/BearBump/ParkBox/internal/billing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newActive(t *testing.T) *Transaction {
	t.Helper()
	tx := &Transaction{
		VehicleID:           1,
		CustomerID:          2,
		SpaceID:             3,
		ZoneID:              4,
		EntryDocumentTypeID: 1,
		EntryDocumentNumber: "12345678",
	}
	tx.SnapshotRate(&Rate{ID: 9, Amount: decimal.RequireFromString("5.00"), Active: true})
	tx.RecordEntry(77, t0)
	return tx
}

func TestTransaction_RecordEntry(t *testing.T) {
	tx := newActive(t)
	require.Equal(t, TransactionActive, tx.Status)
	require.Equal(t, PaymentPending, tx.PaymentStatus)
	require.Equal(t, t0, tx.EntryTime)
	require.Nil(t, tx.ExitTime)
	require.Equal(t, uint64(77), *tx.EntryOperatorID)
	require.Equal(t, CaptureManual, tx.EntryMethod)
	require.Equal(t, DefaultCurrency, tx.Currency)
	require.Equal(t, uint64(9), tx.RateID)
}

func TestTransaction_RecordExit(t *testing.T) {
	tx := newActive(t)
	require.NoError(t, tx.RecordExit(1, " 12345678 ", 78, t0.Add(90*time.Minute+40*time.Second)))
	require.Equal(t, TransactionCompleted, tx.Status)
	require.NotNil(t, tx.ExitTime)
	require.Equal(t, 90, *tx.DurationMinutes)
	require.True(t, tx.VerifyDocumentMatch())

	require.NoError(t, tx.CalculateAmount())
	require.True(t, tx.TotalAmount.Decimal.Equal(decimal.RequireFromString("7.50")))
	require.True(t, tx.CalculatedAmount.Decimal.Equal(tx.TotalAmount.Decimal))

	// второй выезд запрещён
	require.ErrorIs(t, tx.RecordExit(1, "12345678", 78, t0.Add(2*time.Hour)), ErrInvalidTransition)
}

func TestTransaction_VerifyDocumentMatch(t *testing.T) {
	cases := []struct {
		name   string
		typeID uint64
		number string
		want   bool
	}{
		{"same", 1, "12345678", true},
		{"case and spaces", 1, " 12345678", true},
		{"other number", 1, "99999999", false},
		{"other type", 2, "12345678", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := newActive(t)
			require.NoError(t, tx.RecordExit(tc.typeID, tc.number, 1, t0.Add(time.Minute)))
			require.Equal(t, tc.want, tx.VerifyDocumentMatch())
		})
	}

	require.False(t, newActive(t).VerifyDocumentMatch())
}

func TestTransaction_RoundTripIsFree(t *testing.T) {
	tx := newActive(t)
	require.NoError(t, tx.RecordExit(1, "12345678", 1, t0.Add(20*time.Second)))
	require.NoError(t, tx.CalculateAmount())
	require.Equal(t, 0, *tx.DurationMinutes)
	require.True(t, tx.TotalAmount.Decimal.IsZero())
}

func TestTransaction_CalculateAmountBeforeExit(t *testing.T) {
	require.ErrorIs(t, newActive(t).CalculateAmount(), ErrInvalidTransition)
}

func TestTransaction_HourlyCeilingSnapshot(t *testing.T) {
	tx := newActive(t)
	tx.BillingPolicy = billing.PolicyHourlyCeiling
	require.NoError(t, tx.RecordExit(1, "12345678", 1, t0.Add(61*time.Minute)))
	require.NoError(t, tx.CalculateAmount())
	require.True(t, tx.TotalAmount.Decimal.Equal(decimal.RequireFromString("10.00")))
}

func TestTransaction_PaymentTransitions(t *testing.T) {
	tx := newActive(t)
	require.ErrorIs(t, tx.MarkAsPaid(t0), ErrInvalidTransition)
	require.ErrorIs(t, tx.MarkAsOverdue(t0), ErrInvalidTransition)

	require.NoError(t, tx.RecordExit(1, "12345678", 1, t0.Add(time.Hour)))
	require.NoError(t, tx.CalculateAmount())
	require.NoError(t, tx.MarkAsPaid(t0.Add(time.Hour)))
	require.Equal(t, PaymentPaid, tx.PaymentStatus)

	require.ErrorIs(t, tx.MarkAsOverdue(t0), ErrInvalidTransition)
	require.ErrorIs(t, tx.MarkAsPaid(t0), ErrInvalidTransition)

	other := newActive(t)
	require.NoError(t, other.RecordExit(1, "12345678", 1, t0.Add(time.Hour)))
	require.NoError(t, other.MarkAsOverdue(t0.Add(time.Hour)))
	require.Equal(t, PaymentOverdue, other.PaymentStatus)
	require.ErrorIs(t, other.MarkAsPaid(t0), ErrInvalidTransition)
}

func TestTransaction_ApplyDiscount(t *testing.T) {
	tx := newActive(t)
	require.ErrorIs(t, tx.ApplyDiscount(decimal.NewFromInt(1), t0), ErrInvalidTransition)

	require.NoError(t, tx.RecordExit(1, "12345678", 1, t0.Add(2*time.Hour)))
	require.NoError(t, tx.CalculateAmount())
	require.ErrorIs(t, tx.ApplyDiscount(decimal.NewFromInt(-1), t0), ErrInvalidTransition)

	require.NoError(t, tx.ApplyDiscount(decimal.RequireFromString("2.50"), t0))
	require.True(t, tx.TotalAmount.Decimal.Equal(decimal.RequireFromString("7.50")))
	require.True(t, tx.CalculatedAmount.Decimal.Equal(decimal.RequireFromString("10.00")))

	require.NoError(t, tx.ApplyDiscount(decimal.NewFromInt(50), t0))
	require.True(t, tx.TotalAmount.Decimal.IsZero())
}

func TestTransaction_Cancel(t *testing.T) {
	tx := newActive(t)
	require.NoError(t, tx.Cancel(" wrong plate ", 5, t0.Add(time.Minute)))
	require.Equal(t, TransactionCancelled, tx.Status)
	require.NotNil(t, tx.ExitTime)
	require.Equal(t, "wrong plate", *tx.CancellationReason)
	require.ErrorIs(t, tx.Cancel("again", 5, t0), ErrInvalidTransition)
	require.ErrorIs(t, tx.RecordExit(1, "12345678", 1, t0), ErrInvalidTransition)
}

func TestTransaction_ResolveMismatch(t *testing.T) {
	tx := newActive(t)
	require.NoError(t, tx.RecordExit(1, "99999999", 1, t0.Add(30*time.Minute)))
	require.False(t, tx.VerifyDocumentMatch())
	tx.FlagDocumentMismatch(t0.Add(30 * time.Minute))
	require.True(t, tx.MismatchUnresolved())
	require.False(t, tx.TotalAmount.Valid)

	require.NoError(t, tx.ResolveMismatch(3, t0.Add(40*time.Minute)))
	require.False(t, tx.MismatchUnresolved())
	require.True(t, tx.DocumentMismatch)
	require.Equal(t, uint64(3), *tx.MismatchResolvedBy)
	require.True(t, tx.TotalAmount.Decimal.Equal(decimal.RequireFromString("2.50")))

	require.ErrorIs(t, tx.ResolveMismatch(3, t0), ErrInvalidTransition)
}

func TestTransaction_NotesAndReceipt(t *testing.T) {
	tx := newActive(t)
	tx.AppendNotes("  ", t0)
	require.Nil(t, tx.Notes)
	tx.AppendNotes("entry note", t0)
	tx.AppendNotes("exit note", t0)
	require.Equal(t, "entry note | exit note", *tx.Notes)

	tx.MarkReceiptSent(t0)
	require.True(t, tx.ReceiptSent)
	require.Equal(t, ReceiptPending, *tx.ReceiptEmailStatus)
	require.NoError(t, tx.SetReceiptStatus(ReceiptChannelWhatsApp, ReceiptDelivered, t0))
	require.Equal(t, ReceiptDelivered, *tx.ReceiptWhatsAppStatus)
	require.ErrorIs(t, tx.SetReceiptStatus("SMS", ReceiptSent, t0), ErrInvalidTransition)
}

func TestTransaction_LiveProjection(t *testing.T) {
	tx := newActive(t)
	now := t0.Add(481 * time.Minute)
	require.Equal(t, 481, tx.ElapsedMinutes(now))
	require.True(t, tx.IsOverdueStay(now, 480))
	require.False(t, tx.IsOverdueStay(t0.Add(480*time.Minute), 480))
	require.True(t, tx.IsOverdueStay(t0.Add(480*time.Minute+30*time.Second), 480))
	require.True(t, tx.EstimatedAmount(t0.Add(30*time.Minute)).Equal(decimal.RequireFromString("2.50")))
	require.Nil(t, tx.DurationMinutes)
	require.False(t, tx.TotalAmount.Valid)

	require.Equal(t, 0, tx.ElapsedMinutes(t0.Add(-time.Hour)))
}

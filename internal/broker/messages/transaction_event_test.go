package messages

import (
	"testing"
	"time"

	"github.com/BearBump/ParkBox/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionEvent(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	d := 45
	tx := &models.Transaction{
		ID:              15,
		Status:          models.TransactionCompleted,
		PaymentStatus:   models.PaymentPending,
		LicensePlate:    "ABC-123",
		ZoneID:          2,
		SpaceID:         7,
		DurationMinutes: &d,
		TotalAmount:     decimal.NewNullDecimal(decimal.RequireFromString("3.75")),
		Currency:        "PEN",
	}

	ev := NewTransactionEvent(EventExitRecorded, tx, now)
	_, err := uuid.Parse(ev.EventID)
	require.NoError(t, err)
	require.Equal(t, EventExitRecorded, ev.Type)
	require.Equal(t, "COMPLETED", ev.Status)
	require.Equal(t, "3.75", *ev.TotalAmount)
	require.Equal(t, 45, *ev.DurationMinutes)
	require.Equal(t, []byte("15"), ev.Key())

	other := NewTransactionEvent(EventExitRecorded, tx, now)
	require.NotEqual(t, ev.EventID, other.EventID)
}

func TestNewTransactionEvent_NoAmountWhileActive(t *testing.T) {
	ev := NewTransactionEvent(EventEntryRecorded, &models.Transaction{ID: 1, Status: models.TransactionActive}, time.Now())
	require.Nil(t, ev.TotalAmount)
	require.Nil(t, ev.DurationMinutes)
}

package models

import (
	"strings"
	"time"

	"github.com/BearBump/ParkBox/internal/billing"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionActive    TransactionStatus = "ACTIVE"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentOverdue PaymentStatus = "OVERDUE"
)

// CaptureMethod describes how a plate was captured at the gate.
type CaptureMethod string

const (
	CaptureManual   CaptureMethod = "MANUAL"
	CaptureCameraAI CaptureMethod = "CAMERA_AI"
	CaptureSensor   CaptureMethod = "SENSOR"
)

// Статусы доставки квитанции по каналам.
const (
	ReceiptPending   = "PENDING"
	ReceiptSent      = "SENT"
	ReceiptDelivered = "DELIVERED"
	ReceiptFailed    = "FAILED"
)

const (
	ReceiptChannelWhatsApp = "WHATSAPP"
	ReceiptChannelEmail    = "EMAIL"
)

type Transaction struct {
	ID         uint64
	VehicleID  uint64
	CustomerID uint64
	SpaceID    uint64
	ZoneID     uint64
	RateID     uint64

	// Снимок тарифа на момент въезда: правка тарифа не меняет открытые транзакции.
	RateAmount    decimal.Decimal
	Currency      string
	BillingPolicy billing.Policy

	EntryDocumentTypeID uint64
	EntryDocumentNumber string
	ExitDocumentTypeID  *uint64
	ExitDocumentNumber  *string

	EntryTime       time.Time
	ExitTime        *time.Time
	DurationMinutes *int

	CalculatedAmount decimal.NullDecimal
	DiscountAmount   decimal.Decimal
	TotalAmount      decimal.NullDecimal

	Status        TransactionStatus
	PaymentStatus PaymentStatus

	EntryOperatorID      *uint64
	ExitOperatorID       *uint64
	EntryMethod          CaptureMethod
	ExitMethod           *CaptureMethod
	EntryPhotoURL        *string
	ExitPhotoURL         *string
	EntryPlateConfidence *float64
	ExitPlateConfidence  *float64
	Notes                *string

	CancellationReason *string
	CancelledBy        *uint64

	DocumentMismatch   bool
	MismatchResolvedAt *time.Time
	MismatchResolvedBy *uint64

	ReceiptSent           bool
	ReceiptSentAt         *time.Time
	ReceiptWhatsAppStatus *string
	ReceiptEmailStatus    *string

	OverdueAlertedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Заполняются join'ами при чтении, в БД транзакции не пишутся.
	LicensePlate string
	CustomerName string
	ZoneName     string
	ZoneCode     string
	SpaceCode    string
	RateName     string
}

func (t *Transaction) IsActive() bool {
	return t.Status == TransactionActive
}

func (t *Transaction) IsCompleted() bool {
	return t.Status == TransactionCompleted
}

// AwaitingPayment reports COMPLETED with payment still PENDING.
func (t *Transaction) AwaitingPayment() bool {
	return t.Status == TransactionCompleted && t.PaymentStatus == PaymentPending
}

// MismatchUnresolved reports an exit whose documents did not match and that no operator has cleared yet.
func (t *Transaction) MismatchUnresolved() bool {
	return t.DocumentMismatch && t.MismatchResolvedAt == nil
}

// SnapshotRate binds the price basis used for the whole stay.
func (t *Transaction) SnapshotRate(r *Rate) {
	t.RateID = r.ID
	t.RateAmount = r.Amount
	t.Currency = r.Currency
	if t.Currency == "" {
		t.Currency = DefaultCurrency
	}
	t.BillingPolicy = r.BillingPolicy
}

func (t *Transaction) RecordEntry(operatorID uint64, now time.Time) {
	t.EntryOperatorID = &operatorID
	t.EntryTime = now
	t.Status = TransactionActive
	t.PaymentStatus = PaymentPending
	if t.EntryMethod == "" {
		t.EntryMethod = CaptureManual
	}
	t.CreatedAt = now
	t.UpdatedAt = now
}

// RecordExit closes the stay and fixes its duration in whole minutes.
func (t *Transaction) RecordExit(docTypeID uint64, docNumber string, operatorID uint64, now time.Time) error {
	if !t.IsActive() {
		return ErrInvalidTransition
	}
	num := NormalizeDocument(docNumber)
	t.ExitDocumentTypeID = &docTypeID
	t.ExitDocumentNumber = &num
	t.ExitOperatorID = &operatorID
	t.ExitTime = &now
	t.Status = TransactionCompleted
	d := int(now.Sub(t.EntryTime) / time.Minute)
	if d < 0 {
		d = 0
	}
	t.DurationMinutes = &d
	t.UpdatedAt = now
	return nil
}

func (t *Transaction) VerifyDocumentMatch() bool {
	if t.ExitDocumentTypeID == nil || t.ExitDocumentNumber == nil {
		return false
	}
	return *t.ExitDocumentTypeID == t.EntryDocumentTypeID &&
		NormalizeDocument(*t.ExitDocumentNumber) == NormalizeDocument(t.EntryDocumentNumber)
}

// CalculateAmount prices the recorded duration with the snapshotted rate.
func (t *Transaction) CalculateAmount() error {
	if t.DurationMinutes == nil {
		return ErrInvalidTransition
	}
	calc := billing.Calculate(t.BillingPolicy, t.RateAmount, *t.DurationMinutes)
	t.CalculatedAmount = decimal.NewNullDecimal(calc)
	t.TotalAmount = decimal.NewNullDecimal(billing.ApplyDiscount(calc, t.DiscountAmount))
	return nil
}

func (t *Transaction) ApplyDiscount(discount decimal.Decimal, now time.Time) error {
	if !t.AwaitingPayment() || !t.CalculatedAmount.Valid || discount.IsNegative() {
		return ErrInvalidTransition
	}
	t.DiscountAmount = discount
	t.TotalAmount = decimal.NewNullDecimal(billing.ApplyDiscount(t.CalculatedAmount.Decimal, discount))
	t.UpdatedAt = now
	return nil
}

func (t *Transaction) MarkAsPaid(now time.Time) error {
	if !t.AwaitingPayment() {
		return ErrInvalidTransition
	}
	t.PaymentStatus = PaymentPaid
	t.UpdatedAt = now
	return nil
}

func (t *Transaction) MarkAsOverdue(now time.Time) error {
	if !t.AwaitingPayment() {
		return ErrInvalidTransition
	}
	t.PaymentStatus = PaymentOverdue
	t.UpdatedAt = now
	return nil
}

// Cancel aborts an ACTIVE stay. The exit time is stamped so that only ACTIVE rows have none.
func (t *Transaction) Cancel(reason string, by uint64, now time.Time) error {
	if !t.IsActive() {
		return ErrInvalidTransition
	}
	t.Status = TransactionCancelled
	t.ExitTime = &now
	r := strings.TrimSpace(reason)
	t.CancellationReason = &r
	t.CancelledBy = &by
	t.UpdatedAt = now
	return nil
}

func (t *Transaction) FlagDocumentMismatch(now time.Time) {
	t.DocumentMismatch = true
	t.UpdatedAt = now
}

// ResolveMismatch records the operator override and prices the stay.
func (t *Transaction) ResolveMismatch(by uint64, now time.Time) error {
	if !t.IsCompleted() || !t.MismatchUnresolved() {
		return ErrInvalidTransition
	}
	t.MismatchResolvedAt = &now
	t.MismatchResolvedBy = &by
	t.UpdatedAt = now
	return t.CalculateAmount()
}

func (t *Transaction) AppendNotes(notes string, now time.Time) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return
	}
	if t.Notes == nil || *t.Notes == "" {
		t.Notes = &notes
	} else {
		joined := *t.Notes + " | " + notes
		t.Notes = &joined
	}
	t.UpdatedAt = now
}

// MarkReceiptSent queues the receipt on every channel.
func (t *Transaction) MarkReceiptSent(now time.Time) {
	t.ReceiptSent = true
	t.ReceiptSentAt = &now
	wa, em := ReceiptPending, ReceiptPending
	t.ReceiptWhatsAppStatus = &wa
	t.ReceiptEmailStatus = &em
	t.UpdatedAt = now
}

func (t *Transaction) SetReceiptStatus(channel, status string, now time.Time) error {
	switch channel {
	case ReceiptChannelWhatsApp:
		t.ReceiptWhatsAppStatus = &status
	case ReceiptChannelEmail:
		t.ReceiptEmailStatus = &status
	default:
		return ErrInvalidTransition
	}
	t.UpdatedAt = now
	return nil
}

// ElapsedMinutes is the live duration for ACTIVE stays and the recorded one otherwise.
func (t *Transaction) ElapsedMinutes(now time.Time) int {
	if t.DurationMinutes != nil {
		return *t.DurationMinutes
	}
	end := now
	if t.ExitTime != nil {
		end = *t.ExitTime
	}
	d := int(end.Sub(t.EntryTime) / time.Minute)
	if d < 0 {
		return 0
	}
	return d
}

// EstimatedAmount prices the stay as if it ended now. It never mutates t.
func (t *Transaction) EstimatedAmount(now time.Time) decimal.Decimal {
	return billing.Calculate(t.BillingPolicy, t.RateAmount, t.ElapsedMinutes(now))
}

// IsOverdueStay compares exact time, the same cutoff the overdue listing and sweep use.
func (t *Transaction) IsOverdueStay(now time.Time, maxMinutes int) bool {
	return t.IsActive() && now.Sub(t.EntryTime) > time.Duration(maxMinutes)*time.Minute
}

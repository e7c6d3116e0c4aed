package messages

import (
	"strconv"
	"time"

	"github.com/BearBump/ParkBox/internal/models"
	"github.com/google/uuid"
)

type EventType string

const (
	EventEntryRecorded        EventType = "ENTRY_RECORDED"
	EventExitRecorded         EventType = "EXIT_RECORDED"
	EventDocumentMismatch     EventType = "DOCUMENT_MISMATCH"
	EventMismatchResolved     EventType = "MISMATCH_RESOLVED"
	EventPaymentProcessed     EventType = "PAYMENT_PROCESSED"
	EventPaymentRefunded      EventType = "PAYMENT_REFUNDED"
	EventPaymentOverdue       EventType = "PAYMENT_OVERDUE"
	EventDiscountApplied      EventType = "DISCOUNT_APPLIED"
	EventTransactionCancelled EventType = "TRANSACTION_CANCELLED"
	EventStayOverdue          EventType = "STAY_OVERDUE"
)

// TransactionEvent is published on the transaction-events topic after a change commits.
// Consumers dedupe on EventID.
type TransactionEvent struct {
	EventID       string    `json:"event_id"`
	Type          EventType `json:"type"`
	OccurredAt    time.Time `json:"occurred_at"`
	TransactionID uint64    `json:"transaction_id"`

	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	LicensePlate  string `json:"license_plate,omitempty"`
	ZoneID        uint64 `json:"zone_id"`
	SpaceID       uint64 `json:"space_id"`

	DurationMinutes *int    `json:"duration_minutes,omitempty"`
	TotalAmount     *string `json:"total_amount,omitempty"`
	Currency        string  `json:"currency,omitempty"`
	ReceiptSent     bool    `json:"receipt_sent,omitempty"`
}

func NewTransactionEvent(typ EventType, tx *models.Transaction, now time.Time) TransactionEvent {
	ev := TransactionEvent{
		EventID:         uuid.NewString(),
		Type:            typ,
		OccurredAt:      now,
		TransactionID:   tx.ID,
		Status:          string(tx.Status),
		PaymentStatus:   string(tx.PaymentStatus),
		LicensePlate:    tx.LicensePlate,
		ZoneID:          tx.ZoneID,
		SpaceID:         tx.SpaceID,
		DurationMinutes: tx.DurationMinutes,
		Currency:        tx.Currency,
		ReceiptSent:     tx.ReceiptSent,
	}
	if tx.TotalAmount.Valid {
		s := tx.TotalAmount.Decimal.StringFixed(2)
		ev.TotalAmount = &s
	}
	return ev
}

// Key groups all events of one transaction on one partition.
func (e TransactionEvent) Key() []byte {
	return []byte(strconv.FormatUint(e.TransactionID, 10))
}

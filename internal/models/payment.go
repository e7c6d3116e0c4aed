package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentRecordStatus string

const (
	PaymentCompleted PaymentRecordStatus = "COMPLETED"
	PaymentRefunded  PaymentRecordStatus = "REFUNDED"
	PaymentCancelled PaymentRecordStatus = "CANCELLED"
)

type Payment struct {
	ID              uint64
	TransactionID   uint64
	PaymentTypeID   uint64
	Amount          decimal.Decimal
	Currency        string
	PaymentDate     time.Time
	ReferenceNumber *string
	OperatorID      uint64
	Status          PaymentRecordStatus
	RefundAmount    decimal.NullDecimal
	RefundDate      *time.Time
	RefundReason    *string
	RefundedBy      *uint64
	Notes           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func NewPayment(transactionID, paymentTypeID uint64, amount decimal.Decimal, currency string, operatorID uint64, now time.Time) *Payment {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Payment{
		TransactionID: transactionID,
		PaymentTypeID: paymentTypeID,
		Amount:        amount,
		Currency:      currency,
		PaymentDate:   now,
		OperatorID:    operatorID,
		Status:        PaymentCompleted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Refund returns all or part of a completed payment.
func (p *Payment) Refund(amount decimal.Decimal, reason string, by uint64, now time.Time) error {
	if p.Status != PaymentCompleted || !amount.IsPositive() || amount.GreaterThan(p.Amount) {
		return ErrInvalidTransition
	}
	r := strings.TrimSpace(reason)
	p.Status = PaymentRefunded
	p.RefundAmount = decimal.NewNullDecimal(amount)
	p.RefundDate = &now
	p.RefundReason = &r
	p.RefundedBy = &by
	p.UpdatedAt = now
	return nil
}

func (p *Payment) Cancel(now time.Time) error {
	if p.Status != PaymentCompleted {
		return ErrInvalidTransition
	}
	p.Status = PaymentCancelled
	p.UpdatedAt = now
	return nil
}

func (p *Payment) IsPartialRefund() bool {
	return p.Status == PaymentRefunded && p.RefundAmount.Valid && p.RefundAmount.Decimal.LessThan(p.Amount)
}

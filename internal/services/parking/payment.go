package parking

import (
	"context"
	"strings"

	"github.com/BearBump/ParkBox/internal/broker/messages"
	"github.com/BearBump/ParkBox/internal/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type PaymentCommand struct {
	TransactionID   uint64
	PaymentTypeID   uint64
	AmountPaid      decimal.Decimal
	OperatorID      uint64
	ReferenceNumber string
	Notes           string

	// SendReceipt queues the receipt on every channel (delivery is handled elsewhere).
	SendReceipt bool
}

// ProcessPayment settles a COMPLETED+PENDING stay. Stays with an unresolved document
// mismatch cannot be paid.
func (s *Service) ProcessPayment(ctx context.Context, cmd PaymentCommand) (*TransactionView, error) {
	switch {
	case cmd.TransactionID == 0:
		return nil, invalidInput("transaction id is required")
	case cmd.PaymentTypeID == 0:
		return nil, invalidInput("payment type is required")
	case cmd.AmountPaid.IsNegative():
		return nil, invalidInput("amount paid must not be negative")
	}
	now := s.clock.Now()

	var (
		paid    *models.Transaction
		payment *models.Payment
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, st Store) error {
		tx, err := st.GetTransactionForUpdate(ctx, cmd.TransactionID)
		if err != nil {
			return notFound(err, "transaction", cmd.TransactionID)
		}
		if !tx.AwaitingPayment() || tx.MismatchUnresolved() || !tx.TotalAmount.Valid {
			return invalidState(tx, "process payment")
		}
		if cmd.AmountPaid.LessThan(tx.TotalAmount.Decimal) {
			return &InsufficientAmountError{Required: tx.TotalAmount.Decimal, Paid: cmd.AmountPaid}
		}

		p := models.NewPayment(tx.ID, cmd.PaymentTypeID, cmd.AmountPaid, tx.Currency, cmd.OperatorID, now)
		p.ReferenceNumber = trimmed(cmd.ReferenceNumber)
		p.Notes = trimmed(cmd.Notes)
		if err := st.InsertPayment(ctx, p); err != nil {
			if errors.Is(err, models.ErrConflict) {
				return invalidState(tx, "process payment")
			}
			return err
		}

		if err := tx.MarkAsPaid(now); err != nil {
			return invalidState(tx, "process payment")
		}
		if cmd.SendReceipt {
			tx.MarkReceiptSent(now)
		}
		if err := st.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
		paid, payment = tx, p
		return nil
	})
	s.metrics.Operation("process_payment", err)
	if err != nil {
		return nil, err
	}
	s.log.Info("payment processed",
		"transaction_id", paid.ID, "payment_id", payment.ID, "amount", payment.Amount.StringFixed(2), "currency", payment.Currency)
	return s.afterCommit(ctx, messages.EventPaymentProcessed, paid, payment), nil
}

// ApplyDiscount lowers the total of a stay that is still awaiting payment. The total never goes below zero.
func (s *Service) ApplyDiscount(ctx context.Context, transactionID uint64, discount decimal.Decimal, operatorID uint64, reason string) (*TransactionView, error) {
	switch {
	case transactionID == 0:
		return nil, invalidInput("transaction id is required")
	case discount.IsNegative():
		return nil, invalidInput("discount must not be negative")
	case strings.TrimSpace(reason) == "":
		return nil, invalidInput("discount reason is required")
	}
	now := s.clock.Now()

	var discounted *models.Transaction
	err := s.repo.WithinTx(ctx, func(ctx context.Context, st Store) error {
		tx, err := st.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			return notFound(err, "transaction", transactionID)
		}
		if tx.MismatchUnresolved() {
			return invalidState(tx, "apply discount")
		}
		if err := tx.ApplyDiscount(discount, now); err != nil {
			return invalidState(tx, "apply discount")
		}
		tx.AppendNotes("discount "+discount.StringFixed(2)+": "+strings.TrimSpace(reason), now)
		discounted = tx
		return st.UpdateTransaction(ctx, tx)
	})
	s.metrics.Operation("apply_discount", err)
	if err != nil {
		return nil, err
	}
	s.log.Info("discount applied", "transaction_id", transactionID, "discount", discount.StringFixed(2), "operator_id", operatorID)
	return s.afterCommit(ctx, messages.EventDiscountApplied, discounted, nil), nil
}

type RefundCommand struct {
	TransactionID uint64
	Amount        decimal.Decimal
	Reason        string
	OperatorID    uint64
}

// RefundPayment returns all or part of the payment of a stay. The transaction stays PAID;
// the refund is recorded on the payment.
func (s *Service) RefundPayment(ctx context.Context, cmd RefundCommand) (*TransactionView, error) {
	switch {
	case cmd.TransactionID == 0:
		return nil, invalidInput("transaction id is required")
	case !cmd.Amount.IsPositive():
		return nil, invalidInput("refund amount must be positive")
	case strings.TrimSpace(cmd.Reason) == "":
		return nil, invalidInput("refund reason is required")
	}
	now := s.clock.Now()

	var (
		tx      *models.Transaction
		payment *models.Payment
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		tx, err = st.GetTransactionForUpdate(ctx, cmd.TransactionID)
		if err != nil {
			return notFound(err, "transaction", cmd.TransactionID)
		}
		payment, err = st.GetPaymentByTransaction(ctx, tx.ID)
		if err != nil {
			return notFound(err, "payment for transaction", tx.ID)
		}
		if payment.Status != models.PaymentCompleted {
			return invalidState(tx, "refund payment")
		}
		if cmd.Amount.GreaterThan(payment.Amount) {
			return invalidInput("refund exceeds paid amount " + payment.Amount.StringFixed(2))
		}
		if err := payment.Refund(cmd.Amount, cmd.Reason, cmd.OperatorID, now); err != nil {
			return invalidState(tx, "refund payment")
		}
		return st.UpdatePayment(ctx, payment)
	})
	s.metrics.Operation("refund_payment", err)
	if err != nil {
		return nil, err
	}
	s.log.Info("payment refunded",
		"transaction_id", tx.ID, "payment_id", payment.ID, "amount", cmd.Amount.StringFixed(2), "operator_id", cmd.OperatorID)
	return s.afterCommit(ctx, messages.EventPaymentRefunded, tx, payment), nil
}

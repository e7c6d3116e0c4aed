package parking

import (
	"context"

	"github.com/BearBump/ParkBox/internal/broker/messages"
	"github.com/BearBump/ParkBox/internal/models"
)

// ExitCommand identifies the stay either by TransactionID or by the plate of an ACTIVE stay.
type ExitCommand struct {
	TransactionID   uint64
	Plate           string
	DocumentTypeID  uint64
	DocumentNumber  string
	OperatorID      uint64
	Method          models.CaptureMethod
	PhotoURL        *string
	PlateConfidence *float64
	Notes           string
}

func (c ExitCommand) validate() error {
	switch {
	case c.TransactionID == 0 && models.NormalizePlate(c.Plate) == "":
		return invalidInput("transaction id or plate is required")
	case c.DocumentTypeID == 0:
		return invalidInput("document type is required")
	case models.NormalizeDocument(c.DocumentNumber) == "":
		return invalidInput("document number is required")
	case c.PlateConfidence != nil && (*c.PlateConfidence < 0 || *c.PlateConfidence > 1):
		return invalidInput("plate confidence must be within [0, 1]")
	}
	return validMethod(c.Method)
}

// RecordExit closes an ACTIVE stay, prices it with the rate snapshotted at entry and
// releases the space.
//
// When the exit document differs from the entry document the exit is still committed
// (COMPLETED, flagged, unpriced) but the space stays OCCUPIED until an operator calls
// ResolveDocumentMismatch. In that case both the view and a *DocumentMismatchError are returned.
func (s *Service) RecordExit(ctx context.Context, cmd ExitCommand) (*TransactionView, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	now := s.clock.Now()

	var (
		closed   *models.Transaction
		mismatch bool
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, st Store) error {
		tx, err := s.lockForExit(ctx, st, cmd)
		if err != nil {
			return err
		}
		if !tx.IsActive() {
			return invalidState(tx, "record exit")
		}
		if err := tx.RecordExit(cmd.DocumentTypeID, cmd.DocumentNumber, cmd.OperatorID, now); err != nil {
			return invalidState(tx, "record exit")
		}
		method := cmd.Method
		if method == "" {
			method = models.CaptureManual
		}
		tx.ExitMethod = &method
		tx.ExitPhotoURL = cmd.PhotoURL
		tx.ExitPlateConfidence = cmd.PlateConfidence
		tx.AppendNotes(cmd.Notes, now)
		closed = tx

		if !tx.VerifyDocumentMatch() {
			// Выезд физически состоялся: сохраняем его с флагом, место не освобождаем.
			mismatch = true
			tx.FlagDocumentMismatch(now)
			return st.UpdateTransaction(ctx, tx)
		}

		if err := tx.CalculateAmount(); err != nil {
			return err
		}
		if err := st.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
		return st.MarkSpaceAvailable(ctx, tx.SpaceID, now)
	})
	if err != nil {
		s.metrics.Operation("record_exit", err)
		return nil, err
	}

	if mismatch {
		s.metrics.Operation("record_exit", ErrDocumentMismatch)
		s.metrics.DocumentMismatch()
		s.log.Warn("exit document mismatch, space kept occupied",
			"transaction_id", closed.ID, "space_id", closed.SpaceID,
			"entry_doc_type", closed.EntryDocumentTypeID, "exit_doc_type", cmd.DocumentTypeID, "operator_id", cmd.OperatorID)
		v := s.afterCommit(ctx, messages.EventDocumentMismatch, closed, nil)
		return v, &DocumentMismatchError{TransactionID: closed.ID, Plate: v.Transaction.LicensePlate}
	}

	s.metrics.Operation("record_exit", nil)
	s.log.Info("exit recorded",
		"transaction_id", closed.ID, "duration_min", *closed.DurationMinutes, "total", closed.TotalAmount.Decimal.StringFixed(2))
	return s.afterCommit(ctx, messages.EventExitRecorded, closed, nil), nil
}

func (s *Service) lockForExit(ctx context.Context, st Store, cmd ExitCommand) (*models.Transaction, error) {
	id := cmd.TransactionID
	if id == 0 {
		plate := models.NormalizePlate(cmd.Plate)
		active, err := st.GetActiveTransactionByPlate(ctx, plate)
		if err != nil {
			return nil, notFound(err, "active transaction for plate", plate)
		}
		id = active.ID
	}
	tx, err := st.GetTransactionForUpdate(ctx, id)
	if err != nil {
		return nil, notFound(err, "transaction", id)
	}
	return tx, nil
}

// ResolveDocumentMismatch is the operator override for a flagged exit: it prices the stay
// from the snapshot, keeps the audit flag and releases the space.
func (s *Service) ResolveDocumentMismatch(ctx context.Context, transactionID, operatorID uint64, notes string) (*TransactionView, error) {
	if transactionID == 0 {
		return nil, invalidInput("transaction id is required")
	}
	now := s.clock.Now()

	var resolved *models.Transaction
	err := s.repo.WithinTx(ctx, func(ctx context.Context, st Store) error {
		tx, err := st.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			return notFound(err, "transaction", transactionID)
		}
		if err := tx.ResolveMismatch(operatorID, now); err != nil {
			return invalidState(tx, "resolve document mismatch")
		}
		tx.AppendNotes(notes, now)
		if err := st.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
		resolved = tx
		return st.MarkSpaceAvailable(ctx, tx.SpaceID, now)
	})
	s.metrics.Operation("resolve_mismatch", err)
	if err != nil {
		return nil, err
	}
	s.log.Warn("document mismatch resolved by operator", "transaction_id", resolved.ID, "operator_id", operatorID)
	return s.afterCommit(ctx, messages.EventMismatchResolved, resolved, nil), nil
}

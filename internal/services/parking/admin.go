package parking

import (
	"context"
	"strings"

	"github.com/BearBump/ParkBox/internal/broker/messages"
	"github.com/BearBump/ParkBox/internal/models"
)

// CancelTransaction aborts an ACTIVE stay (wrong plate, gate error) and releases its space.
func (s *Service) CancelTransaction(ctx context.Context, transactionID, operatorID uint64, reason string) (*TransactionView, error) {
	switch {
	case transactionID == 0:
		return nil, invalidInput("transaction id is required")
	case strings.TrimSpace(reason) == "":
		return nil, invalidInput("cancellation reason is required")
	}
	now := s.clock.Now()

	var cancelled *models.Transaction
	err := s.repo.WithinTx(ctx, func(ctx context.Context, st Store) error {
		tx, err := st.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			return notFound(err, "transaction", transactionID)
		}
		if err := tx.Cancel(reason, operatorID, now); err != nil {
			return invalidState(tx, "cancel")
		}
		if err := st.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
		cancelled = tx
		return st.MarkSpaceAvailable(ctx, tx.SpaceID, now)
	})
	s.metrics.Operation("cancel_transaction", err)
	if err != nil {
		return nil, err
	}
	s.log.Info("transaction cancelled", "transaction_id", transactionID, "operator_id", operatorID, "reason", reason)
	return s.afterCommit(ctx, messages.EventTransactionCancelled, cancelled, nil), nil
}

// ChangeSpaceStatus runs an administrative action on a space. Occupied spaces are left alone:
// they are released only by exit, cancellation or mismatch resolution.
func (s *Service) ChangeSpaceStatus(ctx context.Context, spaceID uint64, action models.SpaceAction, operatorID uint64) (*models.Space, error) {
	if spaceID == 0 {
		return nil, invalidInput("space id is required")
	}
	now := s.clock.Now()

	var changed *models.Space
	err := s.repo.WithinTx(ctx, func(ctx context.Context, st Store) error {
		space, err := st.GetSpace(ctx, spaceID)
		if err != nil {
			return notFound(err, "space", spaceID)
		}
		if space.Status == models.SpaceOccupied {
			return &SpaceNotAvailableError{SpaceID: space.ID, Status: space.Status}
		}
		if err := space.Apply(action, now); err != nil {
			return invalidInput("unknown space action " + string(action))
		}
		ok, err := st.UpdateSpaceStatus(ctx, space)
		if err != nil {
			return notFound(err, "space", spaceID)
		}
		if !ok {
			return &SpaceNotAvailableError{SpaceID: space.ID, Status: models.SpaceOccupied}
		}
		changed = space
		return nil
	})
	s.metrics.Operation("change_space_status", err)
	if err != nil {
		return nil, err
	}
	s.log.Info("space status changed", "space_id", spaceID, "action", action, "status", changed.Status, "operator_id", operatorID)
	return changed, nil
}

// ApplyReceiptStatus stores a delivery result reported by the notification pipeline.
func (s *Service) ApplyReceiptStatus(ctx context.Context, upd messages.ReceiptStatusUpdate) error {
	if upd.TransactionID == 0 {
		return invalidInput("transaction_id is required")
	}
	if strings.TrimSpace(upd.Status) == "" {
		return invalidInput("status is required")
	}
	now := s.clock.Now()

	var updated *models.Transaction
	err := s.repo.WithinTx(ctx, func(ctx context.Context, st Store) error {
		tx, err := st.GetTransactionForUpdate(ctx, upd.TransactionID)
		if err != nil {
			return notFound(err, "transaction", upd.TransactionID)
		}
		channel := strings.ToUpper(strings.TrimSpace(upd.Channel))
		if err := tx.SetReceiptStatus(channel, strings.ToUpper(strings.TrimSpace(upd.Status)), now); err != nil {
			return invalidInput("unknown receipt channel " + upd.Channel)
		}
		updated = tx
		return st.UpdateTransaction(ctx, tx)
	})
	if err != nil {
		return err
	}

	// Инвалидируем кэш: перечитываем одну запись.
	if s.cacheEnabled() {
		if fresh, p, err := s.reload(ctx, updated.ID); err == nil {
			s.cachePut(ctx, fresh, p)
		}
	}
	return nil
}

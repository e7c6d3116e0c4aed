package parking

import (
	"context"
	"time"

	"github.com/BearBump/ParkBox/internal/broker/messages"
)

// MarkOverduePayments moves stays that exited more than grace ago and are still unpaid
// to OVERDUE. A non-positive grace disables the sweep.
func (s *Service) MarkOverduePayments(ctx context.Context, grace time.Duration, limit int) (int, error) {
	if grace <= 0 || limit <= 0 {
		return 0, nil
	}
	now := s.clock.Now()
	txs, err := s.repo.MarkOverduePayments(ctx, now.Add(-grace), now, limit)
	s.metrics.Operation("mark_overdue_payments", err)
	if err != nil {
		return 0, err
	}
	for _, tx := range txs {
		s.cachePut(ctx, tx, nil)
		s.publish(ctx, messages.NewTransactionEvent(messages.EventPaymentOverdue, tx, now))
	}
	s.metrics.Swept("payment_overdue", len(txs))
	return len(txs), nil
}

// ClaimOverdueStays raises one alert per ACTIVE stay longer than the configured maximum.
// Claimed stays are stamped and are not returned again.
func (s *Service) ClaimOverdueStays(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	now := s.clock.Now()
	cutoff := now.Add(-time.Duration(s.maxStay) * time.Minute)
	txs, err := s.repo.ClaimOverdueStays(ctx, cutoff, now, limit)
	s.metrics.Operation("claim_overdue_stays", err)
	if err != nil {
		return 0, err
	}
	for _, tx := range txs {
		s.log.Warn("stay exceeds maximum",
			"transaction_id", tx.ID, "plate", tx.LicensePlate, "space_id", tx.SpaceID,
			"elapsed_min", tx.ElapsedMinutes(now), "max_min", s.maxStay)
		s.publish(ctx, messages.NewTransactionEvent(messages.EventStayOverdue, tx, now))
	}
	s.metrics.Swept("stay_overdue", len(txs))
	return len(txs), nil
}

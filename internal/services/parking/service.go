package parking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/ParkBox/internal/broker/messages"
	"github.com/BearBump/ParkBox/internal/cache"
	"github.com/BearBump/ParkBox/internal/metrics"
	"github.com/BearBump/ParkBox/internal/models"
	"github.com/pkg/errors"
)

const DefaultMaxStayMinutes = 480

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Publisher receives an event after every committed change. Failures never undo the change.
type Publisher interface {
	PublishTransactionEvent(ctx context.Context, ev messages.TransactionEvent) error
}

type Config struct {
	// ACTIVE stays longer than this are overdue (default 480).
	MaxStayMinutes int
	// Shift windows are wall-clock times in this location (default UTC).
	Location *time.Location

	Clock     Clock
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type Service struct {
	repo      Repository
	cache     cache.BytesCache
	cacheTTL  time.Duration
	clock     Clock
	publisher Publisher
	metrics   *metrics.Metrics
	log       *slog.Logger
	maxStay   int
	location  *time.Location
}

func New(repo Repository, c cache.BytesCache, snapshotTTL time.Duration, cfg Config) *Service {
	s := &Service{
		repo:      repo,
		cache:     c,
		cacheTTL:  snapshotTTL,
		clock:     cfg.Clock,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		maxStay:   cfg.MaxStayMinutes,
		location:  cfg.Location,
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.maxStay <= 0 {
		s.maxStay = DefaultMaxStayMinutes
	}
	if s.location == nil {
		s.location = time.UTC
	}
	return s
}

func (s *Service) MaxStayMinutes() int {
	return s.maxStay
}

// cachedTransaction is the stored shape behind tx:<id>; projections are rebuilt on every read.
type cachedTransaction struct {
	Transaction *models.Transaction
	Payment     *models.Payment
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.cacheTTL > 0
}

func (s *Service) cacheGet(ctx context.Context, id uint64) (*cachedTransaction, bool) {
	if !s.cacheEnabled() {
		return nil, false
	}
	b, ok, err := s.cache.Get(ctx, transactionKey(id))
	if err != nil || !ok {
		return nil, false
	}
	var c cachedTransaction
	if json.Unmarshal(b, &c) != nil || c.Transaction == nil {
		return nil, false
	}
	return &c, true
}

func (s *Service) cachePut(ctx context.Context, tx *models.Transaction, p *models.Payment) {
	if !s.cacheEnabled() {
		return
	}
	b, err := json.Marshal(cachedTransaction{Transaction: tx, Payment: p})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, transactionKey(tx.ID), b, s.cacheTTL); err != nil {
		s.log.Warn("snapshot cache set failed", "transaction_id", tx.ID, "err", err)
	}
}

// load reads a transaction with its payment, cache first.
func (s *Service) load(ctx context.Context, id uint64) (*models.Transaction, *models.Payment, error) {
	if c, ok := s.cacheGet(ctx, id); ok {
		return c.Transaction, c.Payment, nil
	}
	tx, p, err := s.reload(ctx, id)
	if err != nil {
		return nil, nil, notFound(err, "transaction", id)
	}
	s.cachePut(ctx, tx, p)
	return tx, p, nil
}

// afterCommit reloads the joined row, refreshes the cache and publishes the event.
// The change is already durable, so nothing here can fail the operation.
func (s *Service) afterCommit(ctx context.Context, typ messages.EventType, tx *models.Transaction, p *models.Payment) *TransactionView {
	now := s.clock.Now()
	if fresh, err := s.repo.GetTransaction(ctx, tx.ID); err == nil {
		tx = fresh
	} else {
		s.log.Warn("reload after commit failed", "transaction_id", tx.ID, "err", err)
	}
	s.cachePut(ctx, tx, p)
	s.publish(ctx, messages.NewTransactionEvent(typ, tx, now))
	return s.view(tx, p, now)
}

func (s *Service) publish(ctx context.Context, ev messages.TransactionEvent) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishTransactionEvent(ctx, ev)
	s.metrics.Published(err)
	if err != nil {
		s.log.Error("publish transaction event failed",
			"event_id", ev.EventID, "type", ev.Type, "transaction_id", ev.TransactionID, "err", err)
	}
}

func transactionKey(id uint64) string {
	return fmt.Sprintf("tx:%d", id)
}

func (s *Service) reload(ctx context.Context, id uint64) (*models.Transaction, *models.Payment, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.repo.GetPaymentByTransaction(ctx, id)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, nil, err
	}
	return tx, p, nil
}

package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Coordinator is the part of parking.Service the sweeps drive.
type Coordinator interface {
	MarkOverduePayments(ctx context.Context, grace time.Duration, limit int) (int, error)
	ClaimOverdueStays(ctx context.Context, limit int) (int, error)
}

// Gate lets replicas share one cycle per interval (Redis fixed window).
type Gate interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

const gateKey = "sweep:cycle"

// maxBatchesPerCycle bounds one cycle so a large backlog cannot starve the ticker.
const maxBatchesPerCycle = 50

type Sweeper struct {
	svc  Coordinator
	gate Gate

	pollInterval time.Duration
	batchSize    int
	paymentGrace time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalCycles         atomic.Int64
	skippedCycles       atomic.Int64
	overdueStays        atomic.Int64
	overduePayments     atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(svc Coordinator, gate Gate) *Sweeper {
	return &Sweeper{
		svc:               svc,
		gate:              gate,
		pollInterval:      30 * time.Second,
		batchSize:         100,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

// WithSettings overrides the positive values. A zero grace keeps the payment sweep disabled.
func (s *Sweeper) WithSettings(pollInterval time.Duration, batchSize int, paymentGrace time.Duration) *Sweeper {
	if pollInterval > 0 {
		s.pollInterval = pollInterval
	}
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if paymentGrace > 0 {
		s.paymentGrace = paymentGrace
	}
	return s
}

// Trigger forces an immediate cycle (best-effort, non-blocking). Triggered cycles skip the gate.
func (s *Sweeper) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt       time.Time  `json:"startedAt"`
	LastCycleAt     *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt   *time.Time `json:"lastTriggerAt,omitempty"`
	TotalCycles     int64      `json:"totalCycles"`
	SkippedCycles   int64      `json:"skippedCycles"`
	OverdueStays    int64      `json:"overdueStays"`
	OverduePayments int64      `json:"overduePayments"`
	TotalErrors     int64      `json:"totalErrors"`
	LastError       string     `json:"lastError,omitempty"`
}

func (s *Sweeper) Stats() Stats {
	st := Stats{
		StartedAt:       time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalCycles:     s.totalCycles.Load(),
		SkippedCycles:   s.skippedCycles.Load(),
		OverdueStays:    s.overdueStays.Load(),
		OverduePayments: s.overduePayments.Load(),
		TotalErrors:     s.totalErrors.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if s.acquire(ctx) {
				s.runOnce(ctx)
			}
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

// acquire reports whether this replica owns the current interval. Gate errors fail open:
// the sweeps are safe to run twice.
func (s *Sweeper) acquire(ctx context.Context) bool {
	if s.gate == nil {
		return true
	}
	ok, _, err := s.gate.Allow(ctx, gateKey, 1, s.pollInterval)
	if err != nil {
		slog.Warn("sweep gate unavailable", "error", err.Error())
		return true
	}
	if !ok {
		s.skippedCycles.Add(1)
	}
	return ok
}

func (s *Sweeper) runOnce(ctx context.Context) {
	s.lastCycleUnixNano.Store(time.Now().UTC().UnixNano())
	s.totalCycles.Add(1)

	stays := s.drain(ctx, "stay_overdue", func() (int, error) {
		return s.svc.ClaimOverdueStays(ctx, s.batchSize)
	})
	s.overdueStays.Add(int64(stays))

	if s.paymentGrace > 0 {
		payments := s.drain(ctx, "payment_overdue", func() (int, error) {
			return s.svc.MarkOverduePayments(ctx, s.paymentGrace, s.batchSize)
		})
		s.overduePayments.Add(int64(payments))
	}
}

// drain repeats one sweep while it keeps returning full batches.
func (s *Sweeper) drain(ctx context.Context, name string, step func() (int, error)) int {
	total := 0
	for i := 0; i < maxBatchesPerCycle && ctx.Err() == nil; i++ {
		n, err := step()
		if err != nil {
			s.totalErrors.Add(1)
			s.lastErrorMu.Lock()
			s.lastError = err.Error()
			s.lastErrorMu.Unlock()
			slog.Error("sweep failed", "sweep", name, "error", err.Error())
			return total
		}
		total += n
		if n < s.batchSize {
			break
		}
	}
	if total > 0 {
		slog.Info("sweep done", "sweep", name, "count", total)
	}
	return total
}

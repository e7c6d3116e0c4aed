package parking

import (
	"context"
	"time"

	"github.com/BearBump/ParkBox/internal/billing"
	"github.com/BearBump/ParkBox/internal/models"
	"github.com/shopspring/decimal"
)

// TransactionView is a read projection. Elapsed time and the estimate are computed
// against the clock for ACTIVE stays and are never written back.
type TransactionView struct {
	Transaction     *models.Transaction
	Payment         *models.Payment
	ElapsedMinutes  int
	Duration        string
	EstimatedAmount decimal.Decimal
	Overdue         bool
	MismatchPending bool
}

func (s *Service) view(tx *models.Transaction, p *models.Payment, now time.Time) *TransactionView {
	v := &TransactionView{
		Transaction:     tx,
		Payment:         p,
		ElapsedMinutes:  tx.ElapsedMinutes(now),
		MismatchPending: tx.MismatchUnresolved(),
	}
	v.Duration = billing.FormatDuration(v.ElapsedMinutes)
	switch {
	case tx.IsActive():
		v.EstimatedAmount = tx.EstimatedAmount(now)
		v.Overdue = tx.IsOverdueStay(now, s.maxStay)
	case tx.TotalAmount.Valid:
		v.EstimatedAmount = tx.TotalAmount.Decimal
	}
	return v
}

func (s *Service) GetByID(ctx context.Context, id uint64) (*TransactionView, error) {
	if id == 0 {
		return nil, invalidInput("transaction id is required")
	}
	tx, p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(tx, p, s.clock.Now()), nil
}

func (s *Service) GetActiveByPlate(ctx context.Context, plate string) (*TransactionView, error) {
	plate = models.NormalizePlate(plate)
	if plate == "" {
		return nil, invalidInput("plate is required")
	}
	tx, err := s.repo.GetActiveTransactionByPlate(ctx, plate)
	if err != nil {
		return nil, notFound(err, "active transaction for plate", plate)
	}
	return s.view(tx, nil, s.clock.Now()), nil
}

type ActiveFilter struct {
	ZoneID *uint64
	Plate  string
}

func (s *Service) ListActive(ctx context.Context, f ActiveFilter, page models.Page) (models.PageResult[*TransactionView], error) {
	return s.list(ctx, TransactionFilter{
		Statuses: []models.TransactionStatus{models.TransactionActive},
		ZoneID:   f.ZoneID,
		Plate:    models.NormalizePlate(f.Plate),
	}, page)
}

// ListOverdue lists ACTIVE stays longer than the configured maximum, oldest first.
func (s *Service) ListOverdue(ctx context.Context, page models.Page) (models.PageResult[*TransactionView], error) {
	cutoff := s.clock.Now().Add(-time.Duration(s.maxStay) * time.Minute)
	return s.list(ctx, TransactionFilter{
		Statuses:      []models.TransactionStatus{models.TransactionActive},
		EnteredBefore: &cutoff,
		OldestFirst:   true,
	}, page)
}

type HistoryFilter struct {
	Status        *models.TransactionStatus
	PaymentStatus *models.PaymentStatus
	ZoneID        *uint64
	Plate         string
	From          *time.Time
	To            *time.Time
	Mismatch      *bool
}

func (s *Service) ListHistory(ctx context.Context, f HistoryFilter, page models.Page) (models.PageResult[*TransactionView], error) {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return models.PageResult[*TransactionView]{}, invalidInput("'to' is before 'from'")
	}
	tf := TransactionFilter{
		PaymentStatus: f.PaymentStatus,
		ZoneID:        f.ZoneID,
		Plate:         models.NormalizePlate(f.Plate),
		EnteredFrom:   f.From,
		EnteredBefore: f.To,
		Mismatch:      f.Mismatch,
	}
	if f.Status != nil {
		tf.Statuses = []models.TransactionStatus{*f.Status}
	}
	return s.list(ctx, tf, page)
}

func (s *Service) list(ctx context.Context, f TransactionFilter, page models.Page) (models.PageResult[*TransactionView], error) {
	page = page.Normalize()
	txs, total, err := s.repo.ListTransactions(ctx, f, page)
	if err != nil {
		return models.PageResult[*TransactionView]{}, err
	}
	now := s.clock.Now()
	items := make([]*TransactionView, 0, len(txs))
	for _, tx := range txs {
		items = append(items, s.view(tx, nil, now))
	}
	return models.PageResult[*TransactionView]{
		Items:  items,
		Number: page.Number,
		Size:   page.Size,
		Total:  total,
	}, nil
}

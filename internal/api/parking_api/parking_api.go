package parking_api

import (
	"context"
	"net/http"
	"time"

	"github.com/BearBump/ParkBox/internal/broker/messages"
	"github.com/BearBump/ParkBox/internal/metrics"
	"github.com/BearBump/ParkBox/internal/models"
	"github.com/BearBump/ParkBox/internal/services/parking"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

// Coordinator is the operation surface of parking.Service exposed over HTTP.
type Coordinator interface {
	RecordEntry(ctx context.Context, cmd parking.EntryCommand) (*parking.TransactionView, error)
	RecordExit(ctx context.Context, cmd parking.ExitCommand) (*parking.TransactionView, error)
	ProcessPayment(ctx context.Context, cmd parking.PaymentCommand) (*parking.TransactionView, error)
	ApplyDiscount(ctx context.Context, transactionID uint64, discount decimal.Decimal, operatorID uint64, reason string) (*parking.TransactionView, error)
	RefundPayment(ctx context.Context, cmd parking.RefundCommand) (*parking.TransactionView, error)
	CancelTransaction(ctx context.Context, transactionID, operatorID uint64, reason string) (*parking.TransactionView, error)
	ResolveDocumentMismatch(ctx context.Context, transactionID, operatorID uint64, notes string) (*parking.TransactionView, error)
	ChangeSpaceStatus(ctx context.Context, spaceID uint64, action models.SpaceAction, operatorID uint64) (*models.Space, error)
	ApplyReceiptStatus(ctx context.Context, upd messages.ReceiptStatusUpdate) error

	GetByID(ctx context.Context, id uint64) (*parking.TransactionView, error)
	GetActiveByPlate(ctx context.Context, plate string) (*parking.TransactionView, error)
	ListActive(ctx context.Context, f parking.ActiveFilter, page models.Page) (models.PageResult[*parking.TransactionView], error)
	ListOverdue(ctx context.Context, page models.Page) (models.PageResult[*parking.TransactionView], error)
	ListHistory(ctx context.Context, f parking.HistoryFilter, page models.Page) (models.PageResult[*parking.TransactionView], error)
}

// Limiter is a fixed-window counter (see rediscache.RateLimiter).
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// OperatorHeader carries the id of the authenticated operator, set by the gateway in front.
const OperatorHeader = "X-Operator-ID"

type ParkingAPI struct {
	svc     Coordinator
	metrics *metrics.Metrics

	limiter   Limiter
	rateLimit int64
}

func New(svc Coordinator, m *metrics.Metrics) *ParkingAPI {
	return &ParkingAPI{svc: svc, metrics: m}
}

// WithRateLimit caps requests per operator (or client address) per minute. perMinute <= 0 disables it.
func (a *ParkingAPI) WithRateLimit(l Limiter, perMinute int) *ParkingAPI {
	a.limiter = l
	a.rateLimit = int64(perMinute)
	return a
}

func (a *ParkingAPI) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(a.instrument)
	a.Routes(r)
	return r
}

func (a *ParkingAPI) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.rateLimited)

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/entry", a.recordEntry)
			r.Post("/exit", a.recordExit)

			r.Get("/active", a.listActive)
			r.Get("/active/plate/{plate}", a.getActiveByPlate)
			r.Get("/overdue", a.listOverdue)
			r.Get("/history", a.listHistory)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.getByID)
				r.Post("/payment", a.processPayment)
				r.Post("/discount", a.applyDiscount)
				r.Post("/refund", a.refundPayment)
				r.Post("/cancel", a.cancelTransaction)
				r.Post("/resolve-mismatch", a.resolveMismatch)
				r.Post("/receipt-status", a.applyReceiptStatus)
			})
		})

		r.Put("/spaces/{id}/status", a.changeSpaceStatus)
	})
}

package parking

import (
	"context"
	"time"

	"github.com/BearBump/ParkBox/internal/models"
)

// Store is the set of storage operations available inside one unit of work.
// Missing rows are reported as models.ErrNotFound, unique violations as *models.ConflictError.
type Store interface {
	GetZone(ctx context.Context, id uint64) (*models.Zone, error)
	GetSpace(ctx context.Context, id uint64) (*models.Space, error)
	// UpdateSpaceStatus never touches an OCCUPIED space. false means the space is occupied.
	UpdateSpaceStatus(ctx context.Context, space *models.Space) (bool, error)
	// MarkSpaceOccupied is a compare-and-swap AVAILABLE→OCCUPIED. false means another writer won.
	MarkSpaceOccupied(ctx context.Context, spaceID uint64, now time.Time) (bool, error)
	MarkSpaceAvailable(ctx context.Context, spaceID uint64, now time.Time) error

	UpsertVehicle(ctx context.Context, plate string, now time.Time) (*models.Vehicle, error)
	UpsertCustomer(ctx context.Context, in models.CustomerInput, now time.Time) (*models.Customer, error)

	ListActiveShifts(ctx context.Context) ([]*models.Shift, error)
	// FindShiftRate returns the usable rate bound to (parking, shift).
	FindShiftRate(ctx context.Context, parkingID, shiftID uint64) (*models.Rate, error)
	ListActiveRates(ctx context.Context) ([]*models.Rate, error)

	GetTransaction(ctx context.Context, id uint64) (*models.Transaction, error)
	GetTransactionForUpdate(ctx context.Context, id uint64) (*models.Transaction, error)
	GetActiveTransactionByVehicle(ctx context.Context, vehicleID uint64) (*models.Transaction, error)
	GetActiveTransactionByPlate(ctx context.Context, plate string) (*models.Transaction, error)
	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	UpdateTransaction(ctx context.Context, tx *models.Transaction) error

	InsertPayment(ctx context.Context, p *models.Payment) error
	GetPaymentByTransaction(ctx context.Context, transactionID uint64) (*models.Payment, error)
	UpdatePayment(ctx context.Context, p *models.Payment) error
}

type Repository interface {
	Store

	// WithinTx runs fn in one database transaction: it commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error

	ListTransactions(ctx context.Context, f TransactionFilter, page models.Page) ([]*models.Transaction, int, error)
	// ClaimOverdueStays stamps overdue_alerted_at on ACTIVE stays entered before the cutoff
	// that were not alerted yet and returns them.
	ClaimOverdueStays(ctx context.Context, enteredBefore, now time.Time, limit int) ([]*models.Transaction, error)
	// MarkOverduePayments moves COMPLETED+PENDING transactions that exited before the cutoff
	// (and carry no unresolved document mismatch) to OVERDUE and returns them.
	MarkOverduePayments(ctx context.Context, exitedBefore, now time.Time, limit int) ([]*models.Transaction, error)
}

type TransactionFilter struct {
	Statuses      []models.TransactionStatus
	PaymentStatus *models.PaymentStatus
	ZoneID        *uint64

	// Plate matches as a prefix of the normalized plate.
	Plate         string
	EnteredFrom   *time.Time
	EnteredBefore *time.Time
	Mismatch      *bool

	// Default order is newest entry first.
	OldestFirst bool
}

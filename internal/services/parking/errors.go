package parking

import (
	"fmt"

	"github.com/BearBump/ParkBox/internal/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrZoneNotOperational   = errors.New("zone is not operational")
	ErrSpaceNotAvailable    = errors.New("space is not available")
	ErrVehicleAlreadyInside = errors.New("vehicle already inside")
	ErrInvalidState         = errors.New("invalid transaction state")
	ErrDocumentMismatch     = errors.New("exit document does not match entry document")
	ErrInsufficientAmount   = errors.New("insufficient amount")
	ErrInvalidInput         = errors.New("invalid input")
)

type ZoneNotOperationalError struct {
	ZoneID uint64
	Status models.ZoneStatus
}

func (e *ZoneNotOperationalError) Error() string {
	return fmt.Sprintf("zone %d is not operational (status %s)", e.ZoneID, e.Status)
}

func (e *ZoneNotOperationalError) Is(target error) bool { return target == ErrZoneNotOperational }

type SpaceNotAvailableError struct {
	SpaceID uint64
	Status  models.SpaceStatus
}

func (e *SpaceNotAvailableError) Error() string {
	return fmt.Sprintf("space %d is not available (status %s)", e.SpaceID, e.Status)
}

func (e *SpaceNotAvailableError) Is(target error) bool { return target == ErrSpaceNotAvailable }

// VehicleAlreadyInsideError carries the id of the stay that is still open.
type VehicleAlreadyInsideError struct {
	Plate         string
	TransactionID uint64
}

func (e *VehicleAlreadyInsideError) Error() string {
	return fmt.Sprintf("vehicle %s is already inside (active transaction %d)", e.Plate, e.TransactionID)
}

func (e *VehicleAlreadyInsideError) Is(target error) bool { return target == ErrVehicleAlreadyInside }

type InvalidStateError struct {
	TransactionID uint64
	Status        models.TransactionStatus
	PaymentStatus models.PaymentStatus
	Operation     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s transaction %d in state %s/%s", e.Operation, e.TransactionID, e.Status, e.PaymentStatus)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// DocumentMismatchError is security relevant: the exit was persisted but the space was not released.
type DocumentMismatchError struct {
	TransactionID uint64
	Plate         string
}

func (e *DocumentMismatchError) Error() string {
	return fmt.Sprintf("exit document for transaction %d (plate %s) does not match the entry document", e.TransactionID, e.Plate)
}

func (e *DocumentMismatchError) Is(target error) bool { return target == ErrDocumentMismatch }

type InsufficientAmountError struct {
	Required decimal.Decimal
	Paid     decimal.Decimal
}

func (e *InsufficientAmountError) Error() string {
	return fmt.Sprintf("insufficient amount: required %s, received %s", e.Required.StringFixed(2), e.Paid.StringFixed(2))
}

func (e *InsufficientAmountError) Is(target error) bool { return target == ErrInsufficientAmount }

func invalidInput(msg string) error {
	return errors.Wrap(ErrInvalidInput, msg)
}

func invalidState(tx *models.Transaction, op string) error {
	return &InvalidStateError{
		TransactionID: tx.ID,
		Status:        tx.Status,
		PaymentStatus: tx.PaymentStatus,
		Operation:     op,
	}
}

// notFound maps a storage miss onto the coordinator taxonomy and keeps other errors as they are.
func notFound(err error, what string, id any) error {
	if errors.Is(err, models.ErrNotFound) {
		return errors.Wrapf(ErrNotFound, "%s %v", what, id)
	}
	return err
}

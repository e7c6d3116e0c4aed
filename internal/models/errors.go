package models

import "github.com/pkg/errors"

var (
	// ErrNotFound is returned by storage when a record does not exist (or is soft-deleted).
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by storage when a uniqueness guarantee rejects a write.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition is returned by state machine methods called in the wrong state.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Unique indexes guarding the one-active-stay rules.
const (
	ConstraintActiveVehicle = "ux_transactions_active_vehicle"
	ConstraintActiveSpace   = "ux_transactions_active_space"
	ConstraintPaymentOnce   = "ux_payments_transaction"
)

// ConflictError names the uniqueness constraint that rejected a write.
type ConflictError struct {
	Constraint string
}

func (e *ConflictError) Error() string {
	return "conflict on " + e.Constraint
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

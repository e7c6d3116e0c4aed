package models

import (
	"time"

	"github.com/BearBump/ParkBox/internal/billing"
	"github.com/shopspring/decimal"
)

const DefaultCurrency = "PEN"

type Rate struct {
	ID            uint64
	Name          string
	Description   *string
	Amount        decimal.Decimal // per hour
	Currency      string
	BillingPolicy billing.Policy
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

func (r *Rate) IsDeleted() bool {
	return r.DeletedAt != nil
}

func (r *Rate) HasValidAmount() bool {
	return r.Amount.IsPositive()
}

func (r *Rate) IsUsable() bool {
	return r.Active && !r.IsDeleted() && r.HasValidAmount()
}

func (r *Rate) Cost(durationMinutes int) decimal.Decimal {
	return billing.Calculate(r.BillingPolicy, r.Amount, durationMinutes)
}

func (r *Rate) Activate(now time.Time) {
	r.Active = true
	r.UpdatedAt = now
}

func (r *Rate) Deactivate(now time.Time) {
	r.Active = false
	r.UpdatedAt = now
}

func (r *Rate) MarkDeleted(now time.Time) {
	r.DeletedAt = &now
	r.Active = false
	r.UpdatedAt = now
}

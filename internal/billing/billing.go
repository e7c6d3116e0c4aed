// Package billing turns a parking stay into money.
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Policy string

const (
	// PolicyFractional bills the exact fraction of an hour.
	PolicyFractional Policy = "FRACTIONAL"
	// PolicyHourlyCeiling bills every started hour as a full hour.
	PolicyHourlyCeiling Policy = "HOURLY_CEILING"
)

const scale = 2

var minutesPerHour = decimal.NewFromInt(60)

// Valid reports whether p is a known policy. The empty policy is treated as fractional.
func (p Policy) Valid() bool {
	switch p {
	case "", PolicyFractional, PolicyHourlyCeiling:
		return true
	}
	return false
}

// Calculate dispatches to the policy. Unknown policies fall back to fractional billing.
func Calculate(policy Policy, ratePerHour decimal.Decimal, durationMinutes int) decimal.Decimal {
	if policy == PolicyHourlyCeiling {
		return HourlyCeiling(ratePerHour, durationMinutes)
	}
	return Fractional(ratePerHour, durationMinutes)
}

// Fractional returns rate × minutes/60 rounded half-up to cents.
func Fractional(ratePerHour decimal.Decimal, durationMinutes int) decimal.Decimal {
	if durationMinutes <= 0 || !ratePerHour.IsPositive() {
		return zero()
	}
	return ratePerHour.
		Mul(decimal.NewFromInt(int64(durationMinutes))).
		Div(minutesPerHour).
		Round(scale)
}

// HourlyCeiling rounds the stay up to whole hours before multiplying.
func HourlyCeiling(ratePerHour decimal.Decimal, durationMinutes int) decimal.Decimal {
	if durationMinutes <= 0 || !ratePerHour.IsPositive() {
		return zero()
	}
	hours := (durationMinutes + 59) / 60
	return ratePerHour.Mul(decimal.NewFromInt(int64(hours))).Round(scale)
}

// ApplyDiscount returns max(0, calculated − discount).
func ApplyDiscount(calculated, discount decimal.Decimal) decimal.Decimal {
	total := calculated.Sub(discount)
	if total.IsNegative() {
		return zero()
	}
	return total.Round(scale)
}

// FormatDuration renders minutes as "0min", "45min", "2h" or "2h 5min".
func FormatDuration(minutes int) string {
	if minutes <= 0 {
		return "0min"
	}
	h, m := minutes/60, minutes%60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dmin", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dmin", m)
	}
}

func zero() decimal.Decimal {
	return decimal.Zero.Round(scale)
}

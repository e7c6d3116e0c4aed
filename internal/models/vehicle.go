package models

import (
	"strings"
	"time"
)

type Vehicle struct {
	ID           uint64
	LicensePlate string
	Color        *string
	Brand        *string
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
	TotalVisits  int32
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// NormalizePlate is the natural-key form of a license plate.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

func (v *Vehicle) IsDeleted() bool {
	return v.DeletedAt != nil
}

func (v *Vehicle) RegisterVisit(now time.Time) {
	v.TotalVisits++
	v.LastSeenAt = now
	v.UpdatedAt = now
}

func (v *Vehicle) MarkDeleted(now time.Time) {
	v.DeletedAt = &now
	v.UpdatedAt = now
}

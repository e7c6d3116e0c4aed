package models

import "time"

type ZoneStatus string

const (
	ZoneActive       ZoneStatus = "ACTIVE"
	ZoneInactive     ZoneStatus = "INACTIVE"
	ZoneMaintenance  ZoneStatus = "MAINTENANCE"
	ZoneOutOfService ZoneStatus = "OUT_OF_SERVICE"
)

type Zone struct {
	ID          uint64
	ParkingID   uint64
	Name        string
	Code        string
	Address     *string
	Description *string
	CameraIDs   []string
	Status      ZoneStatus

	// Derived from the spaces table on every read.
	TotalSpaces     int32
	AvailableSpaces int32

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

func (z *Zone) IsDeleted() bool {
	return z.DeletedAt != nil
}

func (z *Zone) IsOperational() bool {
	return z.Status == ZoneActive && !z.IsDeleted()
}

func (z *Zone) OccupancyPercent() float64 {
	if z.TotalSpaces <= 0 {
		return 0
	}
	return float64(z.TotalSpaces-z.AvailableSpaces) * 100 / float64(z.TotalSpaces)
}

func (z *Zone) Activate(now time.Time) {
	z.Status = ZoneActive
	z.UpdatedAt = now
}

func (z *Zone) Deactivate(now time.Time) {
	z.Status = ZoneInactive
	z.UpdatedAt = now
}

func (z *Zone) MarkDeleted(now time.Time) {
	z.DeletedAt = &now
	z.Status = ZoneOutOfService
	z.UpdatedAt = now
}

// Restore undoes a soft delete; the zone stays INACTIVE until explicitly activated.
func (z *Zone) Restore(now time.Time) {
	z.DeletedAt = nil
	z.Status = ZoneInactive
	z.UpdatedAt = now
}

package models

import "time"

const minutesPerDay = 24 * 60

// Shift is a named time-of-day window. StartMinute and EndMinute count minutes since
// midnight; a window whose end is before its start crosses midnight.
type Shift struct {
	ID          uint64
	Name        string
	Code        string
	StartMinute int
	EndMinute   int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// ParkingShiftRate binds the rate a parking lot charges during a shift.
type ParkingShiftRate struct {
	ID        uint64
	ParkingID uint64
	ShiftID   uint64
	RateID    uint64
	Active    bool
}

func (s *Shift) IsDeleted() bool {
	return s.DeletedAt != nil
}

func (s *Shift) IsUsable() bool {
	return s.Active && !s.IsDeleted()
}

func (s *Shift) CrossesMidnight() bool {
	return s.EndMinute < s.StartMinute
}

// Contains reports whether t's wall-clock time falls inside the window (both ends inclusive).
func (s *Shift) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if !s.CrossesMidnight() {
		return m >= s.StartMinute && m <= s.EndMinute
	}
	return m >= s.StartMinute || m <= s.EndMinute
}

func (s *Shift) DurationHours() float64 {
	d := s.EndMinute - s.StartMinute
	if d <= 0 {
		d += minutesPerDay
	}
	return float64(d) / 60
}

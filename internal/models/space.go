package models

import "time"

type SpaceStatus string

const (
	SpaceAvailable    SpaceStatus = "AVAILABLE"
	SpaceOccupied     SpaceStatus = "OCCUPIED"
	SpaceMaintenance  SpaceStatus = "MAINTENANCE"
	SpaceOutOfService SpaceStatus = "OUT_OF_SERVICE"
)

type SpaceType string

const (
	SpaceParallel      SpaceType = "PARALLEL"
	SpaceDiagonal      SpaceType = "DIAGONAL"
	SpacePerpendicular SpaceType = "PERPENDICULAR"
)

// SpaceAction is an administrative status change, independent of occupancy.
type SpaceAction string

const (
	SpaceActionMaintenance  SpaceAction = "MAINTENANCE"
	SpaceActionOutOfService SpaceAction = "OUT_OF_SERVICE"
	SpaceActionRestore      SpaceAction = "RESTORE"
)

type Space struct {
	ID                uint64
	ZoneID            uint64
	Code              string
	Type              SpaceType
	Description       *string
	Width             *float64
	Length            *float64
	SensorID          *string
	HasCameraCoverage bool
	Status            SpaceStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

func (s *Space) IsDeleted() bool {
	return s.DeletedAt != nil
}

func (s *Space) IsAvailableForOccupation() bool {
	return s.Status == SpaceAvailable && !s.IsDeleted()
}

// MarkOccupied flips AVAILABLE→OCCUPIED. It returns false and changes nothing otherwise.
func (s *Space) MarkOccupied(now time.Time) bool {
	if !s.IsAvailableForOccupation() {
		return false
	}
	s.Status = SpaceOccupied
	s.UpdatedAt = now
	return true
}

func (s *Space) MarkAvailable(now time.Time) {
	s.Status = SpaceAvailable
	s.UpdatedAt = now
}

func (s *Space) SetInMaintenance(now time.Time) {
	s.Status = SpaceMaintenance
	s.UpdatedAt = now
}

func (s *Space) SetOutOfService(now time.Time) {
	s.Status = SpaceOutOfService
	s.UpdatedAt = now
}

// Restore brings a space back into rotation, undoing a soft delete.
func (s *Space) Restore(now time.Time) {
	s.DeletedAt = nil
	s.Status = SpaceAvailable
	s.UpdatedAt = now
}

func (s *Space) MarkDeleted(now time.Time) {
	s.DeletedAt = &now
	s.Status = SpaceOutOfService
	s.UpdatedAt = now
}

// Apply runs an administrative action.
func (s *Space) Apply(action SpaceAction, now time.Time) error {
	switch action {
	case SpaceActionMaintenance:
		s.SetInMaintenance(now)
	case SpaceActionOutOfService:
		s.SetOutOfService(now)
	case SpaceActionRestore:
		s.Restore(now)
	default:
		return ErrInvalidTransition
	}
	return nil
}

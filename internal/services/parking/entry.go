package parking

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/ParkBox/internal/broker/messages"
	"github.com/BearBump/ParkBox/internal/models"
	"github.com/pkg/errors"
)

type EntryCommand struct {
	Plate          string
	DocumentTypeID uint64
	DocumentNumber string

	// Free text, split into first/last name on the first whitespace for new customers.
	CustomerName    string
	Phone           string
	Email           string
	ZoneID          uint64
	SpaceID         uint64
	OperatorID      uint64
	Method          models.CaptureMethod
	PhotoURL        *string
	PlateConfidence *float64
	Notes           string
}

func (c EntryCommand) validate() error {
	switch {
	case models.NormalizePlate(c.Plate) == "":
		return invalidInput("plate is required")
	case c.DocumentTypeID == 0:
		return invalidInput("document type is required")
	case models.NormalizeDocument(c.DocumentNumber) == "":
		return invalidInput("document number is required")
	case c.ZoneID == 0:
		return invalidInput("zone id is required")
	case c.SpaceID == 0:
		return invalidInput("space id is required")
	case c.PlateConfidence != nil && (*c.PlateConfidence < 0 || *c.PlateConfidence > 1):
		return invalidInput("plate confidence must be within [0, 1]")
	}
	return validMethod(c.Method)
}

func validMethod(m models.CaptureMethod) error {
	switch m {
	case "", models.CaptureManual, models.CaptureCameraAI, models.CaptureSensor:
		return nil
	}
	return invalidInput("unknown capture method " + string(m))
}

// RecordEntry opens a stay. Every check and write happens in one unit of work; the space
// is flipped with a compare-and-swap, so of two concurrent entries for one space only one wins.
func (s *Service) RecordEntry(ctx context.Context, cmd EntryCommand) (*TransactionView, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	plate := models.NormalizePlate(cmd.Plate)
	now := s.clock.Now()

	var (
		created   *models.Transaction
		vehicleID uint64
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, st Store) error {
		zone, err := st.GetZone(ctx, cmd.ZoneID)
		if err != nil {
			return notFound(err, "zone", cmd.ZoneID)
		}
		if !zone.IsOperational() {
			return &ZoneNotOperationalError{ZoneID: zone.ID, Status: zone.Status}
		}

		space, err := st.GetSpace(ctx, cmd.SpaceID)
		if err != nil {
			return notFound(err, "space", cmd.SpaceID)
		}
		if space.ZoneID != zone.ID {
			return invalidInput("space does not belong to zone")
		}
		if !space.IsAvailableForOccupation() {
			return &SpaceNotAvailableError{SpaceID: space.ID, Status: space.Status}
		}

		vehicle, err := st.UpsertVehicle(ctx, plate, now)
		if err != nil {
			return err
		}
		vehicleID = vehicle.ID

		active, err := st.GetActiveTransactionByVehicle(ctx, vehicle.ID)
		switch {
		case err == nil:
			return &VehicleAlreadyInsideError{Plate: plate, TransactionID: active.ID}
		case !errors.Is(err, models.ErrNotFound):
			return err
		}

		customer, err := st.UpsertCustomer(ctx, models.CustomerInput{
			DocumentTypeID: cmd.DocumentTypeID,
			DocumentNumber: cmd.DocumentNumber,
			FullName:       cmd.CustomerName,
			Phone:          cmd.Phone,
			Email:          cmd.Email,
		}, now)
		if err != nil {
			return err
		}

		rate, err := s.resolveRate(ctx, st, zone, now)
		if err != nil {
			return err
		}

		tx := &models.Transaction{
			VehicleID:            vehicle.ID,
			CustomerID:           customer.ID,
			SpaceID:              space.ID,
			ZoneID:               zone.ID,
			EntryDocumentTypeID:  cmd.DocumentTypeID,
			EntryDocumentNumber:  models.NormalizeDocument(cmd.DocumentNumber),
			EntryMethod:          cmd.Method,
			EntryPhotoURL:        cmd.PhotoURL,
			EntryPlateConfidence: cmd.PlateConfidence,
		}
		tx.SnapshotRate(rate)
		tx.RecordEntry(cmd.OperatorID, now)
		tx.AppendNotes(cmd.Notes, now)

		if err := st.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		ok, err := st.MarkSpaceOccupied(ctx, space.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return &SpaceNotAvailableError{SpaceID: space.ID, Status: models.SpaceOccupied}
		}
		created = tx
		return nil
	})
	if err != nil {
		var ce *models.ConflictError
		if errors.As(err, &ce) {
			err = s.entryConflict(ctx, ce, plate, vehicleID, cmd.SpaceID)
		}
		s.metrics.Operation("record_entry", err)
		return nil, err
	}
	s.metrics.Operation("record_entry", nil)
	s.log.Info("entry recorded",
		"transaction_id", created.ID, "plate", plate, "zone_id", created.ZoneID, "space_id", created.SpaceID, "rate_id", created.RateID)
	return s.afterCommit(ctx, messages.EventEntryRecorded, created, nil), nil
}

// entryConflict translates a lost race on the ACTIVE unique indexes. The failed unit of
// work is gone, so the winner is looked up outside of it.
func (s *Service) entryConflict(ctx context.Context, ce *models.ConflictError, plate string, vehicleID, spaceID uint64) error {
	switch ce.Constraint {
	case models.ConstraintActiveVehicle:
		e := &VehicleAlreadyInsideError{Plate: plate}
		if active, err := s.repo.GetActiveTransactionByVehicle(ctx, vehicleID); err == nil {
			e.TransactionID = active.ID
		}
		return e
	case models.ConstraintActiveSpace:
		return &SpaceNotAvailableError{SpaceID: spaceID, Status: models.SpaceOccupied}
	}
	return ce
}

// resolveRate picks the rate bound to the zone's parking for the shift covering now,
// falling back to the first usable active rate.
func (s *Service) resolveRate(ctx context.Context, st Store, zone *models.Zone, now time.Time) (*models.Rate, error) {
	local := now.In(s.location)
	shifts, err := st.ListActiveShifts(ctx)
	if err != nil {
		return nil, err
	}
	for _, sh := range shifts {
		if !sh.IsUsable() || !sh.Contains(local) {
			continue
		}
		r, err := st.FindShiftRate(ctx, zone.ParkingID, sh.ID)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if r.IsUsable() {
			return r, nil
		}
	}

	rates, err := st.ListActiveRates(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rates {
		if r.IsUsable() {
			return r, nil
		}
	}
	return nil, errors.Wrap(ErrNotFound, "no usable rate")
}

func trimmed(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

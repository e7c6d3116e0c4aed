package pgparking

import (
	"context"
	"time"

	"github.com/BearBump/ParkBox/internal/models"
)

// Reference data is loaded at start-up and keyed by its natural key, so running the
// seed twice updates rows instead of duplicating them.

func (s *Storage) UpsertZone(ctx context.Context, z *models.Zone) error {
	now := time.Now().UTC()
	if z.Status == "" {
		z.Status = models.ZoneActive
	}
	if z.CameraIDs == nil {
		z.CameraIDs = []string{}
	}
	err := s.db.QueryRow(ctx, `
INSERT INTO zones (parking_id, name, code, address, description, camera_ids, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
ON CONFLICT (parking_id, code) DO UPDATE
SET name = EXCLUDED.name,
    address = EXCLUDED.address,
    description = EXCLUDED.description,
    camera_ids = EXCLUDED.camera_ids,
    status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at
RETURNING id, created_at, updated_at
`, z.ParkingID, z.Name, z.Code, z.Address, z.Description, z.CameraIDs, z.Status, now).Scan(&z.ID, &z.CreatedAt, &z.UpdatedAt)
	return mapErr(err, "upsert zone")
}

// UpsertSpace never overwrites the status of an existing space: occupancy belongs to
// the running system, not to the seed file.
func (s *Storage) UpsertSpace(ctx context.Context, sp *models.Space) error {
	now := time.Now().UTC()
	if sp.Status == "" {
		sp.Status = models.SpaceAvailable
	}
	if sp.Type == "" {
		sp.Type = models.SpacePerpendicular
	}
	err := s.db.QueryRow(ctx, `
INSERT INTO spaces (
  zone_id, code, type, description, width, length, sensor_id, has_camera_coverage, status, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
ON CONFLICT (zone_id, code) DO UPDATE
SET type = EXCLUDED.type,
    description = EXCLUDED.description,
    width = EXCLUDED.width,
    length = EXCLUDED.length,
    sensor_id = EXCLUDED.sensor_id,
    has_camera_coverage = EXCLUDED.has_camera_coverage,
    updated_at = EXCLUDED.updated_at
RETURNING id, status, created_at, updated_at
`, sp.ZoneID, sp.Code, sp.Type, sp.Description, sp.Width, sp.Length, sp.SensorID, sp.HasCameraCoverage, sp.Status, now).
		Scan(&sp.ID, &sp.Status, &sp.CreatedAt, &sp.UpdatedAt)
	return mapErr(err, "upsert space")
}

func (s *Storage) UpsertRate(ctx context.Context, r *models.Rate) error {
	now := time.Now().UTC()
	if r.Currency == "" {
		r.Currency = models.DefaultCurrency
	}
	err := s.db.QueryRow(ctx, `
INSERT INTO rates (name, description, amount, currency, billing_policy, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
ON CONFLICT (name) DO UPDATE
SET description = EXCLUDED.description,
    amount = EXCLUDED.amount,
    currency = EXCLUDED.currency,
    billing_policy = EXCLUDED.billing_policy,
    active = EXCLUDED.active,
    updated_at = EXCLUDED.updated_at
RETURNING id, created_at, updated_at
`, r.Name, r.Description, decArg(r.Amount), r.Currency, r.BillingPolicy, r.Active, now).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	return mapErr(err, "upsert rate")
}

func (s *Storage) UpsertShift(ctx context.Context, sh *models.Shift) error {
	now := time.Now().UTC()
	err := s.db.QueryRow(ctx, `
INSERT INTO shifts (name, code, start_minute, end_minute, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (code) DO UPDATE
SET name = EXCLUDED.name,
    start_minute = EXCLUDED.start_minute,
    end_minute = EXCLUDED.end_minute,
    active = EXCLUDED.active,
    updated_at = EXCLUDED.updated_at
RETURNING id, created_at, updated_at
`, sh.Name, sh.Code, sh.StartMinute, sh.EndMinute, sh.Active, now).Scan(&sh.ID, &sh.CreatedAt, &sh.UpdatedAt)
	return mapErr(err, "upsert shift")
}

func (s *Storage) BindShiftRate(ctx context.Context, b *models.ParkingShiftRate) error {
	err := s.db.QueryRow(ctx, `
INSERT INTO parking_shift_rates (parking_id, shift_id, rate_id, active)
VALUES ($1,$2,$3,$4)
ON CONFLICT (parking_id, shift_id) DO UPDATE
SET rate_id = EXCLUDED.rate_id, active = EXCLUDED.active
RETURNING id
`, b.ParkingID, b.ShiftID, b.RateID, b.Active).Scan(&b.ID)
	return mapErr(err, "bind shift rate")
}

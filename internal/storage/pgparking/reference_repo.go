package pgparking

import (
	"context"
	"time"

	"github.com/BearBump/ParkBox/internal/models"
	"github.com/pkg/errors"
)

// Счётчики зоны не хранятся: считаются по spaces при каждом чтении.
const zoneSelect = `
SELECT
  z.id, z.parking_id, z.name, z.code, z.address, z.description, z.camera_ids, z.status,
  (SELECT count(*) FROM spaces s WHERE s.zone_id = z.id AND s.deleted_at IS NULL)::int,
  (SELECT count(*) FROM spaces s WHERE s.zone_id = z.id AND s.deleted_at IS NULL AND s.status = 'AVAILABLE')::int,
  z.created_at, z.updated_at, z.deleted_at
FROM zones z
`

func scanZone(row rowScanner) (*models.Zone, error) {
	var z models.Zone
	if err := row.Scan(
		&z.ID, &z.ParkingID, &z.Name, &z.Code, &z.Address, &z.Description, &z.CameraIDs, &z.Status,
		&z.TotalSpaces, &z.AvailableSpaces,
		&z.CreatedAt, &z.UpdatedAt, &z.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &z, nil
}

func (s *store) GetZone(ctx context.Context, id uint64) (*models.Zone, error) {
	z, err := scanZone(s.q.QueryRow(ctx, zoneSelect+`WHERE z.id = $1 AND z.deleted_at IS NULL`, id))
	if err != nil {
		return nil, mapErr(err, "select zone")
	}
	return z, nil
}

const spaceColumns = `
  id, zone_id, code, type, description, width::float8, length::float8, sensor_id,
  has_camera_coverage, status, created_at, updated_at, deleted_at
`

func scanSpace(row rowScanner) (*models.Space, error) {
	var sp models.Space
	if err := row.Scan(
		&sp.ID, &sp.ZoneID, &sp.Code, &sp.Type, &sp.Description, &sp.Width, &sp.Length, &sp.SensorID,
		&sp.HasCameraCoverage, &sp.Status, &sp.CreatedAt, &sp.UpdatedAt, &sp.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &sp, nil
}

// GetSpace returns soft-deleted spaces too: callers decide through IsAvailableForOccupation.
func (s *store) GetSpace(ctx context.Context, id uint64) (*models.Space, error) {
	sp, err := scanSpace(s.q.QueryRow(ctx, `SELECT`+spaceColumns+`FROM spaces WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "select space")
	}
	return sp, nil
}

// UpdateSpaceStatus skips OCCUPIED rows. A concurrent entry holding the row lock is waited
// for and its OCCUPIED status is re-checked before the write.
func (s *store) UpdateSpaceStatus(ctx context.Context, space *models.Space) (bool, error) {
	tag, err := s.q.Exec(ctx, `
UPDATE spaces
SET status = $2, deleted_at = $3, updated_at = $4
WHERE id = $1 AND status <> 'OCCUPIED'
`, space.ID, space.Status, space.DeletedAt, space.UpdatedAt.UTC())
	if err != nil {
		return false, mapErr(err, "update space status")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM spaces WHERE id = $1)`, space.ID).Scan(&exists); err != nil {
		return false, mapErr(err, "check space")
	}
	if !exists {
		return false, errors.Wrap(models.ErrNotFound, "update space status")
	}
	return false, nil
}

// MarkSpaceOccupied is the only way a space becomes OCCUPIED. Of two concurrent callers
// exactly one sees a changed row.
func (s *store) MarkSpaceOccupied(ctx context.Context, spaceID uint64, now time.Time) (bool, error) {
	tag, err := s.q.Exec(ctx, `
UPDATE spaces
SET status = 'OCCUPIED', updated_at = $2
WHERE id = $1 AND status = 'AVAILABLE' AND deleted_at IS NULL
`, spaceID, now.UTC())
	if err != nil {
		return false, mapErr(err, "occupy space")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *store) MarkSpaceAvailable(ctx context.Context, spaceID uint64, now time.Time) error {
	tag, err := s.q.Exec(ctx, `
UPDATE spaces
SET status = 'AVAILABLE', updated_at = $2
WHERE id = $1
`, spaceID, now.UTC())
	if err != nil {
		return mapErr(err, "release space")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "release space")
	}
	return nil
}

func (s *store) UpsertVehicle(ctx context.Context, plate string, now time.Time) (*models.Vehicle, error) {
	var v models.Vehicle
	err := s.q.QueryRow(ctx, `
INSERT INTO vehicles (license_plate, first_seen_at, last_seen_at, total_visits, created_at, updated_at)
VALUES ($1, $2, $2, 1, $2, $2)
ON CONFLICT (license_plate) DO UPDATE
SET total_visits = vehicles.total_visits + 1,
    last_seen_at = EXCLUDED.last_seen_at,
    updated_at = EXCLUDED.updated_at,
    deleted_at = NULL
RETURNING id, license_plate, color, brand, first_seen_at, last_seen_at, total_visits, created_at, updated_at, deleted_at
`, models.NormalizePlate(plate), now.UTC()).Scan(
		&v.ID, &v.LicensePlate, &v.Color, &v.Brand, &v.FirstSeenAt, &v.LastSeenAt, &v.TotalVisits,
		&v.CreatedAt, &v.UpdatedAt, &v.DeletedAt,
	)
	if err != nil {
		return nil, mapErr(err, "upsert vehicle")
	}
	return &v, nil
}

// UpsertCustomer finds the customer by document or creates it. Contact fields are only
// filled in when they were empty.
func (s *store) UpsertCustomer(ctx context.Context, in models.CustomerInput, now time.Time) (*models.Customer, error) {
	c := models.NewCustomer(in, now.UTC())
	err := s.q.QueryRow(ctx, `
INSERT INTO customers (
  document_type_id, document_number, first_name, last_name, phone, email,
  first_seen_at, last_seen_at, total_visits, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7,1,$7,$7)
ON CONFLICT (document_type_id, document_number) DO UPDATE
SET total_visits = customers.total_visits + 1,
    last_seen_at = EXCLUDED.last_seen_at,
    phone = COALESCE(customers.phone, EXCLUDED.phone),
    email = COALESCE(customers.email, EXCLUDED.email),
    first_name = CASE WHEN customers.first_name = '' THEN EXCLUDED.first_name ELSE customers.first_name END,
    last_name = CASE WHEN customers.first_name = '' THEN EXCLUDED.last_name ELSE customers.last_name END,
    updated_at = EXCLUDED.updated_at,
    deleted_at = NULL
RETURNING
  id, document_type_id, document_number, first_name, last_name, phone, email, address,
  first_seen_at, last_seen_at, total_visits, auth_external_id, created_at, updated_at, deleted_at
`, c.DocumentTypeID, c.DocumentNumber, c.FirstName, c.LastName, c.Phone, c.Email, c.CreatedAt).Scan(
		&c.ID, &c.DocumentTypeID, &c.DocumentNumber, &c.FirstName, &c.LastName, &c.Phone, &c.Email, &c.Address,
		&c.FirstSeenAt, &c.LastSeenAt, &c.TotalVisits, &c.AuthExternalID, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt,
	)
	if err != nil {
		return nil, mapErr(err, "upsert customer")
	}
	return c, nil
}

const shiftColumns = `id, name, code, start_minute, end_minute, active, created_at, updated_at, deleted_at`

func scanShift(row rowScanner) (*models.Shift, error) {
	var sh models.Shift
	if err := row.Scan(
		&sh.ID, &sh.Name, &sh.Code, &sh.StartMinute, &sh.EndMinute, &sh.Active,
		&sh.CreatedAt, &sh.UpdatedAt, &sh.DeletedAt,
	); err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *store) ListActiveShifts(ctx context.Context) ([]*models.Shift, error) {
	rows, err := s.q.Query(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE active AND deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "select shifts")
	}
	defer rows.Close()

	var out []*models.Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan shift")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

const rateColumns = `
  r.id, r.name, r.description, r.amount::text, r.currency, r.billing_policy, r.active,
  r.created_at, r.updated_at, r.deleted_at
`

func scanRate(row rowScanner) (*models.Rate, error) {
	var (
		r      models.Rate
		amount string
	)
	if err := row.Scan(
		&r.ID, &r.Name, &r.Description, &amount, &r.Currency, &r.BillingPolicy, &r.Active,
		&r.CreatedAt, &r.UpdatedAt, &r.DeletedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if r.Amount, err = parseDec(amount); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *store) FindShiftRate(ctx context.Context, parkingID, shiftID uint64) (*models.Rate, error) {
	r, err := scanRate(s.q.QueryRow(ctx, `
SELECT`+rateColumns+`
FROM parking_shift_rates psr
JOIN rates r ON r.id = psr.rate_id
WHERE psr.parking_id = $1 AND psr.shift_id = $2 AND psr.active
  AND r.active AND r.deleted_at IS NULL AND r.amount > 0
`, parkingID, shiftID))
	if err != nil {
		return nil, mapErr(err, "select shift rate")
	}
	return r, nil
}

func (s *store) ListActiveRates(ctx context.Context) ([]*models.Rate, error) {
	rows, err := s.q.Query(ctx, `SELECT`+rateColumns+`FROM rates r WHERE r.active AND r.deleted_at IS NULL ORDER BY r.id`)
	if err != nil {
		return nil, errors.Wrap(err, "select rates")
	}
	defer rows.Close()

	var out []*models.Rate
	for rows.Next() {
		r, err := scanRate(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan rate")
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

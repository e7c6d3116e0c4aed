package pgparking

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS zones (
  id BIGSERIAL PRIMARY KEY,
  parking_id BIGINT NOT NULL,
  name TEXT NOT NULL,
  code TEXT NOT NULL,
  address TEXT NULL,
  description TEXT NULL,
  camera_ids TEXT[] NOT NULL DEFAULT '{}',
  status TEXT NOT NULL DEFAULT 'ACTIVE',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  deleted_at TIMESTAMPTZ NULL,
  UNIQUE (parking_id, code)
)`,
		`
CREATE TABLE IF NOT EXISTS spaces (
  id BIGSERIAL PRIMARY KEY,
  zone_id BIGINT NOT NULL REFERENCES zones(id),
  code TEXT NOT NULL,
  type TEXT NOT NULL DEFAULT 'PERPENDICULAR',
  description TEXT NULL,
  width NUMERIC(6,2) NULL,
  length NUMERIC(6,2) NULL,
  sensor_id TEXT NULL,
  has_camera_coverage BOOLEAN NOT NULL DEFAULT false,
  status TEXT NOT NULL DEFAULT 'AVAILABLE',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  deleted_at TIMESTAMPTZ NULL,
  UNIQUE (zone_id, code)
)`,
		`CREATE INDEX IF NOT EXISTS idx_spaces_zone_status ON spaces(zone_id, status) WHERE deleted_at IS NULL`,
		`
CREATE TABLE IF NOT EXISTS vehicles (
  id BIGSERIAL PRIMARY KEY,
  license_plate TEXT NOT NULL UNIQUE,
  color TEXT NULL,
  brand TEXT NULL,
  first_seen_at TIMESTAMPTZ NOT NULL,
  last_seen_at TIMESTAMPTZ NOT NULL,
  total_visits INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  deleted_at TIMESTAMPTZ NULL
)`,
		`
CREATE TABLE IF NOT EXISTS customers (
  id BIGSERIAL PRIMARY KEY,
  document_type_id BIGINT NOT NULL,
  document_number TEXT NOT NULL,
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  phone TEXT NULL,
  email TEXT NULL,
  address TEXT NULL,
  first_seen_at TIMESTAMPTZ NOT NULL,
  last_seen_at TIMESTAMPTZ NOT NULL,
  total_visits INT NOT NULL DEFAULT 0,
  auth_external_id BIGINT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  deleted_at TIMESTAMPTZ NULL,
  UNIQUE (document_type_id, document_number)
)`,
		`
CREATE TABLE IF NOT EXISTS rates (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  description TEXT NULL,
  amount NUMERIC(12,2) NOT NULL,
  currency TEXT NOT NULL DEFAULT 'PEN',
  billing_policy TEXT NOT NULL DEFAULT 'FRACTIONAL',
  active BOOLEAN NOT NULL DEFAULT true,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  deleted_at TIMESTAMPTZ NULL
)`,
		`
CREATE TABLE IF NOT EXISTS shifts (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  code TEXT NOT NULL UNIQUE,
  start_minute INT NOT NULL CHECK (start_minute BETWEEN 0 AND 1439),
  end_minute INT NOT NULL CHECK (end_minute BETWEEN 0 AND 1439),
  active BOOLEAN NOT NULL DEFAULT true,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  deleted_at TIMESTAMPTZ NULL
)`,
		`
CREATE TABLE IF NOT EXISTS parking_shift_rates (
  id BIGSERIAL PRIMARY KEY,
  parking_id BIGINT NOT NULL,
  shift_id BIGINT NOT NULL REFERENCES shifts(id),
  rate_id BIGINT NOT NULL REFERENCES rates(id),
  active BOOLEAN NOT NULL DEFAULT true,
  UNIQUE (parking_id, shift_id)
)`,
		`
CREATE TABLE IF NOT EXISTS transactions (
  id BIGSERIAL PRIMARY KEY,
  vehicle_id BIGINT NOT NULL REFERENCES vehicles(id),
  customer_id BIGINT NOT NULL REFERENCES customers(id),
  space_id BIGINT NOT NULL REFERENCES spaces(id),
  zone_id BIGINT NOT NULL REFERENCES zones(id),
  rate_id BIGINT NOT NULL REFERENCES rates(id),
  rate_amount NUMERIC(12,2) NOT NULL,
  currency TEXT NOT NULL,
  billing_policy TEXT NOT NULL,
  entry_document_type_id BIGINT NOT NULL,
  entry_document_number TEXT NOT NULL,
  exit_document_type_id BIGINT NULL,
  exit_document_number TEXT NULL,
  entry_time TIMESTAMPTZ NOT NULL,
  exit_time TIMESTAMPTZ NULL,
  duration_minutes INT NULL,
  calculated_amount NUMERIC(12,2) NULL,
  discount_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
  total_amount NUMERIC(12,2) NULL,
  status TEXT NOT NULL,
  payment_status TEXT NOT NULL,
  entry_operator_id BIGINT NULL,
  exit_operator_id BIGINT NULL,
  entry_method TEXT NOT NULL DEFAULT 'MANUAL',
  exit_method TEXT NULL,
  entry_photo_url TEXT NULL,
  exit_photo_url TEXT NULL,
  entry_plate_confidence DOUBLE PRECISION NULL,
  exit_plate_confidence DOUBLE PRECISION NULL,
  notes TEXT NULL,
  cancellation_reason TEXT NULL,
  cancelled_by BIGINT NULL,
  document_mismatch BOOLEAN NOT NULL DEFAULT false,
  mismatch_resolved_at TIMESTAMPTZ NULL,
  mismatch_resolved_by BIGINT NULL,
  receipt_sent BOOLEAN NOT NULL DEFAULT false,
  receipt_sent_at TIMESTAMPTZ NULL,
  receipt_whatsapp_status TEXT NULL,
  receipt_email_status TEXT NULL,
  overdue_alerted_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  CHECK ((exit_time IS NULL) = (status = 'ACTIVE'))
)`,
		// Одна активная стоянка на машину и на место.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_active_vehicle ON transactions(vehicle_id) WHERE status = 'ACTIVE'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_active_space ON transactions(space_id) WHERE status = 'ACTIVE'`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_status_entry_time ON transactions(status, entry_time)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_payment_exit_time ON transactions(payment_status, exit_time) WHERE status = 'COMPLETED'`,
		`
CREATE TABLE IF NOT EXISTS payments (
  id BIGSERIAL PRIMARY KEY,
  transaction_id BIGINT NOT NULL REFERENCES transactions(id),
  payment_type_id BIGINT NOT NULL,
  amount NUMERIC(12,2) NOT NULL,
  currency TEXT NOT NULL,
  payment_date TIMESTAMPTZ NOT NULL,
  reference_number TEXT NULL,
  operator_id BIGINT NOT NULL,
  status TEXT NOT NULL,
  refund_amount NUMERIC(12,2) NULL,
  refund_date TIMESTAMPTZ NULL,
  refund_reason TEXT NULL,
  refunded_by BIGINT NULL,
  notes TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_transaction ON payments(transaction_id)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

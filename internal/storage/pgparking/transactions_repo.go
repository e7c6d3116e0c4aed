package pgparking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/ParkBox/internal/models"
	"github.com/BearBump/ParkBox/internal/services/parking"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// transactionSelect joins the display fields; they are read-only on the model.
const transactionSelect = `
SELECT
  t.id, t.vehicle_id, t.customer_id, t.space_id, t.zone_id, t.rate_id,
  t.rate_amount::text, t.currency, t.billing_policy,
  t.entry_document_type_id, t.entry_document_number, t.exit_document_type_id, t.exit_document_number,
  t.entry_time, t.exit_time, t.duration_minutes,
  t.calculated_amount::text, t.discount_amount::text, t.total_amount::text,
  t.status, t.payment_status,
  t.entry_operator_id, t.exit_operator_id, t.entry_method, t.exit_method,
  t.entry_photo_url, t.exit_photo_url, t.entry_plate_confidence, t.exit_plate_confidence, t.notes,
  t.cancellation_reason, t.cancelled_by,
  t.document_mismatch, t.mismatch_resolved_at, t.mismatch_resolved_by,
  t.receipt_sent, t.receipt_sent_at, t.receipt_whatsapp_status, t.receipt_email_status,
  t.overdue_alerted_at, t.created_at, t.updated_at,
  v.license_plate, trim(c.first_name || ' ' || c.last_name), z.name, z.code, s.code, r.name
FROM transactions t
JOIN vehicles v ON v.id = t.vehicle_id
JOIN customers c ON c.id = t.customer_id
JOIN zones z ON z.id = t.zone_id
JOIN spaces s ON s.id = t.space_id
JOIN rates r ON r.id = t.rate_id
`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		t                    models.Transaction
		rateAmount, discount string
		calculated, total    *string
		exitMethod           *string
	)
	if err := row.Scan(
		&t.ID, &t.VehicleID, &t.CustomerID, &t.SpaceID, &t.ZoneID, &t.RateID,
		&rateAmount, &t.Currency, &t.BillingPolicy,
		&t.EntryDocumentTypeID, &t.EntryDocumentNumber, &t.ExitDocumentTypeID, &t.ExitDocumentNumber,
		&t.EntryTime, &t.ExitTime, &t.DurationMinutes,
		&calculated, &discount, &total,
		&t.Status, &t.PaymentStatus,
		&t.EntryOperatorID, &t.ExitOperatorID, &t.EntryMethod, &exitMethod,
		&t.EntryPhotoURL, &t.ExitPhotoURL, &t.EntryPlateConfidence, &t.ExitPlateConfidence, &t.Notes,
		&t.CancellationReason, &t.CancelledBy,
		&t.DocumentMismatch, &t.MismatchResolvedAt, &t.MismatchResolvedBy,
		&t.ReceiptSent, &t.ReceiptSentAt, &t.ReceiptWhatsAppStatus, &t.ReceiptEmailStatus,
		&t.OverdueAlertedAt, &t.CreatedAt, &t.UpdatedAt,
		&t.LicensePlate, &t.CustomerName, &t.ZoneName, &t.ZoneCode, &t.SpaceCode, &t.RateName,
	); err != nil {
		return nil, err
	}

	var err error
	if t.RateAmount, err = parseDec(rateAmount); err != nil {
		return nil, err
	}
	if t.DiscountAmount, err = parseDec(discount); err != nil {
		return nil, err
	}
	if t.CalculatedAmount, err = parseNullDec(calculated); err != nil {
		return nil, err
	}
	if t.TotalAmount, err = parseNullDec(total); err != nil {
		return nil, err
	}
	if exitMethod != nil {
		m := models.CaptureMethod(*exitMethod)
		t.ExitMethod = &m
	}
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	defer rows.Close()
	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan transaction")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *store) GetTransaction(ctx context.Context, id uint64) (*models.Transaction, error) {
	t, err := scanTransaction(s.q.QueryRow(ctx, transactionSelect+`WHERE t.id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "select transaction")
	}
	return t, nil
}

// GetTransactionForUpdate locks the transaction row until the surrounding unit of work ends.
func (s *store) GetTransactionForUpdate(ctx context.Context, id uint64) (*models.Transaction, error) {
	t, err := scanTransaction(s.q.QueryRow(ctx, transactionSelect+`WHERE t.id = $1 FOR UPDATE OF t`, id))
	if err != nil {
		return nil, mapErr(err, "select transaction for update")
	}
	return t, nil
}

func (s *store) GetActiveTransactionByVehicle(ctx context.Context, vehicleID uint64) (*models.Transaction, error) {
	t, err := scanTransaction(s.q.QueryRow(ctx, transactionSelect+`WHERE t.vehicle_id = $1 AND t.status = 'ACTIVE'`, vehicleID))
	if err != nil {
		return nil, mapErr(err, "select active transaction by vehicle")
	}
	return t, nil
}

func (s *store) GetActiveTransactionByPlate(ctx context.Context, plate string) (*models.Transaction, error) {
	t, err := scanTransaction(s.q.QueryRow(ctx, transactionSelect+`WHERE v.license_plate = $1 AND t.status = 'ACTIVE'`,
		models.NormalizePlate(plate)))
	if err != nil {
		return nil, mapErr(err, "select active transaction by plate")
	}
	return t, nil
}

func (s *store) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	err := s.q.QueryRow(ctx, `
INSERT INTO transactions (
  vehicle_id, customer_id, space_id, zone_id, rate_id,
  rate_amount, currency, billing_policy,
  entry_document_type_id, entry_document_number,
  entry_time, discount_amount, status, payment_status,
  entry_operator_id, entry_method, entry_photo_url, entry_plate_confidence, notes,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
RETURNING id
`,
		tx.VehicleID, tx.CustomerID, tx.SpaceID, tx.ZoneID, tx.RateID,
		decArg(tx.RateAmount), tx.Currency, tx.BillingPolicy,
		tx.EntryDocumentTypeID, tx.EntryDocumentNumber,
		tx.EntryTime.UTC(), decArg(tx.DiscountAmount), tx.Status, tx.PaymentStatus,
		tx.EntryOperatorID, tx.EntryMethod, tx.EntryPhotoURL, tx.EntryPlateConfidence, tx.Notes,
		tx.CreatedAt.UTC(), tx.UpdatedAt.UTC(),
	).Scan(&tx.ID)
	return mapErr(err, "insert transaction")
}

// UpdateTransaction writes every mutable column. Entry-side fields are immutable after insert.
func (s *store) UpdateTransaction(ctx context.Context, tx *models.Transaction) error {
	var exitMethod *string
	if tx.ExitMethod != nil {
		m := string(*tx.ExitMethod)
		exitMethod = &m
	}
	tag, err := s.q.Exec(ctx, `
UPDATE transactions
SET
  exit_document_type_id = $2,
  exit_document_number = $3,
  exit_time = $4,
  duration_minutes = $5,
  calculated_amount = $6,
  discount_amount = $7,
  total_amount = $8,
  status = $9,
  payment_status = $10,
  exit_operator_id = $11,
  exit_method = $12,
  exit_photo_url = $13,
  exit_plate_confidence = $14,
  notes = $15,
  cancellation_reason = $16,
  cancelled_by = $17,
  document_mismatch = $18,
  mismatch_resolved_at = $19,
  mismatch_resolved_by = $20,
  receipt_sent = $21,
  receipt_sent_at = $22,
  receipt_whatsapp_status = $23,
  receipt_email_status = $24,
  overdue_alerted_at = $25,
  updated_at = $26
WHERE id = $1
`,
		tx.ID,
		tx.ExitDocumentTypeID, tx.ExitDocumentNumber, tx.ExitTime, tx.DurationMinutes,
		nullDecArg(tx.CalculatedAmount), decArg(tx.DiscountAmount), nullDecArg(tx.TotalAmount),
		tx.Status, tx.PaymentStatus,
		tx.ExitOperatorID, exitMethod, tx.ExitPhotoURL, tx.ExitPlateConfidence, tx.Notes,
		tx.CancellationReason, tx.CancelledBy,
		tx.DocumentMismatch, tx.MismatchResolvedAt, tx.MismatchResolvedBy,
		tx.ReceiptSent, tx.ReceiptSentAt, tx.ReceiptWhatsAppStatus, tx.ReceiptEmailStatus,
		tx.OverdueAlertedAt, tx.UpdatedAt.UTC(),
	)
	if err != nil {
		return mapErr(err, "update transaction")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "update transaction")
	}
	return nil
}

const paymentColumns = `
  id, transaction_id, payment_type_id, amount::text, currency, payment_date, reference_number,
  operator_id, status, refund_amount::text, refund_date, refund_reason, refunded_by, notes,
  created_at, updated_at
`

func (s *store) InsertPayment(ctx context.Context, p *models.Payment) error {
	err := s.q.QueryRow(ctx, `
INSERT INTO payments (
  transaction_id, payment_type_id, amount, currency, payment_date, reference_number,
  operator_id, status, notes, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id
`,
		p.TransactionID, p.PaymentTypeID, decArg(p.Amount), p.Currency, p.PaymentDate.UTC(), p.ReferenceNumber,
		p.OperatorID, p.Status, p.Notes, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	).Scan(&p.ID)
	return mapErr(err, "insert payment")
}

func (s *store) GetPaymentByTransaction(ctx context.Context, transactionID uint64) (*models.Payment, error) {
	var (
		p      models.Payment
		amount string
		refund *string
	)
	err := s.q.QueryRow(ctx, `SELECT`+paymentColumns+`FROM payments WHERE transaction_id = $1`, transactionID).Scan(
		&p.ID, &p.TransactionID, &p.PaymentTypeID, &amount, &p.Currency, &p.PaymentDate, &p.ReferenceNumber,
		&p.OperatorID, &p.Status, &refund, &p.RefundDate, &p.RefundReason, &p.RefundedBy, &p.Notes,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err, "select payment")
	}
	if p.Amount, err = parseDec(amount); err != nil {
		return nil, err
	}
	if p.RefundAmount, err = parseNullDec(refund); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *store) UpdatePayment(ctx context.Context, p *models.Payment) error {
	tag, err := s.q.Exec(ctx, `
UPDATE payments
SET status = $2, refund_amount = $3, refund_date = $4, refund_reason = $5, refunded_by = $6,
    notes = $7, updated_at = $8
WHERE id = $1
`, p.ID, p.Status, nullDecArg(p.RefundAmount), p.RefundDate, p.RefundReason, p.RefundedBy, p.Notes, p.UpdatedAt.UTC())
	if err != nil {
		return mapErr(err, "update payment")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "update payment")
	}
	return nil
}

// whereClause renders the filter as SQL conditions with positional args.
func whereClause(f parking.TransactionFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if len(f.Statuses) > 0 {
		st := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			st = append(st, string(s))
		}
		add("t.status = ANY($%d)", st)
	}
	if f.PaymentStatus != nil {
		add("t.payment_status = $%d", string(*f.PaymentStatus))
	}
	if f.ZoneID != nil {
		add("t.zone_id = $%d", *f.ZoneID)
	}
	if f.Plate != "" {
		add("v.license_plate LIKE $%d", escapeLike(models.NormalizePlate(f.Plate))+"%")
	}
	if f.EnteredFrom != nil {
		add("t.entry_time >= $%d", f.EnteredFrom.UTC())
	}
	if f.EnteredBefore != nil {
		add("t.entry_time < $%d", f.EnteredBefore.UTC())
	}
	if f.Mismatch != nil {
		add("t.document_mismatch = $%d", *f.Mismatch)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND ") + "\n", args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *Storage) ListTransactions(ctx context.Context, f parking.TransactionFilter, page models.Page) ([]*models.Transaction, int, error) {
	where, args := whereClause(f)

	var total int
	err := s.db.QueryRow(ctx, `
SELECT count(*)
FROM transactions t
JOIN vehicles v ON v.id = t.vehicle_id
`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, errors.Wrap(err, "count transactions")
	}

	order := "ORDER BY t.entry_time DESC, t.id DESC"
	if f.OldestFirst {
		order = "ORDER BY t.entry_time ASC, t.id ASC"
	}
	n := len(args)
	args = append(args, page.Size, page.Offset())
	rows, err := s.db.Query(ctx, transactionSelect+where+order+fmt.Sprintf("\nLIMIT $%d OFFSET $%d", n+1, n+2), args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "select transactions")
	}
	out, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ClaimOverdueStays берёт пачку просроченных стоянок и помечает их, чтобы алерт
// ушёл ровно один раз даже при нескольких воркерах (FOR UPDATE SKIP LOCKED).
func (s *Storage) ClaimOverdueStays(ctx context.Context, enteredBefore, now time.Time, limit int) ([]*models.Transaction, error) {
	return s.claim(ctx, `
WITH picked AS (
  SELECT id FROM transactions
  WHERE status = 'ACTIVE' AND entry_time < $1 AND overdue_alerted_at IS NULL
  ORDER BY entry_time ASC
  LIMIT $3
  FOR UPDATE SKIP LOCKED
)
UPDATE transactions t
SET overdue_alerted_at = $2, updated_at = $2
FROM picked
WHERE t.id = picked.id
RETURNING t.id
`, enteredBefore.UTC(), now.UTC(), limit)
}

// MarkOverduePayments переводит неоплаченные после grace-периода транзакции в OVERDUE.
// Неразрешённые расхождения документов не трогаем: у них ещё нет суммы.
func (s *Storage) MarkOverduePayments(ctx context.Context, exitedBefore, now time.Time, limit int) ([]*models.Transaction, error) {
	return s.claim(ctx, `
WITH picked AS (
  SELECT id FROM transactions
  WHERE status = 'COMPLETED' AND payment_status = 'PENDING' AND exit_time < $1
    AND NOT (document_mismatch AND mismatch_resolved_at IS NULL)
  ORDER BY exit_time ASC
  LIMIT $3
  FOR UPDATE SKIP LOCKED
)
UPDATE transactions t
SET payment_status = 'OVERDUE', updated_at = $2
FROM picked
WHERE t.id = picked.id
RETURNING t.id
`, exitedBefore.UTC(), now.UTC(), limit)
}

func (s *Storage) claim(ctx context.Context, update string, cutoff, now time.Time, limit int) ([]*models.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, update, cutoff, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "claim transactions")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, errors.Wrap(err, "collect claimed ids")
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err = tx.Query(ctx, transactionSelect+`WHERE t.id = ANY($1) ORDER BY t.id`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select claimed transactions")
	}
	out, err := collectTransactions(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return out, nil
}

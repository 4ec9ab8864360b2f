package payout

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const payoutColumns = `
	id, vendor_id, amount, currency, status, method, reason,
	available_balance_snapshot, destination_name, destination_number,
	transfer_reference, failure_reason, review_note, reviewed_by,
	actual_paid_amount, requested_at, processed_at, settled_at,
	created_at, updated_at`

type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a Postgres-backed payout repository.
func NewPostgresRepository(db *sql.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateWithReservation(ctx context.Context, p *Request) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE vendors
		SET available_balance = available_balance - $1,
		    pending_balance = pending_balance + $1,
		    updated_at = NOW()
		WHERE id = $2 AND available_balance >= $1`,
		p.Amount, p.VendorID,
	)
	if err != nil {
		return fmt.Errorf("failed to reserve payout amount: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInsufficientBalance
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payout_requests (
			id, vendor_id, amount, currency, status, method, reason,
			available_balance_snapshot, destination_name, destination_number,
			requested_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW(), NOW())`,
		p.ID, p.VendorID, p.Amount, p.Currency, p.Status, p.Method, p.Reason,
		p.AvailableBalanceSnapshot, p.DestinationName, p.DestinationNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to create payout request: %w", err)
	}
	return tx.Commit()
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*Request, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+payoutColumns+` FROM payout_requests WHERE id = $1`, id)
	return scanPayout(row)
}

func (r *postgresRepository) GetByTransferReference(ctx context.Context, ref string) (*Request, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+payoutColumns+` FROM payout_requests WHERE transfer_reference = $1`, ref)
	return scanPayout(row)
}

func (r *postgresRepository) ListByVendor(ctx context.Context, vendorID string) ([]*Request, error) {
	return r.list(ctx,
		`SELECT `+payoutColumns+` FROM payout_requests WHERE vendor_id = $1 ORDER BY requested_at DESC`,
		vendorID)
}

func (r *postgresRepository) ListByStatus(ctx context.Context, status Status) ([]*Request, error) {
	return r.list(ctx,
		`SELECT `+payoutColumns+` FROM payout_requests WHERE status = $1 ORDER BY requested_at ASC`,
		status)
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, id string, from, to Status, fields Fields) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payout_requests
		SET status = $1,
		    transfer_reference = COALESCE(NULLIF($2, ''), transfer_reference),
		    review_note = COALESCE(NULLIF($3, ''), review_note),
		    reviewed_by = COALESCE(NULLIF($4, ''), reviewed_by),
		    failure_reason = COALESCE(NULLIF($5, ''), failure_reason),
		    processed_at = CASE WHEN $6 THEN NOW() ELSE processed_at END,
		    updated_at = NOW()
		WHERE id = $7 AND status = $8`,
		to, fields.TransferReference, fields.ReviewNote, fields.ReviewedBy,
		fields.FailureReason, fields.Processed, id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update payout status: %w", err)
	}
	return requireRow(res)
}

func (r *postgresRepository) ReleaseReservation(ctx context.Context, id string, from, to Status, reviewedBy, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var vendorID string
	var amount float64
	err = tx.QueryRowContext(ctx, `
		UPDATE payout_requests
		SET status = $1, failure_reason = $2,
		    reviewed_by = COALESCE(NULLIF($3, ''), reviewed_by),
		    updated_at = NOW()
		WHERE id = $4 AND status = $5
		RETURNING vendor_id, amount`,
		to, reason, reviewedBy, id, from,
	).Scan(&vendorID, &amount)
	if err == sql.ErrNoRows {
		return ErrInvalidTransition
	}
	if err != nil {
		return fmt.Errorf("failed to update payout request: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE vendors
		SET pending_balance = pending_balance - $1,
		    available_balance = available_balance + $1,
		    updated_at = NOW()
		WHERE id = $2`,
		amount, vendorID,
	)
	if err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}
	return tx.Commit()
}

func (r *postgresRepository) Settle(ctx context.Context, id string, from Status, actualAmount float64) (*Request, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	row := tx.QueryRowContext(ctx, `
		UPDATE payout_requests
		SET status = $1, settled_at = $2, actual_paid_amount = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
		RETURNING `+payoutColumns,
		StatusCompleted, now, actualAmount, id, from,
	)
	p, err := scanPayout(row)
	if err == ErrNotFound {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE vendors
		SET pending_balance = pending_balance - $1,
		    total_paid_out = total_paid_out + $1,
		    updated_at = NOW()
		WHERE id = $2`,
		p.Amount, p.VendorID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to settle payout: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (r *postgresRepository) list(ctx context.Context, query string, args ...any) ([]*Request, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payout requests: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayout(row rowScanner) (*Request, error) {
	var p Request
	var reason, destName, transferRef, failureReason, reviewNote, reviewedBy sql.NullString
	var processedAt, settledAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.VendorID, &p.Amount, &p.Currency, &p.Status, &p.Method, &reason,
		&p.AvailableBalanceSnapshot, &destName, &p.DestinationNumber,
		&transferRef, &failureReason, &reviewNote, &reviewedBy,
		&p.ActualPaidAmount, &p.RequestedAt, &processedAt, &settledAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payout request: %w", err)
	}
	p.Reason = reason.String
	p.DestinationName = destName.String
	p.TransferReference = transferRef.String
	p.FailureReason = failureReason.String
	p.ReviewNote = reviewNote.String
	p.ReviewedBy = reviewedBy.String
	if processedAt.Valid {
		p.ProcessedAt = &processedAt.Time
	}
	if settledAt.Valid {
		p.SettledAt = &settledAt.Time
	}
	return &p, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

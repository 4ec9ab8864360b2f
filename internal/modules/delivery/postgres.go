package delivery

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const deliveryColumns = `
	id, order_id, provider_id, provider_name, status, cost, distance_km,
	weight_kg, pickup_address, dropoff_address, external_tracking_id,
	failure_reason, actual_delivery_at, created_at, updated_at`

type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a Postgres-backed delivery repository.
func NewPostgresRepository(db *sql.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateDelivery(ctx context.Context, d *Delivery, initial *Update) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO deliveries (
			id, order_id, provider_id, provider_name, status, cost,
			distance_km, weight_kg, pickup_address, dropoff_address,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())`,
		d.ID, d.OrderID, d.ProviderID, d.ProviderName, d.Status, d.Cost,
		d.DistanceKm, d.WeightKg, nullableString(d.PickupAddress), d.DropoffAddress,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicateDelivery
		}
		return fmt.Errorf("failed to create delivery: %w", err)
	}

	if err := insertUpdate(ctx, tx, initial); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*Delivery, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id)
	return scanDelivery(row)
}

func (r *postgresRepository) GetByOrderID(ctx context.Context, orderID string) (*Delivery, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE order_id = $1`, orderID)
	return scanDelivery(row)
}

func (r *postgresRepository) UpdateStatusWithEntry(ctx context.Context, id string, from, to Status, extTrackingID string, u *Update) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE deliveries SET
			status = $1,
			external_tracking_id = COALESCE(NULLIF($2, ''), external_tracking_id),
			actual_delivery_at = CASE WHEN $1 = $3 THEN NOW() ELSE actual_delivery_at END,
			failure_reason = CASE WHEN $1 = $4 THEN NULLIF($5, '') ELSE failure_reason END,
			updated_at = NOW()
		WHERE id = $6 AND status = $7`,
		to, extTrackingID, StatusDelivered, StatusFailed, u.Note, id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}

	if err := insertUpdate(ctx, tx, u); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *postgresRepository) Reassign(ctx context.Context, id string, from Status, providerID uuid.UUID, providerName string, cost float64, u *Update) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE deliveries
		SET provider_id = $1, provider_name = $2, cost = $3,
		    status = $4, failure_reason = NULL, updated_at = NOW()
		WHERE id = $5 AND status = $6`,
		providerID, providerName, cost, StatusPickupScheduled, id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to reassign delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}

	if err := insertUpdate(ctx, tx, u); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *postgresRepository) ListUpdates(ctx context.Context, deliveryID string) ([]*Update, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, delivery_id, status, note, source, created_at
		FROM delivery_updates WHERE delivery_id = $1 ORDER BY created_at ASC`,
		deliveryID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery updates: %w", err)
	}
	defer rows.Close()

	var out []*Update
	for rows.Next() {
		var u Update
		var note sql.NullString
		if err := rows.Scan(&u.ID, &u.DeliveryID, &u.Status, &note, &u.Source, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery update: %w", err)
		}
		u.Note = note.String
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (r *postgresRepository) ListByStatus(ctx context.Context, status Status) ([]*Delivery, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE status = $1 ORDER BY created_at ASC`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var out []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ── helpers ──────────────────────────────────────────────────────────────────

func insertUpdate(ctx context.Context, tx *sql.Tx, u *Update) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO delivery_updates (id, delivery_id, status, note, source, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		u.ID, u.DeliveryID, u.Status, nullableString(u.Note), u.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery update: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (*Delivery, error) {
	var d Delivery
	var providerName, pickup, extTracking, failureReason sql.NullString
	var actualDelivery sql.NullTime
	err := row.Scan(
		&d.ID, &d.OrderID, &d.ProviderID, &providerName, &d.Status, &d.Cost,
		&d.DistanceKm, &d.WeightKg, &pickup, &d.DropoffAddress,
		&extTracking, &failureReason, &actualDelivery,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan delivery: %w", err)
	}
	d.ProviderName = providerName.String
	d.PickupAddress = pickup.String
	d.ExternalTrackingID = extTracking.String
	d.FailureReason = failureReason.String
	if actualDelivery.Valid {
		d.ActualDeliveryAt = &actualDelivery.Time
	}
	return &d, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

package order

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type postgresRepo struct{ db *sql.DB }

func NewPostgresRepository(db *sql.DB) Repository { return &postgresRepo{db: db} }

const orderColumns = `id, buyer_id, vendor_id, tracking_number, order_type, status, task_status,
	total_amount, currency, delivery_address, delivery_lat, delivery_lng, service_location,
	payment_reference, courier_id, courier_name, dispute_reason,
	vendor_accepted_at, picked_up_at, customer_confirmed_at, created_at, updated_at`

// uniqueViolation is the Postgres error code raised by a duplicate key.
const uniqueViolation = "23505"

func (r *postgresRepo) CreateOrder(ctx context.Context, o *Order, initial *Tracking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders
		  (id, buyer_id, vendor_id, tracking_number, order_type, status, task_status,
		   total_amount, currency, delivery_address, delivery_lat, delivery_lng,
		   service_location, payment_reference)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		o.ID, o.BuyerID, o.VendorID, o.TrackingNumber, o.Type, o.Status, o.TaskStatus,
		o.TotalAmount, o.Currency, o.DeliveryAddress, o.DeliveryLat, o.DeliveryLng,
		o.ServiceLocation, nullableString(o.PaymentReference))
	if err != nil {
		// atomic idempotency guard: a concurrent insert with the same
		// payment reference loses here, never via a read-then-insert race
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return ErrDuplicatePaymentReference
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items
			  (id, order_id, listing_id, quantity, unit_price, line_total, weight_kg,
			   appointment_at, duration_minutes, service_location)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			item.ID, o.ID, item.ListingID, item.Quantity, item.UnitPrice, item.LineTotal,
			item.WeightKg, item.AppointmentAt, item.DurationMinutes, item.ServiceLocation)
		if err != nil {
			return fmt.Errorf("insert order_item: %w", err)
		}
	}

	if err := insertTracking(ctx, tx, initial); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	o, err := r.scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id=$1`, uid))
	if err != nil {
		return nil, err
	}
	o.Items, err = r.listItems(ctx, o.ID)
	return o, err
}

func (r *postgresRepo) GetByPaymentReference(ctx context.Context, ref string) (*Order, error) {
	o, err := r.scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE payment_reference=$1`, ref))
	if err != nil {
		return nil, err
	}
	o.Items, err = r.listItems(ctx, o.ID)
	return o, err
}

func (r *postgresRepo) AttachPaymentToBooking(ctx context.Context, orderID, paymentRef string, t *Tracking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status=$1, payment_reference=$2, updated_at=$3
		WHERE id=$4 AND status=$5`,
		StatusPaid, paymentRef, time.Now(), orderID, StatusPendingPayment)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return ErrDuplicatePaymentReference
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}

	if err := insertTracking(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *postgresRepo) UpdateStatusWithTracking(ctx context.Context, id string, from, to Status, t *Tracking, s Stamps) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status=$1,
		    vendor_accepted_at=COALESCE($2, vendor_accepted_at),
		    picked_up_at=COALESCE($3, picked_up_at),
		    customer_confirmed_at=COALESCE($4, customer_confirmed_at),
		    courier_id=COALESCE($5, courier_id),
		    courier_name=COALESCE(NULLIF($6,''), courier_name),
		    dispute_reason=COALESCE(NULLIF($7,''), dispute_reason),
		    updated_at=$8
		WHERE id=$9 AND status=$10`,
		to, s.VendorAcceptedAt, s.PickedUpAt, s.CustomerConfirmedAt,
		s.CourierID, s.CourierName, s.DisputeReason, time.Now(), id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// lost a race or caller was stale; either way the transition is gone
		return ErrInvalidTransition
	}

	if err := insertTracking(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *postgresRepo) UpdateTaskStatusWithTracking(ctx context.Context, id string, fromTask, toTask TaskStatus, mirror Status, t *Tracking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET task_status=$1, status=$2, updated_at=$3
		WHERE id=$4 AND task_status=$5`,
		toTask, mirror, time.Now(), id, fromTask)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}

	if err := insertTracking(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *postgresRepo) ListTracking(ctx context.Context, orderID string) ([]*Tracking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, status, description, location, delivered, created_at
		FROM order_tracking WHERE order_id=$1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*Tracking
	for rows.Next() {
		t := &Tracking{}
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Status, &t.Description,
			&t.Location, &t.Delivered, &t.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, t)
	}
	return entries, rows.Err()
}

func (r *postgresRepo) ListByVendor(ctx context.Context, vendorID string, status Status) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE vendor_id=$1`
	args := []interface{}{vendorID}
	if status != "" {
		query += ` AND status=$2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	return r.queryOrders(ctx, query, args...)
}

func (r *postgresRepo) ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer_id=$1 ORDER BY created_at DESC`, buyerID)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func insertTracking(ctx context.Context, tx *sql.Tx, t *Tracking) error {
	if t == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_tracking (id, order_id, status, description, location, delivered)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.OrderID, t.Status, t.Description, t.Location, t.Delivered)
	if err != nil {
		return fmt.Errorf("insert tracking: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *postgresRepo) scanOrder(row rowScanner) (*Order, error) {
	o := &Order{}
	var taskStatus, paymentRef, courierName, disputeReason sql.NullString
	var courierID sql.NullString
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.VendorID, &o.TrackingNumber, &o.Type, &o.Status, &taskStatus,
		&o.TotalAmount, &o.Currency, &o.DeliveryAddress, &o.DeliveryLat, &o.DeliveryLng,
		&o.ServiceLocation, &paymentRef, &courierID, &courierName, &disputeReason,
		&o.VendorAcceptedAt, &o.PickedUpAt, &o.CustomerConfirmedAt, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if taskStatus.Valid {
		ts := TaskStatus(taskStatus.String)
		o.TaskStatus = &ts
	}
	o.PaymentReference = paymentRef.String
	o.CourierName = courierName.String
	o.DisputeReason = disputeReason.String
	if courierID.Valid {
		uid, _ := uuid.Parse(courierID.String)
		o.CourierID = &uid
	}
	return o, nil
}

func (r *postgresRepo) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []*Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *postgresRepo) listItems(ctx context.Context, orderID uuid.UUID) ([]*Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, listing_id, quantity, unit_price, line_total, weight_kg,
		       appointment_at, duration_minutes, service_location, created_at
		FROM order_items WHERE order_id=$1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		item := &Item{}
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ListingID,
			&item.Quantity, &item.UnitPrice, &item.LineTotal, &item.WeightKg,
			&item.AppointmentAt, &item.DurationMinutes, &item.ServiceLocation,
			&item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const txColumns = `
	id, provider, provider_ref, provider_status, status, amount, currency,
	phone_number, description, order_id, cart, last_error,
	webhook_received_at, created_at, updated_at`

type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a Postgres-backed payment repository.
func NewPostgresRepository(db *sql.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, t *Transaction) error {
	cart, err := marshalCart(t.Cart)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO payment_transactions (
			id, provider, provider_ref, provider_status, status, amount,
			currency, phone_number, description, cart, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())`,
		t.ID, t.Provider, nullableString(t.ProviderRef), nullableString(t.ProviderStatus),
		t.Status, t.Amount, t.Currency, nullableString(t.PhoneNumber),
		nullableString(t.Description), cart,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM payment_transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (r *postgresRepository) GetByProviderRef(ctx context.Context, ref string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM payment_transactions WHERE provider_ref = $1`, ref)
	return scanTransaction(row)
}

func (r *postgresRepository) Update(ctx context.Context, t *Transaction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET provider_ref = $1, provider_status = $2, status = $3,
		    order_id = $4, last_error = $5, webhook_received_at = $6,
		    updated_at = NOW()
		WHERE id = $7`,
		nullableString(t.ProviderRef), nullableString(t.ProviderStatus), t.Status,
		t.OrderID, nullableString(t.LastError), t.WebhookReceivedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) ListByBuyer(ctx context.Context, buyerID string) ([]*Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM payment_transactions
		 WHERE cart->>'buyer_id' = $1 ORDER BY created_at DESC`,
		buyerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment transactions: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ── helpers ──────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var t Transaction
	var providerRef, providerStatus, phone, desc, lastErr sql.NullString
	var cart []byte
	var webhookAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.Provider, &providerRef, &providerStatus, &t.Status,
		&t.Amount, &t.Currency, &phone, &desc, &t.OrderID, &cart, &lastErr,
		&webhookAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment transaction: %w", err)
	}
	t.ProviderRef = providerRef.String
	t.ProviderStatus = providerStatus.String
	t.PhoneNumber = phone.String
	t.Description = desc.String
	t.LastError = lastErr.String
	if webhookAt.Valid {
		t.WebhookReceivedAt = &webhookAt.Time
	}
	if len(cart) > 0 {
		var c CheckoutCart
		if err := json.Unmarshal(cart, &c); err != nil {
			return nil, fmt.Errorf("failed to decode cart: %w", err)
		}
		t.Cart = &c
	}
	return &t, nil
}

func marshalCart(c *CheckoutCart) (any, error) {
	if c == nil {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart: %w", err)
	}
	return b, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

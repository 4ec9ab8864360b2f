package listing

import (
	"context"
	"database/sql"
	"fmt"
)

const listingColumns = `
	id, vendor_id, kind, title, description, category, price, currency,
	weight_kg, duration_minutes, image_url, is_active, attributes,
	created_at, updated_at`

type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a Postgres-backed listing repository.
func NewPostgresRepository(db *sql.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, l *Listing) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO listings (
			id, vendor_id, kind, title, description, category, price,
			currency, weight_kg, duration_minutes, image_url, is_active,
			attributes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())`,
		l.ID, l.VendorID, l.Kind, l.Title, nullableString(l.Description),
		nullableString(l.Category), l.Price, l.Currency, l.WeightKg,
		l.DurationMinutes, nullableString(l.ImageURL), l.IsActive,
		nullableBytes(l.Attributes),
	)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*Listing, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	return scanListing(row)
}

func (r *postgresRepository) ListByVendor(ctx context.Context, vendorID string, activeOnly bool) ([]*Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE vendor_id = $1`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY created_at DESC`
	return r.query(ctx, query, vendorID)
}

func (r *postgresRepository) Search(ctx context.Context, kind Kind, category, query string) ([]*Listing, error) {
	sqlQuery := `SELECT ` + listingColumns + ` FROM listings WHERE is_active = TRUE`
	args := []any{}
	i := 1
	if kind != "" {
		sqlQuery += fmt.Sprintf(" AND kind = $%d", i)
		args = append(args, kind)
		i++
	}
	if category != "" {
		sqlQuery += fmt.Sprintf(" AND category = $%d", i)
		args = append(args, category)
		i++
	}
	if query != "" {
		sqlQuery += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", i, i)
		args = append(args, "%"+query+"%")
	}
	sqlQuery += ` ORDER BY created_at DESC LIMIT 100`
	return r.query(ctx, sqlQuery, args...)
}

func (r *postgresRepository) Update(ctx context.Context, l *Listing) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings
		SET title = $1, description = $2, category = $3, price = $4,
		    weight_kg = $5, image_url = $6, is_active = $7, updated_at = NOW()
		WHERE id = $8`,
		l.Title, nullableString(l.Description), nullableString(l.Category),
		l.Price, l.WeightKg, nullableString(l.ImageURL), l.IsActive, l.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	return requireRow(res)
}

func (r *postgresRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE listings SET is_active = $1, updated_at = NOW() WHERE id = $2`,
		active, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	return requireRow(res)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (r *postgresRepository) query(ctx context.Context, query string, args ...any) ([]*Listing, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var out []*Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*Listing, error) {
	var l Listing
	var desc, category, imageURL sql.NullString
	var attrs []byte
	err := row.Scan(
		&l.ID, &l.VendorID, &l.Kind, &l.Title, &desc, &category, &l.Price,
		&l.Currency, &l.WeightKg, &l.DurationMinutes, &imageURL, &l.IsActive,
		&attrs, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan listing: %w", err)
	}
	l.Description = desc.String
	l.Category = category.String
	l.ImageURL = imageURL.String
	l.Attributes = attrs
	return &l, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

package delivery

import (
	"context"
	"database/sql"
	"fmt"
)

const providerColumns = `
	id, name, phone, base_rate, per_km_rate, lat, lng, active,
	created_at, updated_at`

type postgresProviderRepository struct {
	db *sql.DB
}

// NewPostgresProviderRepository creates a Postgres-backed provider repository.
func NewPostgresProviderRepository(db *sql.DB) ProviderRepository {
	return &postgresProviderRepository{db: db}
}

func (r *postgresProviderRepository) CreateProvider(ctx context.Context, p *Provider) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_providers (
			id, name, phone, base_rate, per_km_rate, lat, lng, active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
		p.ID, p.Name, nullableString(p.Phone), p.BaseRate, p.PerKmRate,
		p.Lat, p.Lng, p.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery provider: %w", err)
	}
	return nil
}

func (r *postgresProviderRepository) GetProviderByID(ctx context.Context, id string) (*Provider, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM delivery_providers WHERE id = $1`, id)
	return scanProvider(row)
}

func (r *postgresProviderRepository) ListActiveProviders(ctx context.Context) ([]*Provider, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+providerColumns+` FROM delivery_providers WHERE active = TRUE ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery providers: %w", err)
	}
	defer rows.Close()

	var out []*Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *postgresProviderRepository) SetProviderActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE delivery_providers SET active = $1, updated_at = NOW() WHERE id = $2`,
		active, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery provider: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProviderNotFound
	}
	return nil
}

func scanProvider(row rowScanner) (*Provider, error) {
	var p Provider
	var phone sql.NullString
	err := row.Scan(
		&p.ID, &p.Name, &phone, &p.BaseRate, &p.PerKmRate, &p.Lat, &p.Lng,
		&p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan delivery provider: %w", err)
	}
	p.Phone = phone.String
	return &p, nil
}

package listing

import "context"

// Repository defines data access for listings.
type Repository interface {
	Create(ctx context.Context, l *Listing) error
	GetByID(ctx context.Context, id string) (*Listing, error)
	ListByVendor(ctx context.Context, vendorID string, activeOnly bool) ([]*Listing, error)
	Search(ctx context.Context, kind Kind, category, query string) ([]*Listing, error)
	Update(ctx context.Context, l *Listing) error
	SetActive(ctx context.Context, id string, active bool) error
}

package payment

import "context"

// Repository defines data access for payment transactions.
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, id string) (*Transaction, error)
	GetByProviderRef(ctx context.Context, ref string) (*Transaction, error)
	Update(ctx context.Context, t *Transaction) error
	ListByBuyer(ctx context.Context, buyerID string) ([]*Transaction, error)
}

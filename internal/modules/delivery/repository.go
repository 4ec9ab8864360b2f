package delivery

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines data access for deliveries. Status changes write the
// delivery row and its update entry in one transaction, guarded on the
// expected current status.
type Repository interface {
	// CreateDelivery inserts the delivery and its initial update entry in
	// one transaction. The order_id column is unique; a second delivery for
	// the same order surfaces as ErrDuplicateDelivery.
	CreateDelivery(ctx context.Context, d *Delivery, initial *Update) error

	GetByID(ctx context.Context, id string) (*Delivery, error)
	GetByOrderID(ctx context.Context, orderID string) (*Delivery, error)

	// UpdateStatusWithEntry applies from -> to plus the update entry in one
	// transaction, keeping any courier tracking id and stamping the actual
	// delivery time or failure reason as the status dictates. Returns
	// ErrInvalidTransition when the row is no longer in the from status.
	UpdateStatusWithEntry(ctx context.Context, id string, from, to Status, extTrackingID string, u *Update) error

	// Reassign points the delivery at a new provider with a recomputed cost,
	// resets it to PICKUP_SCHEDULED and appends the update entry, in one
	// transaction.
	Reassign(ctx context.Context, id string, from Status, providerID uuid.UUID, providerName string, cost float64, u *Update) error

	ListUpdates(ctx context.Context, deliveryID string) ([]*Update, error)
	ListByStatus(ctx context.Context, status Status) ([]*Delivery, error)
}

// ProviderRepository defines data access for courier providers.
type ProviderRepository interface {
	CreateProvider(ctx context.Context, p *Provider) error
	GetProviderByID(ctx context.Context, id string) (*Provider, error)
	ListActiveProviders(ctx context.Context) ([]*Provider, error)
	SetProviderActive(ctx context.Context, id string, active bool) error
}

package order

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Stamps carries the column updates that ride along with a status change.
// Nil/zero fields are left untouched.
type Stamps struct {
	VendorAcceptedAt    *time.Time
	PickedUpAt          *time.Time
	CustomerConfirmedAt *time.Time
	CourierID           *uuid.UUID
	CourierName         string
	DisputeReason       string
}

// Repository defines data access for orders. Status mutations are atomic
// with their tracking entry: both are written in one transaction, guarded on
// the expected current status so concurrent transitions serialize per order.
type Repository interface {
	// CreateOrder persists the order, its items and the initial tracking
	// entry in one transaction. A duplicate payment reference surfaces as
	// ErrDuplicatePaymentReference.
	CreateOrder(ctx context.Context, o *Order, initial *Tracking) error

	GetByID(ctx context.Context, id string) (*Order, error)
	GetByPaymentReference(ctx context.Context, ref string) (*Order, error)

	// AttachPaymentToBooking moves a PENDING_PAYMENT booking to PAID and
	// records the payment reference, guarded on the booking still being
	// unpaid. Returns ErrInvalidTransition when the guard misses.
	AttachPaymentToBooking(ctx context.Context, orderID, paymentRef string, t *Tracking) error

	// UpdateStatusWithTracking applies from -> to plus the tracking entry and
	// stamps in one transaction. Returns ErrInvalidTransition when the row is
	// no longer in the from status.
	UpdateStatusWithTracking(ctx context.Context, id string, from, to Status, t *Tracking, s Stamps) error

	// UpdateTaskStatusWithTracking is the service-order variant: advances the
	// vendor task state, mirrors the mapped order status and appends tracking,
	// guarded on the current task status.
	UpdateTaskStatusWithTracking(ctx context.Context, id string, fromTask, toTask TaskStatus, mirror Status, t *Tracking) error

	ListTracking(ctx context.Context, orderID string) ([]*Tracking, error)
	ListByVendor(ctx context.Context, vendorID string, status Status) ([]*Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error)
}

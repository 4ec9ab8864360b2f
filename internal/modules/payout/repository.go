package payout

import "context"

// Repository defines data access for payout requests. Every balance move is
// transactional with the payout row it belongs to, keeping the vendor
// reconciliation identity (total = available + pending + paid out) intact at
// all times.
type Repository interface {
	// CreateWithReservation inserts the request and moves the amount from the
	// vendor's available balance to pending in one transaction. The balance
	// update is guarded on available >= amount; a miss surfaces as
	// ErrInsufficientBalance and nothing is written.
	CreateWithReservation(ctx context.Context, p *Request) error

	GetByID(ctx context.Context, id string) (*Request, error)
	GetByTransferReference(ctx context.Context, ref string) (*Request, error)
	ListByVendor(ctx context.Context, vendorID string) ([]*Request, error)
	ListByStatus(ctx context.Context, status Status) ([]*Request, error)

	// UpdateStatus applies from -> to plus optional fields, guarded on the
	// current status. Returns ErrInvalidTransition when the guard misses.
	UpdateStatus(ctx context.Context, id string, from, to Status, fields Fields) error

	// ReleaseReservation moves the request to a terminal failure state and
	// returns the reserved amount from pending back to available, in one
	// transaction. reviewedBy is set when an admin made the call and left
	// empty when the gateway or provider failed the transfer.
	ReleaseReservation(ctx context.Context, id string, from, to Status, reviewedBy, reason string) error

	// Settle completes the request and moves the reserved amount from the
	// vendor's pending balance to total paid out, in one transaction,
	// recording the amount the provider actually paid.
	Settle(ctx context.Context, id string, from Status, actualAmount float64) (*Request, error)
}

// Fields carries the column updates that ride along with a status change.
type Fields struct {
	TransferReference string
	ReviewNote        string
	ReviewedBy        string
	FailureReason     string
	Processed         bool
}

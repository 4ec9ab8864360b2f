package payout

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound             = errors.New("payout request not found")
	ErrValidation           = errors.New("validation failed")
	ErrInvalidTransition    = errors.New("invalid payout transition")
	ErrInsufficientBalance  = errors.New("insufficient available balance")
	ErrMissingPayoutDetails = errors.New("vendor has no payout details on file")
	ErrExternalService      = errors.New("transfer provider unavailable")
)

// Status is the payout request lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
	StatusFailed     Status = "FAILED"
)

var validTransitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusRejected},
	StatusApproved:   {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusRejected:   {},
	StatusFailed:     {},
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Method is the transfer rail used to pay the vendor.
type Method string

const (
	MethodBank Method = "BANK"
	MethodMomo Method = "MOMO"
)

// Request is a vendor's withdrawal of available balance. The destination
// fields and AvailableBalanceSnapshot freeze the vendor's payout details and
// balance at request time so a later profile edit cannot redirect an
// in-flight transfer and reviewers see what the vendor saw.
type Request struct {
	ID                       uuid.UUID  `json:"id"`
	VendorID                 uuid.UUID  `json:"vendor_id"`
	Amount                   float64    `json:"amount"`
	Currency                 string     `json:"currency"`
	Status                   Status     `json:"status"`
	Method                   Method     `json:"method"`
	Reason                   string     `json:"reason,omitempty"`
	AvailableBalanceSnapshot float64    `json:"available_balance_snapshot"`
	DestinationName          string     `json:"destination_name,omitempty"`
	DestinationNumber        string     `json:"destination_number"`
	TransferReference        string     `json:"transfer_reference,omitempty"`
	FailureReason            string     `json:"failure_reason,omitempty"`
	ReviewNote               string     `json:"review_note,omitempty"`
	ReviewedBy               string     `json:"reviewed_by,omitempty"`
	ActualPaidAmount         float64    `json:"actual_paid_amount,omitempty"`
	RequestedAt              time.Time  `json:"requested_at"`
	ProcessedAt              *time.Time `json:"processed_at,omitempty"`
	SettledAt                *time.Time `json:"settled_at,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// ── Request/Response DTOs ─────────────────────────────────────────────────────

type CreateRequest struct {
	VendorID string  `json:"vendor_id" validate:"required,uuid4"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Reason   string  `json:"reason,omitempty"`
}

type DecisionRequest struct {
	AdminID string `json:"admin_id" validate:"required,uuid4"`
	Note    string `json:"note,omitempty"`
}

type RejectRequest struct {
	AdminID string `json:"admin_id" validate:"required,uuid4"`
	Reason  string `json:"reason" validate:"required"`
}

// SettlementNotice mirrors the transfer webhook payload from the provider.
// AmountPaid of zero means the provider settled the full reserved amount.
type SettlementNotice struct {
	TransferReference string  `json:"transfer_reference" validate:"required"`
	Success           bool    `json:"success"`
	AmountPaid        float64 `json:"amount_paid,omitempty"`
	Reason            string  `json:"reason,omitempty"`
}

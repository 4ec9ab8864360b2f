package payment

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sokoline/sokoline-backend/internal/modules/order"
)

var (
	ErrNotFound        = errors.New("payment transaction not found")
	ErrValidation      = errors.New("validation failed")
	ErrUnknownProvider = errors.New("unknown payment provider")
	ErrExternalService = errors.New("payment provider unavailable")
)

// Provider represents a supported payment gateway.
type Provider string

const (
	ProviderMpesa    Provider = "MPESA"
	ProviderPaystack Provider = "PAYSTACK"
	ProviderCash     Provider = "CASH"
)

// TxStatus represents the internal lifecycle of a payment transaction.
type TxStatus string

const (
	TxPending    TxStatus = "PENDING"
	TxProcessing TxStatus = "PROCESSING"
	TxCompleted  TxStatus = "COMPLETED"
	TxFailed     TxStatus = "FAILED"
	TxCancelled  TxStatus = "CANCELLED"
)

// CheckoutCart snapshots what the buyer is paying for, so the order can be
// materialized once the provider confirms the money moved.
type CheckoutCart struct {
	BuyerID         string            `json:"buyer_id"`
	VendorID        string            `json:"vendor_id"`
	OrderType       order.Type        `json:"order_type,omitempty"`
	BookingOrderID  string            `json:"booking_order_id,omitempty"`
	DeliveryAddress string            `json:"delivery_address,omitempty"`
	DeliveryLat     *float64          `json:"delivery_lat,omitempty"`
	DeliveryLng     *float64          `json:"delivery_lng,omitempty"`
	ServiceLocation string            `json:"service_location,omitempty"`
	Items           []order.ItemInput `json:"items"`
}

// Transaction is the provider-agnostic record of a payment attempt.
type Transaction struct {
	ID                uuid.UUID     `json:"id"`
	Provider          Provider      `json:"provider"`
	ProviderRef       string        `json:"provider_ref,omitempty"`
	ProviderStatus    string        `json:"provider_status,omitempty"`
	Status            TxStatus      `json:"status"`
	Amount            float64       `json:"amount"`
	Currency          string        `json:"currency"`
	PhoneNumber       string        `json:"phone_number,omitempty"`
	Description       string        `json:"description,omitempty"`
	OrderID           *uuid.UUID    `json:"order_id,omitempty"`
	Cart              *CheckoutCart `json:"cart,omitempty"`
	LastError         string        `json:"last_error,omitempty"`
	WebhookReceivedAt *time.Time    `json:"webhook_received_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// ── Request/Response DTOs ─────────────────────────────────────────────────────

// InitiateRequest is the payload to start a checkout payment.
type InitiateRequest struct {
	Provider    string       `json:"provider" validate:"required"`
	Amount      float64      `json:"amount" validate:"required,gt=0"`
	Currency    string       `json:"currency,omitempty"` // defaults to KES
	PhoneNumber string       `json:"phone_number,omitempty"`
	Description string       `json:"description,omitempty"`
	Cart        CheckoutCart `json:"cart" validate:"required"`
}

// WebhookPayload is the generic inbound webhook from a payment provider.
type WebhookPayload struct {
	Provider    string         `json:"provider"`
	ExternalRef string         `json:"external_ref"`
	Status      string         `json:"status"`
	Amount      float64        `json:"amount"`
	Currency    string         `json:"currency"`
	RawPayload  map[string]any `json:"raw_payload,omitempty"`
}

// ProviderInitResponse is what a gateway adapter returns after initiating a payment.
type ProviderInitResponse struct {
	ProviderRef    string `json:"provider_ref"`
	ProviderStatus string `json:"provider_status"`
	Message        string `json:"message,omitempty"`
}

package delivery

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("delivery not found")
	ErrProviderNotFound  = errors.New("delivery provider not found")
	ErrNoProvider        = errors.New("no active delivery provider available")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid delivery transition")
	ErrDuplicateDelivery = errors.New("order already has a delivery")
)

// Status is the courier-side delivery state, independent of the customer
// facing order status it feeds.
type Status string

const (
	StatusPickupScheduled Status = "PICKUP_SCHEDULED"
	StatusPickedUp        Status = "PICKED_UP"
	StatusInTransit       Status = "IN_TRANSIT"
	StatusOutForDelivery  Status = "OUT_FOR_DELIVERY"
	StatusDelivered       Status = "DELIVERED"
	StatusFailed          Status = "FAILED"
	StatusCancelled       Status = "CANCELLED"
)

var validTransitions = map[Status][]Status{
	StatusPickupScheduled: {StatusPickedUp, StatusCancelled, StatusFailed},
	StatusPickedUp:        {StatusInTransit, StatusFailed},
	StatusInTransit:       {StatusOutForDelivery, StatusDelivered, StatusFailed},
	StatusOutForDelivery:  {StatusDelivered, StatusFailed},
	StatusDelivered:       {},
	StatusFailed:          {StatusPickupScheduled},
	StatusCancelled:       {},
}

// CanTransition reports whether from -> to is an allowed move. A FAILED
// delivery can only go back to PICKUP_SCHEDULED through reassignment.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Source records where a delivery update came from.
type Source string

const (
	SourceAPI        Source = "API"
	SourceWebhook    Source = "WEBHOOK"
	SourceManual     Source = "MANUAL"
	SourceReassigned Source = "REASSIGNED"
)

// Provider is a courier company the platform dispatches through.
type Provider struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	BaseRate  float64   `json:"base_rate"`
	PerKmRate float64   `json:"per_km_rate"`
	Lat       *float64  `json:"lat,omitempty"`
	Lng       *float64  `json:"lng,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Delivery is the dispatch record for one order. Orders and deliveries are
// strictly one to one.
type Delivery struct {
	ID                 uuid.UUID  `json:"id"`
	OrderID            uuid.UUID  `json:"order_id"`
	ProviderID         uuid.UUID  `json:"provider_id"`
	ProviderName       string     `json:"provider_name,omitempty"`
	Status             Status     `json:"status"`
	Cost               float64    `json:"cost"`
	DistanceKm         float64    `json:"distance_km"`
	WeightKg           float64    `json:"weight_kg"`
	PickupAddress      string     `json:"pickup_address,omitempty"`
	DropoffAddress     string     `json:"dropoff_address"`
	ExternalTrackingID string     `json:"external_tracking_id,omitempty"`
	FailureReason      string     `json:"failure_reason,omitempty"`
	ActualDeliveryAt   *time.Time `json:"actual_delivery_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Update is one entry in a delivery's audit feed.
type Update struct {
	ID         uuid.UUID `json:"id"`
	DeliveryID uuid.UUID `json:"delivery_id"`
	Status     Status    `json:"status"`
	Note       string    `json:"note,omitempty"`
	Source     Source    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// ── Request/Response DTOs ─────────────────────────────────────────────────────

type CreateRequest struct {
	OrderID    string `json:"order_id" validate:"required,uuid4"`
	ProviderID string `json:"provider_id,omitempty" validate:"omitempty,uuid4"`
}

type UpdateStatusRequest struct {
	Status             Status `json:"status" validate:"required"`
	Note               string `json:"note,omitempty"`
	ExternalTrackingID string `json:"external_tracking_id,omitempty"`
	Source             Source `json:"source,omitempty"`
}

type ReassignRequest struct {
	ProviderID string `json:"provider_id" validate:"required,uuid4"`
	Reason     string `json:"reason,omitempty"`
}

type CreateProviderRequest struct {
	Name      string   `json:"name" validate:"required"`
	Phone     string   `json:"phone,omitempty"`
	BaseRate  float64  `json:"base_rate" validate:"gte=0"`
	PerKmRate float64  `json:"per_km_rate" validate:"gte=0"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
}

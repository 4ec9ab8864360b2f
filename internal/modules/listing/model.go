package listing

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("listing not found")
	ErrValidation = errors.New("validation failed")
)

// Kind separates physical goods from bookable services.
type Kind string

const (
	KindProduct Kind = "PRODUCT"
	KindService Kind = "SERVICE"
)

// Listing is something a vendor sells: a product shipped by courier or a
// service booked by appointment.
type Listing struct {
	ID              uuid.UUID       `json:"id"`
	VendorID        uuid.UUID       `json:"vendor_id"`
	Kind            Kind            `json:"kind"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Category        string          `json:"category,omitempty"`
	Price           float64         `json:"price"`
	Currency        string          `json:"currency"`
	WeightKg        float64         `json:"weight_kg,omitempty"`
	DurationMinutes int             `json:"duration_minutes,omitempty"`
	ImageURL        string          `json:"image_url,omitempty"`
	IsActive        bool            `json:"is_active"`
	Attributes      json.RawMessage `json:"attributes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ── Request/Response DTOs ─────────────────────────────────────────────────────

type CreateRequest struct {
	VendorID        string          `json:"vendor_id" validate:"required,uuid4"`
	Kind            Kind            `json:"kind" validate:"required,oneof=PRODUCT SERVICE"`
	Title           string          `json:"title" validate:"required"`
	Description     string          `json:"description,omitempty"`
	Category        string          `json:"category,omitempty"`
	Price           float64         `json:"price" validate:"gte=0"`
	WeightKg        float64         `json:"weight_kg,omitempty" validate:"gte=0"`
	DurationMinutes int             `json:"duration_minutes,omitempty" validate:"gte=0"`
	ImageURL        string          `json:"image_url,omitempty"`
	Attributes      json.RawMessage `json:"attributes,omitempty"`
}

type UpdateRequest struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Price       *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	WeightKg    *float64 `json:"weight_kg,omitempty" validate:"omitempty,gte=0"`
	ImageURL    *string  `json:"image_url,omitempty"`
	IsActive    *bool    `json:"is_active,omitempty"`
}

// NearbyResult pairs a listing with the distance to its vendor.
type NearbyResult struct {
	Listing    *Listing `json:"listing"`
	VendorName string   `json:"vendor_name"`
	DistanceKm float64  `json:"distance_km"`
}

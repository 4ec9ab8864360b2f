package order

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation error")

	// ErrDuplicatePaymentReference is returned by the repository when an
	// insert hits the unique payment_reference constraint. The service never
	// surfaces it: the duplicate resolves to the existing order.
	ErrDuplicatePaymentReference = errors.New("duplicate payment reference")
)

// Status is the customer-visible lifecycle state of an order. The set is
// closed: every value written to the status column appears here.
type Status string

const (
	StatusPendingPayment    Status = "PENDING_PAYMENT"
	StatusPaid              Status = "PAID"
	StatusConfirmed         Status = "CONFIRMED"
	StatusReadyForPickup    Status = "READY_FOR_PICKUP"
	StatusDispatched        Status = "DISPATCHED"
	StatusInProgress        Status = "IN_PROGRESS"
	StatusDelivered         Status = "DELIVERED"
	StatusCompleted         Status = "COMPLETED"
	StatusCustomerConfirmed Status = "CUSTOMER_CONFIRMED"
	StatusDisputed          Status = "DISPUTED"
	StatusCancelled         Status = "CANCELLED"
)

// validTransitions defines the allowed status state machine.
var validTransitions = map[Status][]Status{
	StatusPendingPayment:    {StatusPaid, StatusCancelled},
	StatusPaid:              {StatusConfirmed, StatusCancelled},
	StatusConfirmed:         {StatusReadyForPickup, StatusInProgress, StatusCancelled},
	StatusReadyForPickup:    {StatusDispatched, StatusCancelled},
	StatusDispatched:        {StatusDelivered},
	StatusInProgress:        {StatusCompleted, StatusCancelled},
	StatusDelivered:         {StatusCustomerConfirmed, StatusDisputed},
	StatusCompleted:         {StatusCustomerConfirmed, StatusDisputed},
	StatusCustomerConfirmed: {},
	StatusDisputed:          {},
	StatusCancelled:         {},
}

// CanTransition returns true if the order status change is permitted.
func CanTransition(current, next Status) bool {
	for _, s := range validTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// cancellable is the set of statuses from which a cancel is accepted.
// Nothing in or past dispatch can be cancelled.
var cancellable = map[Status]bool{
	StatusPendingPayment: true,
	StatusPaid:           true,
	StatusConfirmed:      true,
	StatusReadyForPickup: true,
}

// TaskStatus is the vendor-facing sub-state for service orders. It is
// mirrored onto Status via taskToOrderStatus for customer visibility.
type TaskStatus string

const (
	TaskPendingAcceptance TaskStatus = "PENDING_ACCEPTANCE"
	TaskAccepted          TaskStatus = "ACCEPTED"
	TaskStartingJob       TaskStatus = "STARTING_JOB"
	TaskInProgress        TaskStatus = "IN_PROGRESS"
	TaskDelayed           TaskStatus = "DELAYED"
	TaskAlmostDone        TaskStatus = "ALMOST_DONE"
	TaskCompleted         TaskStatus = "COMPLETED"
	TaskDeclined          TaskStatus = "DECLINED"
	TaskCancelled         TaskStatus = "CANCELLED"
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPendingAcceptance: {TaskAccepted, TaskDeclined, TaskCancelled},
	TaskAccepted:          {TaskStartingJob, TaskCancelled},
	TaskStartingJob:       {TaskInProgress, TaskDelayed},
	TaskInProgress:        {TaskDelayed, TaskAlmostDone, TaskCompleted},
	TaskDelayed:           {TaskInProgress, TaskAlmostDone, TaskCompleted},
	TaskAlmostDone:        {TaskCompleted},
	TaskCompleted:         {},
	TaskDeclined:          {},
	TaskCancelled:         {},
}

// CanTransitionTask returns true if the vendor task change is permitted.
func CanTransitionTask(current, next TaskStatus) bool {
	for _, s := range taskTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// taskToOrderStatus maps each vendor task status to exactly one order status
// label. An explicit table, never inferred from string equality, so adding a
// status to one side forces a decision here.
var taskToOrderStatus = map[TaskStatus]Status{
	TaskPendingAcceptance: StatusPaid,
	TaskAccepted:          StatusConfirmed,
	TaskStartingJob:       StatusInProgress,
	TaskInProgress:        StatusInProgress,
	TaskDelayed:           StatusInProgress,
	TaskAlmostDone:        StatusInProgress,
	TaskCompleted:         StatusCompleted,
	TaskDeclined:          StatusCancelled,
	TaskCancelled:         StatusCancelled,
}

// Type distinguishes product purchases from bookable services.
type Type string

const (
	TypeProduct Type = "PRODUCT"
	TypeService Type = "SERVICE"
)

// Action is an externally requested lifecycle transition.
type Action string

const (
	ActionAccept        Action = "accept"
	ActionReady         Action = "ready"
	ActionDispatch      Action = "dispatch"
	ActionMarkDelivered Action = "mark_delivered"
	ActionConfirm       Action = "confirm"
	ActionDispute       Action = "dispute"
	ActionCancel        Action = "cancel"
)

// Order represents one buyer transaction with one vendor.
type Order struct {
	ID               uuid.UUID   `json:"id"`
	BuyerID          uuid.UUID   `json:"buyer_id"`
	VendorID         uuid.UUID   `json:"vendor_id"`
	TrackingNumber   string      `json:"tracking_number"`
	Type             Type        `json:"type"`
	Status           Status      `json:"status"`
	TaskStatus       *TaskStatus `json:"task_status,omitempty"` // service orders only
	TotalAmount      float64     `json:"total_amount"`
	Currency         string      `json:"currency"`
	DeliveryAddress  string      `json:"delivery_address,omitempty"`
	DeliveryLat      *float64    `json:"delivery_lat,omitempty"`
	DeliveryLng      *float64    `json:"delivery_lng,omitempty"`
	ServiceLocation  string      `json:"service_location,omitempty"`
	PaymentReference string      `json:"payment_reference,omitempty"` // unique, idempotency key
	CourierID        *uuid.UUID  `json:"courier_id,omitempty"`
	CourierName      string      `json:"courier_name,omitempty"`
	DisputeReason    string      `json:"dispute_reason,omitempty"`
	Items            []*Item     `json:"items,omitempty"`

	VendorAcceptedAt    *time.Time `json:"vendor_accepted_at,omitempty"`
	PickedUpAt          *time.Time `json:"picked_up_at,omitempty"`
	CustomerConfirmedAt *time.Time `json:"customer_confirmed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Item is a single line item within an order. Exactly one of the listing
// reference kinds applies depending on the parent order type; service items
// carry their appointment details.
type Item struct {
	ID              uuid.UUID  `json:"id"`
	OrderID         uuid.UUID  `json:"order_id"`
	ListingID       uuid.UUID  `json:"listing_id"`
	Quantity        int        `json:"quantity"`
	UnitPrice       float64    `json:"unit_price"` // snapshot at time of order
	LineTotal       float64    `json:"line_total"`
	WeightKg        float64    `json:"weight_kg,omitempty"`
	AppointmentAt   *time.Time `json:"appointment_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	ServiceLocation string     `json:"service_location,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Tracking is an immutable append-only audit entry for one status change.
// Entries are never updated or deleted once written.
type Tracking struct {
	ID          uuid.UUID `json:"id"`
	OrderID     uuid.UUID `json:"order_id"`
	Status      Status    `json:"status"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	Delivered   bool      `json:"delivered"`
	CreatedAt   time.Time `json:"created_at"`
}

// ── Request DTOs ─────────────────────────────────────────────────────────────

// ItemInput describes one cart line at checkout time.
type ItemInput struct {
	ListingID       string     `json:"listing_id" validate:"required"`
	Quantity        int        `json:"quantity" validate:"min=1"`
	UnitPrice       float64    `json:"unit_price" validate:"min=0"`
	WeightKg        float64    `json:"weight_kg,omitempty"`
	AppointmentAt   *time.Time `json:"appointment_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	ServiceLocation string     `json:"service_location,omitempty"`
}

// CreateFromPaymentRequest carries everything needed to materialize an order
// once a payment has been verified. PaymentReference is the idempotency key:
// the same reference always resolves to the same order.
type CreateFromPaymentRequest struct {
	PaymentReference string      `json:"payment_reference" validate:"required"`
	BuyerID          string      `json:"buyer_id" validate:"required"`
	VendorID         string      `json:"vendor_id" validate:"required"`
	Type             Type        `json:"type"`
	Items            []ItemInput `json:"items" validate:"min=1,dive"`
	DeliveryAddress  string      `json:"delivery_address,omitempty"`
	DeliveryLat      *float64    `json:"delivery_lat,omitempty"`
	DeliveryLng      *float64    `json:"delivery_lng,omitempty"`
	ServiceLocation  string      `json:"service_location,omitempty"`
	BookingOrderID   string      `json:"booking_order_id,omitempty"` // pre-created PENDING_PAYMENT booking, if any
}

// CreateBookingRequest creates a service booking awaiting checkout
// (PENDING_PAYMENT). Payment attaches later via CreateFromPayment.
type CreateBookingRequest struct {
	BuyerID         string      `json:"buyer_id" validate:"required"`
	VendorID        string      `json:"vendor_id" validate:"required"`
	Items           []ItemInput `json:"items" validate:"min=1,dive"`
	ServiceLocation string      `json:"service_location,omitempty"`
}

// TransitionRequest is the payload for POST /orders/{id}/transition.
type TransitionRequest struct {
	Action      Action `json:"action" validate:"required"`
	Reason      string `json:"reason,omitempty"`
	CourierID   string `json:"courier_id,omitempty"`
	CourierName string `json:"courier_name,omitempty"`
}

// TransitionPayload carries optional transition inputs into the service.
type TransitionPayload struct {
	Reason      string
	CourierID   string
	CourierName string
}

// UpdateTaskStatusRequest advances a service order's vendor task state.
type UpdateTaskStatusRequest struct {
	Status TaskStatus `json:"status" validate:"required"`
}

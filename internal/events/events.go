package events

import "time"

// Type identifies a domain event. Values double as Kafka topic names when the
// Kafka sink is enabled.
type Type string

const (
	TypeOrderPlaced         Type = "order.placed"
	TypeOrderAccepted       Type = "order.accepted"
	TypeOrderReadyForPickup Type = "order.ready_for_pickup"
	TypeOrderDispatched     Type = "order.dispatched"
	TypeOrderDelivered      Type = "order.delivered"
	TypeOrderConfirmed      Type = "order.confirmed"
	TypeOrderDisputed       Type = "order.disputed"
	TypeOrderCancelled      Type = "order.cancelled"

	TypeDeliveryCreated    Type = "delivery.created"
	TypeDeliveryUpdated    Type = "delivery.updated"
	TypeDeliveryReassigned Type = "delivery.reassigned"

	TypePayoutRequested Type = "payout.requested"
	TypePayoutApproved  Type = "payout.approved"
	TypePayoutRejected  Type = "payout.rejected"
	TypePayoutSettled   Type = "payout.settled"
)

// Event is one domain occurrence emitted after a state transition commits.
// Key is the id of the primary entity (order, delivery or payout request) and
// is used as the partition key by the Kafka sink.
type Event struct {
	Type Type           `json:"type"`
	Key  string         `json:"key"`
	Data map[string]any `json:"data,omitempty"`
	At   time.Time      `json:"at"`
}

// New builds an event stamped with the current time.
func New(t Type, key string, data map[string]any) Event {
	return Event{Type: t, Key: key, Data: data, At: time.Now().UTC()}
}

// Handler consumes events off the bus. Handlers must not block for long; the
// dispatcher runs them sequentially.
type Handler interface {
	Name() string
	Handle(evt Event)
}

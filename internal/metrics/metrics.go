package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created from verified payments",
		},
	)

	DuplicatePaymentRefsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duplicate_payment_refs_total",
			Help: "Total number of payment verifications resolved idempotently to an existing order",
		},
	)

	OrderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Total number of successful order status transitions",
		},
		[]string{"action"},
	)

	InvalidTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalid_transitions_total",
			Help: "Total number of rejected order status transitions",
		},
		[]string{"action"},
	)

	PayoutOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_operations_total",
			Help: "Total number of payout workflow operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	DeliveriesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deliveries_created_total",
			Help: "Total number of courier deliveries created",
		},
	)

	DeliveryUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_updates_total",
			Help: "Total number of delivery sub-status updates by status and source",
		},
		[]string{"status", "source"},
	)

	NotificationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Total number of SMS/email notification failures (logged, never surfaced)",
		},
		[]string{"channel"},
	)

	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Total number of domain events dropped due to bus backpressure",
		},
	)
)

// Register installs every collector on the given registry.
func Register(reg *prometheus.Registry) {
	reg.MustRegister(
		OrdersCreatedTotal,
		DuplicatePaymentRefsTotal,
		OrderTransitionsTotal,
		InvalidTransitionsTotal,
		PayoutOperationsTotal,
		DeliveriesCreatedTotal,
		DeliveryUpdatesTotal,
		NotificationFailuresTotal,
		EventsDroppedTotal,
	)
}

package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/events"
	"github.com/sokoline/sokoline-backend/internal/metrics"
	"github.com/sokoline/sokoline-backend/internal/modules/commission"
	"github.com/sokoline/sokoline-backend/internal/modules/vendor"
)

// VendorLedger is the slice of the vendor repository the lifecycle needs for
// earnings bookkeeping. vendor.Repository satisfies it.
type VendorLedger interface {
	RecognizeEarning(ctx context.Context, e *vendor.Earning) error
	ReleaseEarningsForOrder(ctx context.Context, orderID string) (float64, error)
}

// FeeResolver resolves the commission percentage for a vendor.
// vendor.Service satisfies it.
type FeeResolver interface {
	EffectiveFeePct(ctx context.Context, vendorID string) (float64, error)
}

// Service defines the order lifecycle business logic.
type Service interface {
	// CreateFromPayment materializes an order from a verified payment. It is
	// idempotent on the payment reference: a second call with the same
	// reference returns the order created by the first.
	CreateFromPayment(ctx context.Context, req CreateFromPaymentRequest) (*Order, error)

	// CreateBooking creates a service order awaiting checkout.
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*Order, error)

	// Transition applies one lifecycle action to an order.
	Transition(ctx context.Context, id string, action Action, p TransitionPayload) (*Order, error)

	// UpdateTaskStatus advances a service order's vendor task state and
	// mirrors it onto the customer-visible status.
	UpdateTaskStatus(ctx context.Context, id string, next TaskStatus) (*Order, error)

	Get(ctx context.Context, id string) (*Order, error)
	Tracking(ctx context.Context, id string) ([]*Tracking, error)
	ListByVendor(ctx context.Context, vendorID string, status Status) ([]*Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error)
}

type service struct {
	repo   Repository
	ledger VendorLedger
	fees   FeeResolver
	calc   *commission.Calculator
	bus    *events.Bus
	logger *logrus.Logger
}

// NewService creates a new order service.
func NewService(repo Repository, ledger VendorLedger, fees FeeResolver, calc *commission.Calculator, bus *events.Bus, logger *logrus.Logger) Service {
	return &service{repo: repo, ledger: ledger, fees: fees, calc: calc, bus: bus, logger: logger}
}

// ── Creation ─────────────────────────────────────────────────────────────────

func (s *service) CreateFromPayment(ctx context.Context, req CreateFromPaymentRequest) (*Order, error) {
	if req.PaymentReference == "" {
		return nil, fmt.Errorf("%w: payment_reference is required", ErrValidation)
	}

	// Payment attaching to a pre-created booking: flip it to PAID.
	if req.BookingOrderID != "" {
		return s.attachToBooking(ctx, req)
	}

	o, err := s.buildOrder(req)
	if err != nil {
		return nil, err
	}

	initial := &Tracking{
		ID:          uuid.New(),
		OrderID:     o.ID,
		Status:      o.Status,
		Description: "Order placed after successful payment",
	}

	if err := s.repo.CreateOrder(ctx, o, initial); err != nil {
		if err == ErrDuplicatePaymentReference {
			// duplicate verification callback: same reference, same order
			metrics.DuplicatePaymentRefsTotal.Inc()
			return s.repo.GetByPaymentReference(ctx, req.PaymentReference)
		}
		return nil, err
	}

	metrics.OrdersCreatedTotal.Inc()
	s.bus.Publish(events.New(events.TypeOrderPlaced, o.ID.String(), map[string]any{
		"buyer_id":        o.BuyerID.String(),
		"vendor_id":       o.VendorID.String(),
		"tracking_number": o.TrackingNumber,
		"total_amount":    o.TotalAmount,
		"order_type":      string(o.Type),
	}))
	return o, nil
}

func (s *service) attachToBooking(ctx context.Context, req CreateFromPaymentRequest) (*Order, error) {
	bookingID, err := uuid.Parse(req.BookingOrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid booking_order_id", ErrValidation)
	}
	t := &Tracking{
		ID:          uuid.New(),
		OrderID:     bookingID,
		Status:      StatusPaid,
		Description: "Payment received for booking",
	}
	err = s.repo.AttachPaymentToBooking(ctx, req.BookingOrderID, req.PaymentReference, t)
	switch err {
	case nil:
		o, err := s.repo.GetByID(ctx, req.BookingOrderID)
		if err != nil {
			return nil, err
		}
		s.bus.Publish(events.New(events.TypeOrderPlaced, o.ID.String(), map[string]any{
			"buyer_id":  o.BuyerID.String(),
			"vendor_id": o.VendorID.String(),
			"booking":   true,
		}))
		return o, nil
	case ErrDuplicatePaymentReference, ErrInvalidTransition:
		// already attached by an earlier callback
		metrics.DuplicatePaymentRefsTotal.Inc()
		return s.repo.GetByPaymentReference(ctx, req.PaymentReference)
	default:
		return nil, err
	}
}

func (s *service) CreateBooking(ctx context.Context, req CreateBookingRequest) (*Order, error) {
	o, err := s.buildOrder(CreateFromPaymentRequest{
		BuyerID:         req.BuyerID,
		VendorID:        req.VendorID,
		Type:            TypeService,
		Items:           req.Items,
		ServiceLocation: req.ServiceLocation,
	})
	if err != nil {
		return nil, err
	}
	o.Status = StatusPendingPayment
	o.PaymentReference = ""

	initial := &Tracking{
		ID:          uuid.New(),
		OrderID:     o.ID,
		Status:      o.Status,
		Description: "Booking created, awaiting checkout",
	}
	if err := s.repo.CreateOrder(ctx, o, initial); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *service) buildOrder(req CreateFromPaymentRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	buyerID, err := uuid.Parse(req.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid buyer_id", ErrValidation)
	}
	vendorID, err := uuid.Parse(req.VendorID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid vendor_id", ErrValidation)
	}

	orderType := req.Type
	if orderType == "" {
		orderType = TypeProduct
	}

	orderID := uuid.New()
	var items []*Item
	var total float64
	for _, in := range req.Items {
		if in.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be >= 1 for listing %s", ErrValidation, in.ListingID)
		}
		if in.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: unit price must not be negative", ErrValidation)
		}
		listingID, err := uuid.Parse(in.ListingID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid listing_id %q", ErrValidation, in.ListingID)
		}
		lineTotal := in.UnitPrice * float64(in.Quantity)
		total += lineTotal
		items = append(items, &Item{
			ID:              uuid.New(),
			OrderID:         orderID,
			ListingID:       listingID,
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			LineTotal:       lineTotal,
			WeightKg:        in.WeightKg,
			AppointmentAt:   in.AppointmentAt,
			DurationMinutes: in.DurationMinutes,
			ServiceLocation: in.ServiceLocation,
		})
	}

	o := &Order{
		ID:               orderID,
		BuyerID:          buyerID,
		VendorID:         vendorID,
		TrackingNumber:   generateTrackingNumber(),
		Type:             orderType,
		Status:           StatusPaid,
		TotalAmount:      total,
		Currency:         "KES",
		DeliveryAddress:  req.DeliveryAddress,
		DeliveryLat:      req.DeliveryLat,
		DeliveryLng:      req.DeliveryLng,
		ServiceLocation:  req.ServiceLocation,
		PaymentReference: req.PaymentReference,
		Items:            items,
	}
	if orderType == TypeService {
		ts := TaskPendingAcceptance
		o.TaskStatus = &ts
	}
	return o, nil
}

// ── Transitions ──────────────────────────────────────────────────────────────

func (s *service) Transition(ctx context.Context, id string, action Action, p TransitionPayload) (*Order, error) {
	switch action {
	case ActionAccept:
		return s.accept(ctx, id)
	case ActionReady:
		return s.markReady(ctx, id)
	case ActionDispatch:
		return s.dispatch(ctx, id, p.CourierID, p.CourierName)
	case ActionMarkDelivered:
		return s.markDelivered(ctx, id)
	case ActionConfirm:
		return s.confirm(ctx, id)
	case ActionDispute:
		return s.dispute(ctx, id, p.Reason)
	case ActionCancel:
		return s.cancel(ctx, id, p.Reason)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}
}

func (s *service) accept(ctx context.Context, id string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Type == TypeService && o.TaskStatus != nil {
		return s.UpdateTaskStatus(ctx, id, TaskAccepted)
	}

	now := time.Now()
	err = s.transition(ctx, o, ActionAccept, o.Status, StatusConfirmed,
		"Vendor accepted the order", false, Stamps{VendorAcceptedAt: &now})
	if err != nil {
		return nil, err
	}
	s.publish(events.TypeOrderAccepted, o, nil)
	return s.repo.GetByID(ctx, id)
}

func (s *service) markReady(ctx context.Context, id string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.transition(ctx, o, ActionReady, o.Status, StatusReadyForPickup,
		"Order packed and ready for courier pickup", false, Stamps{})
	if err != nil {
		return nil, err
	}
	data := map[string]any{"delivery_address": o.DeliveryAddress}
	if o.DeliveryLat != nil && o.DeliveryLng != nil {
		data["delivery_lat"] = *o.DeliveryLat
		data["delivery_lng"] = *o.DeliveryLng
	}
	s.publish(events.TypeOrderReadyForPickup, o, data)
	return s.repo.GetByID(ctx, id)
}

func (s *service) dispatch(ctx context.Context, id, courierID, courierName string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stamps := Stamps{CourierName: courierName}
	now := time.Now()
	stamps.PickedUpAt = &now
	if courierID != "" {
		cid, err := uuid.Parse(courierID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid courier_id", ErrValidation)
		}
		stamps.CourierID = &cid
	}

	desc := "Order handed to courier for delivery"
	if courierName != "" {
		desc = fmt.Sprintf("Order picked up by %s", courierName)
	}
	err = s.transition(ctx, o, ActionDispatch, o.Status, StatusDispatched, desc, false, stamps)
	if err != nil {
		return nil, err
	}
	s.publish(events.TypeOrderDispatched, o, map[string]any{"courier_name": courierName})
	return s.repo.GetByID(ctx, id)
}

func (s *service) markDelivered(ctx context.Context, id string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.transition(ctx, o, ActionMarkDelivered, o.Status, StatusDelivered,
		"Order delivered to customer", true, Stamps{})
	if err != nil {
		return nil, err
	}

	s.recognizeEarnings(ctx, o)
	s.publish(events.TypeOrderDelivered, o, nil)
	return s.repo.GetByID(ctx, id)
}

func (s *service) confirm(ctx context.Context, id string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	err = s.transition(ctx, o, ActionConfirm, o.Status, StatusCustomerConfirmed,
		"Customer confirmed receipt", false, Stamps{CustomerConfirmedAt: &now})
	if err != nil {
		return nil, err
	}

	released, err := s.ledger.ReleaseEarningsForOrder(ctx, o.ID.String())
	if err != nil {
		// the confirmation is committed; the ledger release is retryable
		s.logger.WithError(err).WithField("order_id", o.ID).Error("failed to release vendor earnings")
	} else if released > 0 {
		s.logger.WithFields(logrus.Fields{
			"order_id": o.ID,
			"amount":   released,
		}).Info("vendor earnings released to available balance")
	}

	s.publish(events.TypeOrderConfirmed, o, map[string]any{"released": released})
	return s.repo.GetByID(ctx, id)
}

func (s *service) dispute(ctx context.Context, id, reason string) (*Order, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: dispute reason is required", ErrValidation)
	}
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.transition(ctx, o, ActionDispute, o.Status, StatusDisputed,
		fmt.Sprintf("Customer disputed the order: %s", reason), false,
		Stamps{DisputeReason: reason})
	if err != nil {
		return nil, err
	}
	// earnings for this order stay PENDING until an admin resolves the dispute
	s.publish(events.TypeOrderDisputed, o, map[string]any{"reason": reason})
	return s.repo.GetByID(ctx, id)
}

func (s *service) cancel(ctx context.Context, id, reason string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cancellable[o.Status] {
		metrics.InvalidTransitionsTotal.WithLabelValues(string(ActionCancel)).Inc()
		return nil, fmt.Errorf("%w: order in status %s cannot be cancelled", ErrInvalidTransition, o.Status)
	}

	desc := "Order cancelled"
	if reason != "" {
		desc = fmt.Sprintf("Order cancelled: %s", reason)
	}
	err = s.transition(ctx, o, ActionCancel, o.Status, StatusCancelled, desc, false, Stamps{})
	if err != nil {
		return nil, err
	}
	s.publish(events.TypeOrderCancelled, o, map[string]any{"reason": reason})
	return s.repo.GetByID(ctx, id)
}

func (s *service) UpdateTaskStatus(ctx context.Context, id string, next TaskStatus) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Type != TypeService || o.TaskStatus == nil {
		return nil, fmt.Errorf("%w: order %s is not a service order", ErrValidation, id)
	}
	current := *o.TaskStatus
	if !CanTransitionTask(current, next) {
		metrics.InvalidTransitionsTotal.WithLabelValues("task").Inc()
		return nil, fmt.Errorf("%w: cannot move task from %s to %s", ErrInvalidTransition, current, next)
	}

	mirror := taskToOrderStatus[next]
	t := &Tracking{
		ID:          uuid.New(),
		OrderID:     o.ID,
		Status:      mirror,
		Description: fmt.Sprintf("Service task moved to %s", next),
		Delivered:   next == TaskCompleted,
	}
	if err := s.repo.UpdateTaskStatusWithTracking(ctx, id, current, next, mirror, t); err != nil {
		return nil, err
	}
	metrics.OrderTransitionsTotal.WithLabelValues("task").Inc()

	switch next {
	case TaskCompleted:
		// completed services recognize earnings like delivered products
		s.recognizeEarnings(ctx, o)
		s.publish(events.TypeOrderDelivered, o, map[string]any{"service": true})
	case TaskDeclined, TaskCancelled:
		s.publish(events.TypeOrderCancelled, o, map[string]any{"task_status": string(next)})
	}
	return s.repo.GetByID(ctx, id)
}

// ── Reads ────────────────────────────────────────────────────────────────────

func (s *service) Get(ctx context.Context, id string) (*Order, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) Tracking(ctx context.Context, id string) ([]*Tracking, error) {
	return s.repo.ListTracking(ctx, id)
}

func (s *service) ListByVendor(ctx context.Context, vendorID string, status Status) ([]*Order, error) {
	return s.repo.ListByVendor(ctx, vendorID, status)
}

func (s *service) ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error) {
	return s.repo.ListByBuyer(ctx, buyerID)
}

// ── helpers ──────────────────────────────────────────────────────────────────

// transition applies one guarded status move with its tracking entry.
func (s *service) transition(ctx context.Context, o *Order, action Action, from, to Status, desc string, delivered bool, stamps Stamps) error {
	if !CanTransition(from, to) {
		metrics.InvalidTransitionsTotal.WithLabelValues(string(action)).Inc()
		return fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidTransition, from, to)
	}
	t := &Tracking{
		ID:          uuid.New(),
		OrderID:     o.ID,
		Status:      to,
		Description: desc,
		Delivered:   delivered,
	}
	if err := s.repo.UpdateStatusWithTracking(ctx, o.ID.String(), from, to, t, stamps); err != nil {
		if err == ErrInvalidTransition {
			metrics.InvalidTransitionsTotal.WithLabelValues(string(action)).Inc()
			return fmt.Errorf("%w: order is no longer in status %s", ErrInvalidTransition, from)
		}
		return err
	}
	metrics.OrderTransitionsTotal.WithLabelValues(string(action)).Inc()
	return nil
}

// recognizeEarnings posts the commission split for a delivered/completed
// order. The status transition is already committed; a ledger failure here is
// logged for reconciliation, never propagated.
func (s *service) recognizeEarnings(ctx context.Context, o *Order) {
	pct := -1.0
	if p, err := s.fees.EffectiveFeePct(ctx, o.VendorID.String()); err == nil {
		pct = p
	}
	b, err := s.calc.Split(o.TotalAmount, pct)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", o.ID).Error("commission split failed")
		return
	}
	e := &vendor.Earning{
		ID:          uuid.New(),
		VendorID:    o.VendorID,
		OrderID:     o.ID,
		GrossAmount: b.GrossAmount,
		FeePct:      b.FeePct,
		PlatformFee: b.PlatformFee,
		NetEarnings: b.NetEarnings,
		Status:      vendor.EarningPending,
		EarnedAt:    time.Now(),
	}
	if err := s.ledger.RecognizeEarning(ctx, e); err != nil {
		s.logger.WithError(err).WithField("order_id", o.ID).Error("failed to recognize vendor earning")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"order_id":     o.ID,
		"vendor_id":    o.VendorID,
		"net_earnings": b.NetEarnings,
		"fee_pct":      b.FeePct,
	}).Info("vendor earning recognized")
}

func (s *service) publish(t events.Type, o *Order, extra map[string]any) {
	data := map[string]any{
		"buyer_id":        o.BuyerID.String(),
		"vendor_id":       o.VendorID.String(),
		"tracking_number": o.TrackingNumber,
	}
	for k, v := range extra {
		data[k] = v
	}
	s.bus.Publish(events.New(t, o.ID.String(), data))
}

// generateTrackingNumber creates a human-readable number: SOK-YYYYMMDD-XXXX
func generateTrackingNumber() string {
	date := time.Now().UTC().Format("20060102")
	suffix := strings.ToUpper(uuid.New().String()[:4])
	return fmt.Sprintf("SOK-%s-%s", date, suffix)
}

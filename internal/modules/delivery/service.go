package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/events"
	"github.com/sokoline/sokoline-backend/internal/metrics"
	"github.com/sokoline/sokoline-backend/internal/modules/geo"
	"github.com/sokoline/sokoline-backend/internal/modules/order"
	"github.com/sokoline/sokoline-backend/internal/modules/vendor"
)

// Orders is the slice of the order service dispatch needs. order.Service
// satisfies it.
type Orders interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	Transition(ctx context.Context, id string, action order.Action, p order.TransitionPayload) (*order.Order, error)
}

// Vendors resolves pickup locations. vendor.Repository satisfies it.
type Vendors interface {
	GetVendorByID(ctx context.Context, id string) (*vendor.Vendor, error)
}

// Service defines the delivery dispatch business logic.
type Service interface {
	// CreateForOrder dispatches a courier for an order. With no provider
	// given the cheapest-by-distance active provider is chosen. A repeat
	// call for the same order returns the existing delivery unchanged.
	CreateForOrder(ctx context.Context, req CreateRequest) (*Delivery, error)

	// UpdateStatus advances the delivery and propagates milestones onto the
	// order lifecycle.
	UpdateStatus(ctx context.Context, id string, req UpdateStatusRequest) (*Delivery, error)

	// Reassign hands a stuck delivery to a different provider, repricing it.
	Reassign(ctx context.Context, id string, req ReassignRequest) (*Delivery, error)

	Get(ctx context.Context, id string) (*Delivery, error)
	GetByOrder(ctx context.Context, orderID string) (*Delivery, error)
	Updates(ctx context.Context, id string) ([]*Update, error)

	CreateProvider(ctx context.Context, req CreateProviderRequest) (*Provider, error)
	ListProviders(ctx context.Context) ([]*Provider, error)
}

type service struct {
	repo      Repository
	providers ProviderRepository
	orders    Orders
	vendors   Vendors
	bus       *events.Bus
	logger    *logrus.Logger
}

// NewService creates a new delivery service.
func NewService(repo Repository, providers ProviderRepository, orders Orders, vendors Vendors, bus *events.Bus, logger *logrus.Logger) Service {
	return &service{repo: repo, providers: providers, orders: orders, vendors: vendors, bus: bus, logger: logger}
}

func (s *service) CreateForOrder(ctx context.Context, req CreateRequest) (*Delivery, error) {
	o, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Type != order.TypeProduct {
		return nil, fmt.Errorf("%w: service orders are not dispatched", ErrValidation)
	}
	if existing, err := s.repo.GetByOrderID(ctx, req.OrderID); err == nil {
		// duplicate trigger, not an error
		return existing, nil
	}
	if o.Status != order.StatusReadyForPickup {
		return nil, fmt.Errorf("%w: order %s is not ready for pickup", ErrInvalidTransition, o.ID)
	}

	pickup, dropoff := s.endpoints(ctx, o)
	distance := EstimateDistanceKm(pickup, dropoff, o.DeliveryAddress)
	weight := totalWeight(o)

	var p *Provider
	if req.ProviderID != "" {
		p, err = s.providers.GetProviderByID(ctx, req.ProviderID)
	} else {
		p, err = s.pickProvider(ctx, distance, weight)
	}
	if err != nil {
		return nil, err
	}

	d := &Delivery{
		ID:             uuid.New(),
		OrderID:        o.ID,
		ProviderID:     p.ID,
		ProviderName:   p.Name,
		Status:         StatusPickupScheduled,
		Cost:           Cost(p, distance, weight),
		DistanceKm:     distance,
		WeightKg:       weight,
		DropoffAddress: o.DeliveryAddress,
	}
	if v, err := s.vendors.GetVendorByID(ctx, o.VendorID.String()); err == nil {
		d.PickupAddress = v.BusinessName
	}

	initial := &Update{
		ID:         uuid.New(),
		DeliveryID: d.ID,
		Status:     StatusPickupScheduled,
		Note:       fmt.Sprintf("Pickup scheduled with %s", p.Name),
		Source:     SourceAPI,
	}
	if err := s.repo.CreateDelivery(ctx, d, initial); err != nil {
		if errors.Is(err, ErrDuplicateDelivery) {
			return s.repo.GetByOrderID(ctx, req.OrderID)
		}
		return nil, err
	}

	metrics.DeliveriesCreatedTotal.Inc()
	// assigning a provider is what moves the order to DISPATCHED
	s.transitionOrder(ctx, d, order.ActionDispatch, order.TransitionPayload{
		CourierID:   p.ID.String(),
		CourierName: p.Name,
	})
	s.bus.Publish(events.New(events.TypeDeliveryCreated, d.ID.String(), map[string]any{
		"order_id":    o.ID.String(),
		"provider_id": p.ID.String(),
		"cost":        d.Cost,
		"distance_km": d.DistanceKm,
	}))
	return d, nil
}

func (s *service) UpdateStatus(ctx context.Context, id string, req UpdateStatusRequest) (*Delivery, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(d.Status, req.Status) {
		return nil, fmt.Errorf("%w: cannot move delivery from %s to %s", ErrInvalidTransition, d.Status, req.Status)
	}

	source := req.Source
	if source == "" {
		source = SourceAPI
	}
	u := &Update{
		ID:         uuid.New(),
		DeliveryID: d.ID,
		Status:     req.Status,
		Note:       req.Note,
		Source:     source,
	}
	if err := s.repo.UpdateStatusWithEntry(ctx, id, d.Status, req.Status, req.ExternalTrackingID, u); err != nil {
		return nil, err
	}
	metrics.DeliveryUpdatesTotal.WithLabelValues(string(req.Status), string(source)).Inc()

	s.propagate(ctx, d, req.Status)
	s.bus.Publish(events.New(events.TypeDeliveryUpdated, d.ID.String(), map[string]any{
		"order_id": d.OrderID.String(),
		"status":   string(req.Status),
		"source":   string(source),
	}))
	return s.repo.GetByID(ctx, id)
}

func (s *service) Reassign(ctx context.Context, id string, req ReassignRequest) (*Delivery, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusPickupScheduled && d.Status != StatusFailed {
		return nil, fmt.Errorf("%w: cannot reassign delivery in status %s", ErrInvalidTransition, d.Status)
	}
	p, err := s.providers.GetProviderByID(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("Reassigned to %s", p.Name)
	if req.Reason != "" {
		note = fmt.Sprintf("%s: %s", note, req.Reason)
	}
	u := &Update{
		ID:         uuid.New(),
		DeliveryID: d.ID,
		Status:     StatusPickupScheduled,
		Note:       note,
		Source:     SourceReassigned,
	}
	cost := Cost(p, d.DistanceKm, d.WeightKg)
	if err := s.repo.Reassign(ctx, id, d.Status, p.ID, p.Name, cost, u); err != nil {
		return nil, err
	}

	s.bus.Publish(events.New(events.TypeDeliveryReassigned, d.ID.String(), map[string]any{
		"order_id":    d.OrderID.String(),
		"provider_id": p.ID.String(),
		"reason":      req.Reason,
	}))
	return s.repo.GetByID(ctx, id)
}

func (s *service) Get(ctx context.Context, id string) (*Delivery, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetByOrder(ctx context.Context, orderID string) (*Delivery, error) {
	return s.repo.GetByOrderID(ctx, orderID)
}

func (s *service) Updates(ctx context.Context, id string) ([]*Update, error) {
	return s.repo.ListUpdates(ctx, id)
}

func (s *service) CreateProvider(ctx context.Context, req CreateProviderRequest) (*Provider, error) {
	p := &Provider{
		ID:        uuid.New(),
		Name:      req.Name,
		Phone:     req.Phone,
		BaseRate:  req.BaseRate,
		PerKmRate: req.PerKmRate,
		Lat:       req.Lat,
		Lng:       req.Lng,
		Active:    true,
	}
	if err := s.providers.CreateProvider(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) ListProviders(ctx context.Context) ([]*Provider, error) {
	return s.providers.ListActiveProviders(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────────────

// propagate mirrors delivery milestones onto the order lifecycle. The
// delivery update is already committed; an order that has been moved through
// another path is tolerated.
func (s *service) propagate(ctx context.Context, d *Delivery, next Status) {
	switch next {
	case StatusInTransit:
		// usually a no-op, the order was dispatched at creation
		s.transitionOrder(ctx, d, order.ActionDispatch, order.TransitionPayload{
			CourierID:   d.ProviderID.String(),
			CourierName: d.ProviderName,
		})
	case StatusDelivered:
		s.transitionOrder(ctx, d, order.ActionMarkDelivered, order.TransitionPayload{})
	}
}

func (s *service) transitionOrder(ctx context.Context, d *Delivery, action order.Action, payload order.TransitionPayload) {
	if _, err := s.orders.Transition(ctx, d.OrderID.String(), action, payload); err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			s.logger.WithField("order_id", d.OrderID).Debug("order already past delivery milestone")
			return
		}
		s.logger.WithError(err).WithField("order_id", d.OrderID).Error("failed to propagate delivery status to order")
	}
}

func (s *service) endpoints(ctx context.Context, o *order.Order) (pickup, dropoff *geo.Point) {
	if v, err := s.vendors.GetVendorByID(ctx, o.VendorID.String()); err == nil {
		if pt, ok := v.Location(); ok {
			pickup = &pt
		}
	}
	if o.DeliveryLat != nil && o.DeliveryLng != nil {
		dropoff = &geo.Point{Lat: *o.DeliveryLat, Lng: *o.DeliveryLng}
	}
	return pickup, dropoff
}

// pickProvider chooses the cheapest active provider for the shipment.
func (s *service) pickProvider(ctx context.Context, distanceKm, weightKg float64) (*Provider, error) {
	providers, err := s.providers.ListActiveProviders(ctx)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, ErrNoProvider
	}
	best := providers[0]
	bestCost := Cost(best, distanceKm, weightKg)
	for _, p := range providers[1:] {
		if c := Cost(p, distanceKm, weightKg); c < bestCost {
			best, bestCost = p, c
		}
	}
	return best, nil
}

func totalWeight(o *order.Order) float64 {
	var kg float64
	for _, it := range o.Items {
		kg += it.WeightKg * float64(it.Quantity)
	}
	return kg
}

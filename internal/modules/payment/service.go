package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/modules/order"
)

// OrderCreator materializes orders from settled payments. order.Service
// satisfies it.
type OrderCreator interface {
	CreateFromPayment(ctx context.Context, req order.CreateFromPaymentRequest) (*order.Order, error)
}

// Service defines the payment business logic.
type Service interface {
	// Initiate starts a checkout payment with the chosen provider.
	Initiate(ctx context.Context, req InitiateRequest) (*Transaction, error)

	// Verify polls the provider for the transaction's current status and
	// settles it when terminal.
	Verify(ctx context.Context, id string) (*Transaction, error)

	// HandleWebhook settles a transaction from a provider callback. Replayed
	// webhooks are harmless: settlement is idempotent.
	HandleWebhook(ctx context.Context, payload WebhookPayload) (*Transaction, error)

	Get(ctx context.Context, id string) (*Transaction, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*Transaction, error)
}

type service struct {
	repo     Repository
	gateways GatewayRegistry
	orders   OrderCreator
	logger   *logrus.Logger
}

// NewService creates a new payment service.
func NewService(repo Repository, gateways GatewayRegistry, orders OrderCreator, logger *logrus.Logger) Service {
	return &service{repo: repo, gateways: gateways, orders: orders, logger: logger}
}

func (s *service) Initiate(ctx context.Context, req InitiateRequest) (*Transaction, error) {
	provider := Provider(req.Provider)
	gw, ok := s.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, req.Provider)
	}
	if len(req.Cart.Items) == 0 && req.Cart.BookingOrderID == "" {
		return nil, fmt.Errorf("%w: cart is empty", ErrValidation)
	}
	if req.Currency == "" {
		req.Currency = "KES"
	}

	cart := req.Cart
	t := &Transaction{
		ID:          uuid.New(),
		Provider:    provider,
		Status:      TxPending,
		Amount:      req.Amount,
		Currency:    req.Currency,
		PhoneNumber: req.PhoneNumber,
		Description: req.Description,
		Cart:        &cart,
	}

	resp, err := gw.Initiate(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	t.ProviderRef = resp.ProviderRef
	t.ProviderStatus = resp.ProviderStatus
	t.Status = NormaliseStatus(provider, resp.ProviderStatus)

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	// cash completes on the spot
	if t.Status == TxCompleted {
		return s.settle(ctx, t)
	}
	return t, nil
}

func (s *service) Verify(ctx context.Context, id string) (*Transaction, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if terminal(t.Status) {
		return t, nil
	}
	gw, ok := s.gateways[t.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, t.Provider)
	}

	resp, err := gw.Verify(ctx, t.ProviderRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	t.ProviderStatus = resp.ProviderStatus
	t.Status = NormaliseStatus(t.Provider, resp.ProviderStatus)
	return s.settle(ctx, t)
}

func (s *service) HandleWebhook(ctx context.Context, payload WebhookPayload) (*Transaction, error) {
	t, err := s.repo.GetByProviderRef(ctx, payload.ExternalRef)
	if err != nil {
		return nil, err
	}
	if terminal(t.Status) {
		return t, nil
	}

	now := time.Now()
	t.WebhookReceivedAt = &now
	t.ProviderStatus = payload.Status
	t.Status = NormaliseStatus(t.Provider, payload.Status)
	return s.settle(ctx, t)
}

func (s *service) Get(ctx context.Context, id string) (*Transaction, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListByBuyer(ctx context.Context, buyerID string) ([]*Transaction, error) {
	return s.repo.ListByBuyer(ctx, buyerID)
}

// ── helpers ──────────────────────────────────────────────────────────────────

// settle persists the transaction's new state and, on completion,
// materializes the order. The order layer dedupes on the payment reference,
// so racing webhook and verify calls end up with one order.
func (s *service) settle(ctx context.Context, t *Transaction) (*Transaction, error) {
	if t.Status == TxCompleted && t.OrderID == nil && t.Cart != nil {
		o, err := s.orders.CreateFromPayment(ctx, order.CreateFromPaymentRequest{
			BuyerID:          t.Cart.BuyerID,
			VendorID:         t.Cart.VendorID,
			Type:             t.Cart.OrderType,
			BookingOrderID:   t.Cart.BookingOrderID,
			PaymentReference: t.ID.String(),
			DeliveryAddress:  t.Cart.DeliveryAddress,
			DeliveryLat:      t.Cart.DeliveryLat,
			DeliveryLng:      t.Cart.DeliveryLng,
			ServiceLocation:  t.Cart.ServiceLocation,
			Items:            t.Cart.Items,
		})
		if err != nil {
			t.LastError = err.Error()
			s.logger.WithError(err).WithField("transaction_id", t.ID).Error("failed to create order from settled payment")
		} else {
			t.OrderID = &o.ID
		}
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func terminal(s TxStatus) bool {
	return s == TxCompleted || s == TxFailed || s == TxCancelled
}

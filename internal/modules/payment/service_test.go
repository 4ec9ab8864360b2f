package payment

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/modules/order"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeRepo struct {
	mu    sync.Mutex
	txs   map[string]*Transaction
	byRef map[string]*Transaction
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{txs: make(map[string]*Transaction), byRef: make(map[string]*Transaction)}
}

func (f *fakeRepo) Create(_ context.Context, t *Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.txs[t.ID.String()] = &cp
	if t.ProviderRef != "" {
		f.byRef[t.ProviderRef] = &cp
	}
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRepo) GetByProviderRef(_ context.Context, ref string) (*Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byRef[ref]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRepo) Update(_ context.Context, t *Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.txs[t.ID.String()]; !ok {
		return ErrNotFound
	}
	cp := *t
	f.txs[t.ID.String()] = &cp
	if t.ProviderRef != "" {
		f.byRef[t.ProviderRef] = &cp
	}
	return nil
}

func (f *fakeRepo) ListByBuyer(_ context.Context, buyerID string) ([]*Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Transaction
	for _, t := range f.txs {
		if t.Cart != nil && t.Cart.BuyerID == buyerID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

type stubGateway struct {
	status string
}

func (g *stubGateway) Initiate(_ context.Context, _ *InitiateRequest) (*ProviderInitResponse, error) {
	return &ProviderInitResponse{ProviderRef: "ref-" + uuid.New().String()[:8], ProviderStatus: "PENDING"}, nil
}

func (g *stubGateway) Verify(_ context.Context, ref string) (*ProviderInitResponse, error) {
	return &ProviderInitResponse{ProviderRef: ref, ProviderStatus: g.status}, nil
}

type recordingOrders struct {
	mu    sync.Mutex
	calls []order.CreateFromPaymentRequest
}

func (r *recordingOrders) CreateFromPayment(_ context.Context, req order.CreateFromPaymentRequest) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	return &order.Order{ID: uuid.New(), Status: order.StatusPaid}, nil
}

func newTestService(repo *fakeRepo, gw Gateway, orders *recordingOrders) Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	registry := GatewayRegistry{ProviderMpesa: gw, ProviderCash: NewCashGateway()}
	return NewService(repo, registry, orders, logger)
}

func testCart() CheckoutCart {
	return CheckoutCart{
		BuyerID:         uuid.New().String(),
		VendorID:        uuid.New().String(),
		DeliveryAddress: "Kenyatta Avenue, Nairobi",
		Items: []order.ItemInput{
			{ListingID: uuid.New().String(), Quantity: 1, UnitPrice: 2500, WeightKg: 1},
		},
	}
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestNormaliseStatus(t *testing.T) {
	cases := []struct {
		in   string
		want TxStatus
	}{
		{"SUCCESS", TxCompleted},
		{"success", TxCompleted},
		{"PAID", TxCompleted},
		{"FAILED", TxFailed},
		{"insufficient_funds", TxFailed},
		{"CANCELLED", TxCancelled},
		{"abandoned", TxCancelled},
		{"PENDING", TxPending},
		{"something_odd", TxProcessing},
	}
	for _, tc := range cases {
		if got := NormaliseStatus(ProviderMpesa, tc.in); got != tc.want {
			t.Errorf("NormaliseStatus(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestInitiateStoresPendingTransaction(t *testing.T) {
	repo := newFakeRepo()
	orders := &recordingOrders{}
	svc := newTestService(repo, &stubGateway{status: "SUCCESS"}, orders)

	tx, err := svc.Initiate(context.Background(), InitiateRequest{
		Provider:    string(ProviderMpesa),
		Amount:      2500,
		PhoneNumber: "254712345678",
		Cart:        testCart(),
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if tx.Status != TxPending {
		t.Errorf("status = %s, want %s", tx.Status, TxPending)
	}
	if tx.Currency != "KES" {
		t.Errorf("currency = %s, want KES", tx.Currency)
	}
	if tx.ProviderRef == "" {
		t.Error("provider ref not recorded")
	}
	if len(orders.calls) != 0 {
		t.Errorf("pending payment created an order")
	}
}

func TestInitiateRejectsUnknownProvider(t *testing.T) {
	svc := newTestService(newFakeRepo(), &stubGateway{}, &recordingOrders{})
	_, err := svc.Initiate(context.Background(), InitiateRequest{
		Provider: "AIRTEL_MONEY",
		Amount:   100,
		Cart:     testCart(),
	})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestWebhookSettlementCreatesOrderOnce(t *testing.T) {
	repo := newFakeRepo()
	orders := &recordingOrders{}
	svc := newTestService(repo, &stubGateway{status: "SUCCESS"}, orders)
	ctx := context.Background()

	tx, _ := svc.Initiate(ctx, InitiateRequest{
		Provider:    string(ProviderMpesa),
		Amount:      2500,
		PhoneNumber: "254712345678",
		Cart:        testCart(),
	})

	settled, err := svc.HandleWebhook(ctx, WebhookPayload{ExternalRef: tx.ProviderRef, Status: "SUCCESS"})
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if settled.Status != TxCompleted {
		t.Errorf("status = %s, want %s", settled.Status, TxCompleted)
	}
	if settled.OrderID == nil {
		t.Fatal("order not created on settlement")
	}
	if len(orders.calls) != 1 {
		t.Fatalf("order creations = %d, want 1", len(orders.calls))
	}
	if orders.calls[0].PaymentReference != tx.ID.String() {
		t.Errorf("payment reference = %q, want transaction id", orders.calls[0].PaymentReference)
	}

	// replayed webhook is a no-op
	again, err := svc.HandleWebhook(ctx, WebhookPayload{ExternalRef: tx.ProviderRef, Status: "SUCCESS"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(orders.calls) != 1 {
		t.Errorf("replayed webhook created another order")
	}
	if again.OrderID == nil || *again.OrderID != *settled.OrderID {
		t.Errorf("replay returned a different order")
	}
}

func TestVerifySettlesTransaction(t *testing.T) {
	repo := newFakeRepo()
	orders := &recordingOrders{}
	svc := newTestService(repo, &stubGateway{status: "SUCCESS"}, orders)
	ctx := context.Background()

	tx, _ := svc.Initiate(ctx, InitiateRequest{
		Provider:    string(ProviderMpesa),
		Amount:      1200,
		PhoneNumber: "254700111222",
		Cart:        testCart(),
	})
	verified, err := svc.Verify(ctx, tx.ID.String())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified.Status != TxCompleted {
		t.Errorf("status = %s, want %s", verified.Status, TxCompleted)
	}
	if len(orders.calls) != 1 {
		t.Errorf("order creations = %d, want 1", len(orders.calls))
	}
}

func TestFailedWebhookDoesNotCreateOrder(t *testing.T) {
	repo := newFakeRepo()
	orders := &recordingOrders{}
	svc := newTestService(repo, &stubGateway{status: "FAILED"}, orders)
	ctx := context.Background()

	tx, _ := svc.Initiate(ctx, InitiateRequest{
		Provider:    string(ProviderMpesa),
		Amount:      900,
		PhoneNumber: "254700111222",
		Cart:        testCart(),
	})
	settled, err := svc.HandleWebhook(ctx, WebhookPayload{ExternalRef: tx.ProviderRef, Status: "FAILED"})
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if settled.Status != TxFailed {
		t.Errorf("status = %s, want %s", settled.Status, TxFailed)
	}
	if len(orders.calls) != 0 {
		t.Errorf("failed payment created an order")
	}
}

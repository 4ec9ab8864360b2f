package payout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/events"
	"github.com/sokoline/sokoline-backend/internal/modules/vendor"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type balances struct {
	total     float64
	available float64
	pending   float64
	paidOut   float64
}

// identity holds when total = available + pending + paidOut.
func (b balances) consistent() bool {
	return b.total == b.available+b.pending+b.paidOut
}

type fakeStore struct {
	mu       sync.Mutex
	vendors  map[string]*vendor.Vendor
	ledger   map[string]*balances
	payouts  map[string]*Request
	byRef    map[string]*Request
	stamped  []uuid.UUID
	stampErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		vendors: make(map[string]*vendor.Vendor),
		ledger:  make(map[string]*balances),
		payouts: make(map[string]*Request),
		byRef:   make(map[string]*Request),
	}
}

func (f *fakeStore) addVendor(v *vendor.Vendor, b balances) {
	f.vendors[v.ID.String()] = v
	f.ledger[v.ID.String()] = &b
}

// VendorStore

func (f *fakeStore) GetVendorByID(_ context.Context, id string) (*vendor.Vendor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vendors[id]
	if !ok {
		return nil, vendor.ErrNotFound
	}
	return v, nil
}

func (f *fakeStore) MarkEarningsPaidOut(_ context.Context, _ string, payoutRequestID uuid.UUID, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stampErr != nil {
		return f.stampErr
	}
	f.stamped = append(f.stamped, payoutRequestID)
	return nil
}

// Repository

func (f *fakeStore) CreateWithReservation(_ context.Context, p *Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.ledger[p.VendorID.String()]
	if !ok || b.available < p.Amount {
		return ErrInsufficientBalance
	}
	b.available -= p.Amount
	b.pending += p.Amount
	cp := *p
	f.payouts[p.ID.String()] = &cp
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payouts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetByTransferReference(_ context.Context, ref string) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byRef[ref]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ListByVendor(_ context.Context, vendorID string) ([]*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Request
	for _, p := range f.payouts {
		if p.VendorID.String() == vendorID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByStatus(_ context.Context, status Status) ([]*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Request
	for _, p := range f.payouts {
		if p.Status == status {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, from, to Status, fields Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payouts[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != from {
		return ErrInvalidTransition
	}
	p.Status = to
	if fields.TransferReference != "" {
		p.TransferReference = fields.TransferReference
		f.byRef[fields.TransferReference] = p
	}
	if fields.ReviewNote != "" {
		p.ReviewNote = fields.ReviewNote
	}
	if fields.ReviewedBy != "" {
		p.ReviewedBy = fields.ReviewedBy
	}
	if fields.FailureReason != "" {
		p.FailureReason = fields.FailureReason
	}
	if fields.Processed {
		now := time.Now()
		p.ProcessedAt = &now
	}
	return nil
}

func (f *fakeStore) ReleaseReservation(_ context.Context, id string, from, to Status, reviewedBy, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payouts[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != from {
		return ErrInvalidTransition
	}
	p.Status = to
	p.FailureReason = reason
	if reviewedBy != "" {
		p.ReviewedBy = reviewedBy
	}
	b := f.ledger[p.VendorID.String()]
	b.pending -= p.Amount
	b.available += p.Amount
	return nil
}

func (f *fakeStore) Settle(_ context.Context, id string, from Status, actualAmount float64) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payouts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status != from {
		return nil, ErrInvalidTransition
	}
	p.Status = StatusCompleted
	p.ActualPaidAmount = actualAmount
	now := time.Now()
	p.SettledAt = &now
	b := f.ledger[p.VendorID.String()]
	b.pending -= p.Amount
	b.paidOut += p.Amount
	cp := *p
	return &cp, nil
}

type fakeGateway struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeGateway) InitiateTransfer(_ context.Context, payoutID string, _ float64, _, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return "", errors.New("provider timeout")
	}
	return fmt.Sprintf("trf_%s", payoutID[:8]), nil
}

func newTestService(store *fakeStore, gw *fakeGateway) Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	bus := events.NewBus(logger, func() {})
	return NewService(store, store, gw, bus, logger, DefaultMinAmount)
}

func seedVendor(store *fakeStore, available float64) *vendor.Vendor {
	v := &vendor.Vendor{
		ID:               uuid.New(),
		MomoNumber:       "254712345678",
		AvailableBalance: available,
	}
	store.addVendor(v, balances{total: available + 500, available: available, pending: 500})
	return v
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestRequestReservesAvailableBalance(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})
	v := seedVendor(store, 5000)

	p, err := svc.Request(context.Background(), CreateRequest{VendorID: v.ID.String(), Amount: 3000, Reason: "weekly stock purchase"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if p.Status != StatusPending {
		t.Errorf("status = %s, want %s", p.Status, StatusPending)
	}
	if p.Method != MethodMomo || p.DestinationNumber != "254712345678" {
		t.Errorf("destination snapshot = %s/%s", p.Method, p.DestinationNumber)
	}
	if p.Reason != "weekly stock purchase" {
		t.Errorf("reason = %q", p.Reason)
	}
	if p.AvailableBalanceSnapshot != 5000 {
		t.Errorf("balance snapshot = %v, want 5000", p.AvailableBalanceSnapshot)
	}

	b := store.ledger[v.ID.String()]
	if b.available != 2000 || b.pending != 3500 {
		t.Errorf("balances after reserve = %+v", *b)
	}
	if !b.consistent() {
		t.Errorf("reconciliation identity broken: %+v", *b)
	}
}

func TestRequestGuards(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})
	ctx := context.Background()

	v := seedVendor(store, 1000)
	if _, err := svc.Request(ctx, CreateRequest{VendorID: v.ID.String(), Amount: 2000}); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("over-withdrawal: err = %v, want ErrInsufficientBalance", err)
	}
	if _, err := svc.Request(ctx, CreateRequest{VendorID: v.ID.String(), Amount: 50}); !errors.Is(err, ErrValidation) {
		t.Errorf("below minimum: err = %v, want ErrValidation", err)
	}

	bare := &vendor.Vendor{ID: uuid.New()}
	store.addVendor(bare, balances{total: 5000, available: 5000})
	if _, err := svc.Request(ctx, CreateRequest{VendorID: bare.ID.String(), Amount: 1000}); !errors.Is(err, ErrMissingPayoutDetails) {
		t.Errorf("no payout details: err = %v, want ErrMissingPayoutDetails", err)
	}
}

func TestApproveInitiatesTransfer(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc := newTestService(store, gw)
	v := seedVendor(store, 5000)
	ctx := context.Background()

	admin := uuid.New().String()
	p, _ := svc.Request(ctx, CreateRequest{VendorID: v.ID.String(), Amount: 3000})
	approved, err := svc.Approve(ctx, p.ID.String(), admin, "looks good")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != StatusProcessing {
		t.Errorf("status = %s, want %s", approved.Status, StatusProcessing)
	}
	if approved.TransferReference == "" {
		t.Error("transfer reference not recorded")
	}
	if approved.ReviewedBy != admin {
		t.Errorf("reviewed by = %q, want %q", approved.ReviewedBy, admin)
	}
	if gw.calls != 1 {
		t.Errorf("gateway calls = %d, want 1", gw.calls)
	}
}

func TestApproveGatewayFailureReleasesReservation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{fail: true})
	v := seedVendor(store, 5000)
	ctx := context.Background()

	p, _ := svc.Request(ctx, CreateRequest{VendorID: v.ID.String(), Amount: 3000})
	_, err := svc.Approve(ctx, p.ID.String(), uuid.New().String(), "")
	if !errors.Is(err, ErrExternalService) {
		t.Fatalf("err = %v, want ErrExternalService", err)
	}

	failed, _ := svc.Get(ctx, p.ID.String())
	if failed.Status != StatusFailed {
		t.Errorf("status = %s, want %s", failed.Status, StatusFailed)
	}
	b := store.ledger[v.ID.String()]
	if b.available != 5000 || b.pending != 500 {
		t.Errorf("reservation not released: %+v", *b)
	}
	if !b.consistent() {
		t.Errorf("reconciliation identity broken: %+v", *b)
	}
}

func TestRejectReturnsFunds(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})
	v := seedVendor(store, 5000)
	ctx := context.Background()

	admin := uuid.New().String()
	p, _ := svc.Request(ctx, CreateRequest{VendorID: v.ID.String(), Amount: 2000})
	rejected, err := svc.Reject(ctx, p.ID.String(), admin, "unverified bank account")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != StatusRejected {
		t.Errorf("status = %s, want %s", rejected.Status, StatusRejected)
	}
	if rejected.ReviewedBy != admin {
		t.Errorf("reviewed by = %q, want %q", rejected.ReviewedBy, admin)
	}
	b := store.ledger[v.ID.String()]
	if b.available != 5000 {
		t.Errorf("available = %v, want 5000", b.available)
	}

	// terminal states stay terminal
	if _, err := svc.Approve(ctx, p.ID.String(), admin, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("approve after reject: err = %v, want ErrInvalidTransition", err)
	}
}

func TestSettleTransferCompletesPayout(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})
	v := seedVendor(store, 5000)
	ctx := context.Background()

	p, _ := svc.Request(ctx, CreateRequest{VendorID: v.ID.String(), Amount: 3000})
	approved, _ := svc.Approve(ctx, p.ID.String(), uuid.New().String(), "")

	settled, err := svc.SettleTransfer(ctx, SettlementNotice{
		TransferReference: approved.TransferReference,
		Success:           true,
	})
	if err != nil {
		t.Fatalf("SettleTransfer: %v", err)
	}
	if settled.Status != StatusCompleted {
		t.Errorf("status = %s, want %s", settled.Status, StatusCompleted)
	}
	if settled.SettledAt == nil {
		t.Error("SettledAt not stamped")
	}
	// webhook omitted the paid amount, the reserved amount stands in
	if settled.ActualPaidAmount != 3000 {
		t.Errorf("actual paid = %v, want 3000", settled.ActualPaidAmount)
	}

	b := store.ledger[v.ID.String()]
	if b.paidOut != 3000 || b.pending != 500 || b.available != 2000 {
		t.Errorf("balances after settle = %+v", *b)
	}
	if !b.consistent() {
		t.Errorf("reconciliation identity broken: %+v", *b)
	}
	if len(store.stamped) != 1 || store.stamped[0] != settled.ID {
		t.Errorf("earnings not stamped for payout %s: %v", settled.ID, store.stamped)
	}
}

func TestSettleTransferRecordsProviderAmount(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})
	v := seedVendor(store, 5000)
	ctx := context.Background()

	p, _ := svc.Request(ctx, CreateRequest{VendorID: v.ID.String(), Amount: 3000})
	approved, _ := svc.Approve(ctx, p.ID.String(), uuid.New().String(), "")

	// provider deducted its transfer fee before paying out
	settled, err := svc.SettleTransfer(ctx, SettlementNotice{
		TransferReference: approved.TransferReference,
		Success:           true,
		AmountPaid:        2955,
	})
	if err != nil {
		t.Fatalf("SettleTransfer: %v", err)
	}
	if settled.ActualPaidAmount != 2955 {
		t.Errorf("actual paid = %v, want 2955", settled.ActualPaidAmount)
	}
	if settled.Amount != 3000 {
		t.Errorf("reserved amount = %v, want 3000", settled.Amount)
	}
}

func TestSettleTransferFailureReleasesReservation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})
	v := seedVendor(store, 5000)
	ctx := context.Background()

	p, _ := svc.Request(ctx, CreateRequest{VendorID: v.ID.String(), Amount: 3000})
	approved, _ := svc.Approve(ctx, p.ID.String(), uuid.New().String(), "")

	failed, err := svc.SettleTransfer(ctx, SettlementNotice{
		TransferReference: approved.TransferReference,
		Success:           false,
		Reason:            "recipient account closed",
	})
	if err != nil {
		t.Fatalf("SettleTransfer: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Errorf("status = %s, want %s", failed.Status, StatusFailed)
	}
	if failed.FailureReason != "recipient account closed" {
		t.Errorf("reason = %q", failed.FailureReason)
	}
	b := store.ledger[v.ID.String()]
	if b.available != 5000 || b.paidOut != 0 {
		t.Errorf("balances after failed settle = %+v", *b)
	}
	if !b.consistent() {
		t.Errorf("reconciliation identity broken: %+v", *b)
	}
}

package order

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/events"
	"github.com/sokoline/sokoline-backend/internal/modules/commission"
	"github.com/sokoline/sokoline-backend/internal/modules/vendor"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeRepo struct {
	mu       sync.Mutex
	orders   map[string]*Order
	byRef    map[string]*Order
	tracking map[string][]*Tracking
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders:   make(map[string]*Order),
		byRef:    make(map[string]*Order),
		tracking: make(map[string][]*Tracking),
	}
}

func (f *fakeRepo) CreateOrder(_ context.Context, o *Order, initial *Tracking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.PaymentReference != "" {
		if _, ok := f.byRef[o.PaymentReference]; ok {
			return ErrDuplicatePaymentReference
		}
		f.byRef[o.PaymentReference] = o
	}
	f.orders[o.ID.String()] = o
	f.tracking[o.ID.String()] = append(f.tracking[o.ID.String()], initial)
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeRepo) GetByPaymentReference(_ context.Context, ref string) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byRef[ref]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeRepo) AttachPaymentToBooking(_ context.Context, orderID, paymentRef string, t *Tracking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byRef[paymentRef]; ok {
		return ErrDuplicatePaymentReference
	}
	o, ok := f.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if o.Status != StatusPendingPayment {
		return ErrInvalidTransition
	}
	o.Status = StatusPaid
	o.PaymentReference = paymentRef
	f.byRef[paymentRef] = o
	f.tracking[orderID] = append(f.tracking[orderID], t)
	return nil
}

func (f *fakeRepo) UpdateStatusWithTracking(_ context.Context, id string, from, to Status, t *Tracking, s Stamps) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrInvalidTransition
	}
	o.Status = to
	if s.VendorAcceptedAt != nil {
		o.VendorAcceptedAt = s.VendorAcceptedAt
	}
	if s.PickedUpAt != nil {
		o.PickedUpAt = s.PickedUpAt
	}
	if s.CustomerConfirmedAt != nil {
		o.CustomerConfirmedAt = s.CustomerConfirmedAt
	}
	if s.CourierID != nil {
		o.CourierID = s.CourierID
	}
	if s.CourierName != "" {
		o.CourierName = s.CourierName
	}
	if s.DisputeReason != "" {
		o.DisputeReason = s.DisputeReason
	}
	f.tracking[id] = append(f.tracking[id], t)
	return nil
}

func (f *fakeRepo) UpdateTaskStatusWithTracking(_ context.Context, id string, fromTask, toTask TaskStatus, mirror Status, t *Tracking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.TaskStatus == nil || *o.TaskStatus != fromTask {
		return ErrInvalidTransition
	}
	ts := toTask
	o.TaskStatus = &ts
	o.Status = mirror
	f.tracking[id] = append(f.tracking[id], t)
	return nil
}

func (f *fakeRepo) ListTracking(_ context.Context, orderID string) ([]*Tracking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Tracking(nil), f.tracking[orderID]...), nil
}

func (f *fakeRepo) ListByVendor(_ context.Context, vendorID string, status Status) ([]*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Order
	for _, o := range f.orders {
		if o.VendorID.String() != vendorID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRepo) ListByBuyer(_ context.Context, buyerID string) ([]*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Order
	for _, o := range f.orders {
		if o.BuyerID.String() == buyerID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeLedger struct {
	mu         sync.Mutex
	recognized []*vendor.Earning
	released   []string
}

func (f *fakeLedger) RecognizeEarning(_ context.Context, e *vendor.Earning) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, prev := range f.recognized {
		if prev.OrderID == e.OrderID {
			return errors.New("duplicate earning for order")
		}
	}
	f.recognized = append(f.recognized, e)
	return nil
}

func (f *fakeLedger) ReleaseEarningsForOrder(_ context.Context, orderID string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, orderID)
	for _, e := range f.recognized {
		if e.OrderID.String() == orderID {
			return e.NetEarnings, nil
		}
	}
	return 0, nil
}

type fakeFees struct{ pct float64 }

func (f *fakeFees) EffectiveFeePct(context.Context, string) (float64, error) {
	return f.pct, nil
}

func newTestService(repo *fakeRepo, ledger *fakeLedger) Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	bus := events.NewBus(logger, func() {})
	calc := commission.NewCalculator(commission.DefaultPlatformFeePct)
	return NewService(repo, ledger, &fakeFees{pct: -1}, calc, bus, logger)
}

func paidOrderRequest(ref string) CreateFromPaymentRequest {
	return CreateFromPaymentRequest{
		BuyerID:          uuid.New().String(),
		VendorID:         uuid.New().String(),
		PaymentReference: ref,
		DeliveryAddress:  "Moi Avenue, Nairobi",
		Items: []ItemInput{
			{ListingID: uuid.New().String(), Quantity: 2, UnitPrice: 500, WeightKg: 1.5},
			{ListingID: uuid.New().String(), Quantity: 1, UnitPrice: 1000, WeightKg: 0.5},
		},
	}
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestCreateFromPaymentComputesTotal(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeLedger{})

	o, err := svc.CreateFromPayment(context.Background(), paidOrderRequest("ps_ref_001"))
	if err != nil {
		t.Fatalf("CreateFromPayment: %v", err)
	}
	if o.Status != StatusPaid {
		t.Errorf("status = %s, want %s", o.Status, StatusPaid)
	}
	if o.TotalAmount != 2000 {
		t.Errorf("total = %v, want 2000", o.TotalAmount)
	}
	if o.TrackingNumber == "" {
		t.Error("tracking number not generated")
	}
	entries, _ := svc.Tracking(context.Background(), o.ID.String())
	if len(entries) != 1 {
		t.Errorf("tracking entries = %d, want 1", len(entries))
	}
}

func TestCreateFromPaymentIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeLedger{})
	ctx := context.Background()

	first, err := svc.CreateFromPayment(ctx, paidOrderRequest("ps_ref_dup"))
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := svc.CreateFromPayment(ctx, paidOrderRequest("ps_ref_dup"))
	if err != nil {
		t.Fatalf("second create should not error, got %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("duplicate reference produced a new order: %s vs %s", first.ID, second.ID)
	}
	if len(repo.orders) != 1 {
		t.Errorf("stored orders = %d, want 1", len(repo.orders))
	}
}

func TestCreateFromPaymentValidation(t *testing.T) {
	svc := newTestService(newFakeRepo(), &fakeLedger{})
	ctx := context.Background()

	req := paidOrderRequest("ps_ref_bad")
	req.Items = nil
	if _, err := svc.CreateFromPayment(ctx, req); !errors.Is(err, ErrValidation) {
		t.Errorf("empty items: err = %v, want ErrValidation", err)
	}

	req = paidOrderRequest("ps_ref_bad2")
	req.Items[0].Quantity = 0
	if _, err := svc.CreateFromPayment(ctx, req); !errors.Is(err, ErrValidation) {
		t.Errorf("zero quantity: err = %v, want ErrValidation", err)
	}

	req = paidOrderRequest("")
	if _, err := svc.CreateFromPayment(ctx, req); !errors.Is(err, ErrValidation) {
		t.Errorf("missing reference: err = %v, want ErrValidation", err)
	}
}

func TestProductLifecycleRecognizesAndReleasesEarnings(t *testing.T) {
	repo := newFakeRepo()
	ledger := &fakeLedger{}
	svc := newTestService(repo, ledger)
	ctx := context.Background()

	o, err := svc.CreateFromPayment(ctx, paidOrderRequest("ps_ref_life"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := o.ID.String()

	steps := []Action{ActionAccept, ActionReady, ActionDispatch, ActionMarkDelivered}
	for _, a := range steps {
		if _, err := svc.Transition(ctx, id, a, TransitionPayload{CourierName: "Brian O."}); err != nil {
			t.Fatalf("action %s: %v", a, err)
		}
	}

	if len(ledger.recognized) != 1 {
		t.Fatalf("earnings recognized = %d, want 1", len(ledger.recognized))
	}
	e := ledger.recognized[0]
	if e.GrossAmount != 2000 || e.PlatformFee != 400 || e.NetEarnings != 1600 {
		t.Errorf("split = %v/%v/%v, want 2000/400/1600", e.GrossAmount, e.PlatformFee, e.NetEarnings)
	}
	if e.Status != vendor.EarningPending {
		t.Errorf("earning status = %s, want %s", e.Status, vendor.EarningPending)
	}

	updated, err := svc.Transition(ctx, id, ActionConfirm, TransitionPayload{})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if updated.Status != StatusCustomerConfirmed {
		t.Errorf("status = %s, want %s", updated.Status, StatusCustomerConfirmed)
	}
	if updated.CustomerConfirmedAt == nil {
		t.Error("CustomerConfirmedAt not stamped")
	}
	if len(ledger.released) != 1 || ledger.released[0] != id {
		t.Errorf("released = %v, want [%s]", ledger.released, id)
	}

	// one tracking row per transition, plus the initial entry
	entries, _ := svc.Tracking(ctx, id)
	if len(entries) != 6 {
		t.Errorf("tracking entries = %d, want 6", len(entries))
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeLedger{})
	ctx := context.Background()

	o, _ := svc.CreateFromPayment(ctx, paidOrderRequest("ps_ref_inv"))
	id := o.ID.String()

	// PAID order cannot be dispatched before acceptance and packing
	if _, err := svc.Transition(ctx, id, ActionDispatch, TransitionPayload{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("dispatch from PAID: err = %v, want ErrInvalidTransition", err)
	}
	// and cannot be confirmed before delivery
	if _, err := svc.Transition(ctx, id, ActionConfirm, TransitionPayload{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("confirm from PAID: err = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelWindowClosesAtDispatch(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeLedger{})
	ctx := context.Background()

	o, _ := svc.CreateFromPayment(ctx, paidOrderRequest("ps_ref_cxl1"))
	if _, err := svc.Transition(ctx, o.ID.String(), ActionCancel, TransitionPayload{Reason: "changed my mind"}); err != nil {
		t.Fatalf("cancel from PAID: %v", err)
	}

	o2, _ := svc.CreateFromPayment(ctx, paidOrderRequest("ps_ref_cxl2"))
	id := o2.ID.String()
	for _, a := range []Action{ActionAccept, ActionReady, ActionDispatch} {
		if _, err := svc.Transition(ctx, id, a, TransitionPayload{}); err != nil {
			t.Fatalf("action %s: %v", a, err)
		}
	}
	if _, err := svc.Transition(ctx, id, ActionCancel, TransitionPayload{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancel after dispatch: err = %v, want ErrInvalidTransition", err)
	}
}

func TestDisputeRequiresReason(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeLedger{})
	ctx := context.Background()

	o, _ := svc.CreateFromPayment(ctx, paidOrderRequest("ps_ref_disp"))
	id := o.ID.String()
	for _, a := range []Action{ActionAccept, ActionReady, ActionDispatch, ActionMarkDelivered} {
		if _, err := svc.Transition(ctx, id, a, TransitionPayload{}); err != nil {
			t.Fatalf("action %s: %v", a, err)
		}
	}

	if _, err := svc.Transition(ctx, id, ActionDispute, TransitionPayload{}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty reason: err = %v, want ErrValidation", err)
	}
	updated, err := svc.Transition(ctx, id, ActionDispute, TransitionPayload{Reason: "damaged item"})
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if updated.Status != StatusDisputed {
		t.Errorf("status = %s, want %s", updated.Status, StatusDisputed)
	}
	if updated.DisputeReason != "damaged item" {
		t.Errorf("reason = %q", updated.DisputeReason)
	}
}

func TestBookingLifecycleMirrorsTaskStatus(t *testing.T) {
	repo := newFakeRepo()
	ledger := &fakeLedger{}
	svc := newTestService(repo, ledger)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, CreateBookingRequest{
		BuyerID:         uuid.New().String(),
		VendorID:        uuid.New().String(),
		ServiceLocation: "Kilimani, Nairobi",
		Items: []ItemInput{
			{ListingID: uuid.New().String(), Quantity: 1, UnitPrice: 3500, DurationMinutes: 90},
		},
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if booking.Status != StatusPendingPayment {
		t.Fatalf("booking status = %s, want %s", booking.Status, StatusPendingPayment)
	}

	paid, err := svc.CreateFromPayment(ctx, CreateFromPaymentRequest{
		BuyerID:          booking.BuyerID.String(),
		VendorID:         booking.VendorID.String(),
		BookingOrderID:   booking.ID.String(),
		PaymentReference: "ps_ref_book",
		Items:            []ItemInput{{ListingID: uuid.New().String(), Quantity: 1, UnitPrice: 3500}},
	})
	if err != nil {
		t.Fatalf("attach payment: %v", err)
	}
	if paid.ID != booking.ID {
		t.Fatalf("payment created a new order instead of attaching")
	}
	if paid.Status != StatusPaid {
		t.Errorf("status = %s, want %s", paid.Status, StatusPaid)
	}

	id := booking.ID.String()
	steps := []struct {
		task   TaskStatus
		mirror Status
	}{
		{TaskAccepted, StatusConfirmed},
		{TaskStartingJob, StatusInProgress},
		{TaskInProgress, StatusInProgress},
		{TaskAlmostDone, StatusInProgress},
		{TaskCompleted, StatusCompleted},
	}
	for _, step := range steps {
		o, err := svc.UpdateTaskStatus(ctx, id, step.task)
		if err != nil {
			t.Fatalf("task %s: %v", step.task, err)
		}
		if o.Status != step.mirror {
			t.Errorf("task %s mirrored to %s, want %s", step.task, o.Status, step.mirror)
		}
	}

	if len(ledger.recognized) != 1 {
		t.Errorf("completed service recognized %d earnings, want 1", len(ledger.recognized))
	}

	// completed services confirm like delivered products
	done, err := svc.Transition(ctx, id, ActionConfirm, TransitionPayload{})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if done.Status != StatusCustomerConfirmed {
		t.Errorf("status = %s, want %s", done.Status, StatusCustomerConfirmed)
	}
}

func TestDuplicateBookingPaymentReturnsExisting(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeLedger{})
	ctx := context.Background()

	booking, _ := svc.CreateBooking(ctx, CreateBookingRequest{
		BuyerID:  uuid.New().String(),
		VendorID: uuid.New().String(),
		Items:    []ItemInput{{ListingID: uuid.New().String(), Quantity: 1, UnitPrice: 1200}},
	})

	req := CreateFromPaymentRequest{
		BuyerID:          booking.BuyerID.String(),
		VendorID:         booking.VendorID.String(),
		BookingOrderID:   booking.ID.String(),
		PaymentReference: "ps_ref_book_dup",
		Items:            []ItemInput{{ListingID: uuid.New().String(), Quantity: 1, UnitPrice: 1200}},
	}
	first, err := svc.CreateFromPayment(ctx, req)
	if err != nil {
		t.Fatalf("first attach: %v", err)
	}
	second, err := svc.CreateFromPayment(ctx, req)
	if err != nil {
		t.Fatalf("second attach: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("duplicate attach produced different orders")
	}
}

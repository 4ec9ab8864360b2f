package listing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/sokoline/sokoline-backend/internal/modules/geo"
	"github.com/sokoline/sokoline-backend/internal/modules/vendor"
)

type fakeRepo struct {
	mu       sync.Mutex
	listings map[string]*Listing
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{listings: make(map[string]*Listing)}
}

func (f *fakeRepo) Create(_ context.Context, l *Listing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings[l.ID.String()] = l
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeRepo) ListByVendor(_ context.Context, vendorID string, activeOnly bool) ([]*Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Listing
	for _, l := range f.listings {
		if l.VendorID.String() != vendorID {
			continue
		}
		if activeOnly && !l.IsActive {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRepo) Search(_ context.Context, kind Kind, category, query string) ([]*Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Listing
	for _, l := range f.listings {
		if !l.IsActive {
			continue
		}
		if kind != "" && l.Kind != kind {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRepo) Update(_ context.Context, l *Listing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.listings[l.ID.String()]; !ok {
		return ErrNotFound
	}
	cp := *l
	f.listings[l.ID.String()] = &cp
	return nil
}

func (f *fakeRepo) SetActive(_ context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok {
		return ErrNotFound
	}
	l.IsActive = active
	return nil
}

type fakeVendors struct {
	vendors []*vendor.Vendor
}

func (f *fakeVendors) ListVendors(_ context.Context) ([]*vendor.Vendor, error) {
	return f.vendors, nil
}

func seedVendorAt(vendors *fakeVendors, name string, lat, lng float64) *vendor.Vendor {
	v := &vendor.Vendor{ID: uuid.New(), BusinessName: name, Lat: &lat, Lng: &lng}
	vendors.vendors = append(vendors.vendors, v)
	return v
}

func TestCreateValidatesServiceDuration(t *testing.T) {
	svc := NewService(newFakeRepo(), &fakeVendors{})
	_, err := svc.Create(context.Background(), CreateRequest{
		VendorID: uuid.New().String(),
		Kind:     KindService,
		Title:    "Deep cleaning",
		Price:    3000,
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("service without duration: err = %v, want ErrValidation", err)
	}
}

func TestNearbyFiltersByRadiusAndKind(t *testing.T) {
	repo := newFakeRepo()
	vendors := &fakeVendors{}
	svc := NewService(repo, vendors)
	ctx := context.Background()

	// Westlands is ~4 km from the CBD, Thika ~40 km
	near := seedVendorAt(vendors, "Westlands Crafts", -1.2635, 36.8047)
	far := seedVendorAt(vendors, "Thika Traders", -1.0333, 37.0693)
	// no location, never surfaces in proximity search
	vendors.vendors = append(vendors.vendors, &vendor.Vendor{ID: uuid.New(), BusinessName: "Unmapped"})

	mustCreate := func(vendorID string, kind Kind, title string) {
		req := CreateRequest{VendorID: vendorID, Kind: kind, Title: title, Price: 500}
		if kind == KindService {
			req.DurationMinutes = 60
		}
		if _, err := svc.Create(ctx, req); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	mustCreate(near.ID.String(), KindProduct, "Kiondo basket")
	mustCreate(near.ID.String(), KindService, "Basket weaving class")
	mustCreate(far.ID.String(), KindProduct, "Pineapple crate")

	origin := geo.Point{Lat: -1.2921, Lng: 36.8219} // Nairobi CBD
	results, err := svc.Nearby(ctx, origin, 10, "")
	if err != nil {
		t.Fatalf("Nearby: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (far vendor excluded)", len(results))
	}
	for _, res := range results {
		if res.VendorName != "Westlands Crafts" {
			t.Errorf("unexpected vendor %q in 10 km radius", res.VendorName)
		}
		if res.DistanceKm <= 0 || res.DistanceKm > 10 {
			t.Errorf("distance = %v, want within (0,10]", res.DistanceKm)
		}
	}

	products, err := svc.Nearby(ctx, origin, 10, KindProduct)
	if err != nil {
		t.Fatalf("Nearby products: %v", err)
	}
	if len(products) != 1 || products[0].Listing.Title != "Kiondo basket" {
		t.Errorf("kind filter failed: %+v", products)
	}
}

func TestDeactivateHidesListing(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, &fakeVendors{})
	ctx := context.Background()

	vendorID := uuid.New().String()
	l, err := svc.Create(ctx, CreateRequest{VendorID: vendorID, Kind: KindProduct, Title: "Shuka blanket", Price: 1500})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Deactivate(ctx, l.ID.String()); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, _ := svc.ListByVendor(ctx, vendorID, true)
	if len(active) != 0 {
		t.Errorf("deactivated listing still active")
	}
	all, _ := svc.ListByVendor(ctx, vendorID, false)
	if len(all) != 1 {
		t.Errorf("listing missing from full list")
	}
}

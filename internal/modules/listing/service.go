package listing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sokoline/sokoline-backend/internal/modules/geo"
	"github.com/sokoline/sokoline-backend/internal/modules/vendor"
)

// Vendors resolves vendor locations for proximity search. vendor.Repository
// satisfies it.
type Vendors interface {
	ListVendors(ctx context.Context) ([]*vendor.Vendor, error)
}

// Service defines the listing business logic.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Listing, error)
	Get(ctx context.Context, id string) (*Listing, error)
	ListByVendor(ctx context.Context, vendorID string, activeOnly bool) ([]*Listing, error)
	Search(ctx context.Context, kind Kind, category, query string) ([]*Listing, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Listing, error)
	Deactivate(ctx context.Context, id string) error

	// Nearby returns active listings from vendors within radiusKm of the
	// origin, nearest vendor first. Vendors without a location are excluded.
	Nearby(ctx context.Context, origin geo.Point, radiusKm float64, kind Kind) ([]*NearbyResult, error)
}

type service struct {
	repo    Repository
	vendors Vendors
}

// NewService creates a new listing service.
func NewService(repo Repository, vendors Vendors) Service {
	return &service{repo: repo, vendors: vendors}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Listing, error) {
	vendorID, err := uuid.Parse(req.VendorID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid vendor_id", ErrValidation)
	}
	if req.Kind == KindService && req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: services need a duration", ErrValidation)
	}

	l := &Listing{
		ID:              uuid.New(),
		VendorID:        vendorID,
		Kind:            req.Kind,
		Title:           req.Title,
		Description:     req.Description,
		Category:        req.Category,
		Price:           req.Price,
		Currency:        "KES",
		WeightKg:        req.WeightKg,
		DurationMinutes: req.DurationMinutes,
		ImageURL:        req.ImageURL,
		IsActive:        true,
		Attributes:      req.Attributes,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *service) Get(ctx context.Context, id string) (*Listing, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListByVendor(ctx context.Context, vendorID string, activeOnly bool) ([]*Listing, error) {
	return s.repo.ListByVendor(ctx, vendorID, activeOnly)
}

func (s *service) Search(ctx context.Context, kind Kind, category, query string) ([]*Listing, error) {
	return s.repo.Search(ctx, kind, category, query)
}

func (s *service) Update(ctx context.Context, id string, req UpdateRequest) (*Listing, error) {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		l.Title = *req.Title
	}
	if req.Description != nil {
		l.Description = *req.Description
	}
	if req.Category != nil {
		l.Category = *req.Category
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, fmt.Errorf("%w: price must not be negative", ErrValidation)
		}
		l.Price = *req.Price
	}
	if req.WeightKg != nil {
		l.WeightKg = *req.WeightKg
	}
	if req.ImageURL != nil {
		l.ImageURL = *req.ImageURL
	}
	if req.IsActive != nil {
		l.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *service) Deactivate(ctx context.Context, id string) error {
	return s.repo.SetActive(ctx, id, false)
}

func (s *service) Nearby(ctx context.Context, origin geo.Point, radiusKm float64, kind Kind) ([]*NearbyResult, error) {
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", ErrValidation)
	}
	vendors, err := s.vendors.ListVendors(ctx)
	if err != nil {
		return nil, err
	}

	near := geo.FilterByRadius(vendors, origin, radiusKm, func(v *vendor.Vendor) (geo.Point, bool) {
		return v.Location()
	})

	var out []*NearbyResult
	for _, lv := range near {
		listings, err := s.repo.ListByVendor(ctx, lv.Item.ID.String(), true)
		if err != nil {
			return nil, err
		}
		for _, l := range listings {
			if kind != "" && l.Kind != kind {
				continue
			}
			out = append(out, &NearbyResult{
				Listing:    l,
				VendorName: lv.Item.BusinessName,
				DistanceKm: lv.DistanceKm,
			})
		}
	}
	return out, nil
}

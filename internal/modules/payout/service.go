package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/events"
	"github.com/sokoline/sokoline-backend/internal/metrics"
	"github.com/sokoline/sokoline-backend/internal/modules/vendor"
)

// DefaultMinAmount is the smallest withdrawal accepted, in KES.
const DefaultMinAmount = 100.0

// VendorStore is the slice of the vendor repository the payout workflow
// needs. vendor.Repository satisfies it.
type VendorStore interface {
	GetVendorByID(ctx context.Context, id string) (*vendor.Vendor, error)
	MarkEarningsPaidOut(ctx context.Context, vendorID string, payoutRequestID uuid.UUID, amount float64) error
}

// TransferGateway initiates an outbound transfer with the payment provider
// and returns the provider's transfer reference.
type TransferGateway interface {
	InitiateTransfer(ctx context.Context, payoutID string, amount float64, method, recipientName, recipientNumber string) (string, error)
}

// Service defines the payout workflow business logic.
type Service interface {
	// Request creates a withdrawal, reserving the amount from the vendor's
	// available balance.
	Request(ctx context.Context, req CreateRequest) (*Request, error)

	// Approve moves a pending request through APPROVED into PROCESSING by
	// initiating the transfer, recording the reviewing admin. A gateway
	// failure fails the request and releases the reservation.
	Approve(ctx context.Context, id, adminID, note string) (*Request, error)

	// Reject declines a pending request and returns the reserved amount to
	// the vendor's available balance, recording the reviewing admin.
	Reject(ctx context.Context, id, adminID, reason string) (*Request, error)

	// SettleTransfer finalizes a processing request from the provider's
	// transfer webhook.
	SettleTransfer(ctx context.Context, notice SettlementNotice) (*Request, error)

	Get(ctx context.Context, id string) (*Request, error)
	ListByVendor(ctx context.Context, vendorID string) ([]*Request, error)
	ListByStatus(ctx context.Context, status Status) ([]*Request, error)
}

type service struct {
	repo      Repository
	vendors   VendorStore
	gateway   TransferGateway
	bus       *events.Bus
	logger    *logrus.Logger
	minAmount float64
}

// NewService creates a new payout service.
func NewService(repo Repository, vendors VendorStore, gateway TransferGateway, bus *events.Bus, logger *logrus.Logger, minAmount float64) Service {
	if minAmount <= 0 {
		minAmount = DefaultMinAmount
	}
	return &service{repo: repo, vendors: vendors, gateway: gateway, bus: bus, logger: logger, minAmount: minAmount}
}

func (s *service) Request(ctx context.Context, req CreateRequest) (*Request, error) {
	if req.Amount < s.minAmount {
		return nil, fmt.Errorf("%w: minimum payout is %.2f KES", ErrValidation, s.minAmount)
	}
	v, err := s.vendors.GetVendorByID(ctx, req.VendorID)
	if err != nil {
		return nil, err
	}
	if !v.HasPayoutDetails() {
		return nil, ErrMissingPayoutDetails
	}

	p := &Request{
		ID:                       uuid.New(),
		VendorID:                 v.ID,
		Amount:                   req.Amount,
		Currency:                 "KES",
		Status:                   StatusPending,
		Reason:                   req.Reason,
		AvailableBalanceSnapshot: v.AvailableBalance,
		RequestedAt:              time.Now(),
	}
	// mobile money wins when both rails are on file
	if v.MomoNumber != "" {
		p.Method = MethodMomo
		p.DestinationNumber = v.MomoNumber
	} else {
		p.Method = MethodBank
		p.DestinationName = v.BankName
		p.DestinationNumber = v.BankAccountNumber
	}

	if err := s.repo.CreateWithReservation(ctx, p); err != nil {
		if err == ErrInsufficientBalance {
			metrics.PayoutOperationsTotal.WithLabelValues("request", "insufficient_balance").Inc()
		}
		return nil, err
	}
	metrics.PayoutOperationsTotal.WithLabelValues("request", "ok").Inc()
	s.publish(events.TypePayoutRequested, p, nil)
	return p, nil
}

func (s *service) Approve(ctx context.Context, id, adminID, note string) (*Request, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(p.Status, StatusApproved) {
		return nil, fmt.Errorf("%w: cannot approve payout in status %s", ErrInvalidTransition, p.Status)
	}
	if err := s.repo.UpdateStatus(ctx, id, p.Status, StatusApproved, Fields{ReviewNote: note, ReviewedBy: adminID}); err != nil {
		return nil, err
	}

	ref, err := s.gateway.InitiateTransfer(ctx, id, p.Amount, string(p.Method), p.DestinationName, p.DestinationNumber)
	if err != nil {
		// transfer never left the building: fail the request and hand the
		// reservation back to the vendor
		reason := fmt.Sprintf("transfer initiation failed: %v", err)
		if relErr := s.repo.ReleaseReservation(ctx, id, StatusApproved, StatusFailed, adminID, reason); relErr != nil {
			s.logger.WithError(relErr).WithField("payout_id", id).Error("failed to release payout reservation")
		}
		metrics.PayoutOperationsTotal.WithLabelValues("approve", "gateway_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	err = s.repo.UpdateStatus(ctx, id, StatusApproved, StatusProcessing, Fields{
		TransferReference: ref,
		Processed:         true,
	})
	if err != nil {
		return nil, err
	}
	metrics.PayoutOperationsTotal.WithLabelValues("approve", "ok").Inc()
	s.publish(events.TypePayoutApproved, p, map[string]any{"transfer_reference": ref})
	return s.repo.GetByID(ctx, id)
}

func (s *service) Reject(ctx context.Context, id, adminID, reason string) (*Request, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(p.Status, StatusRejected) {
		return nil, fmt.Errorf("%w: cannot reject payout in status %s", ErrInvalidTransition, p.Status)
	}
	if err := s.repo.ReleaseReservation(ctx, id, p.Status, StatusRejected, adminID, reason); err != nil {
		return nil, err
	}
	metrics.PayoutOperationsTotal.WithLabelValues("reject", "ok").Inc()
	s.publish(events.TypePayoutRejected, p, map[string]any{"reason": reason})
	return s.repo.GetByID(ctx, id)
}

func (s *service) SettleTransfer(ctx context.Context, notice SettlementNotice) (*Request, error) {
	p, err := s.repo.GetByTransferReference(ctx, notice.TransferReference)
	if err != nil {
		return nil, err
	}

	if !notice.Success {
		reason := notice.Reason
		if reason == "" {
			reason = "transfer failed at provider"
		}
		if err := s.repo.ReleaseReservation(ctx, p.ID.String(), StatusProcessing, StatusFailed, "", reason); err != nil {
			return nil, err
		}
		metrics.PayoutOperationsTotal.WithLabelValues("settle", "failed").Inc()
		s.publish(events.TypePayoutSettled, p, map[string]any{"success": false, "reason": reason})
		return s.repo.GetByID(ctx, p.ID.String())
	}

	// providers omit the paid amount on some webhook variants; the reserved
	// amount is what went out in that case
	paid := notice.AmountPaid
	if paid <= 0 {
		paid = p.Amount
	}
	settled, err := s.repo.Settle(ctx, p.ID.String(), StatusProcessing, paid)
	if err != nil {
		return nil, err
	}
	// stamp the covered earnings; the balance move above already committed,
	// so a failure here is logged for reconciliation
	if err := s.vendors.MarkEarningsPaidOut(ctx, settled.VendorID.String(), settled.ID, settled.Amount); err != nil {
		s.logger.WithError(err).WithField("payout_id", settled.ID).Error("failed to mark earnings paid out")
	}
	metrics.PayoutOperationsTotal.WithLabelValues("settle", "ok").Inc()
	s.publish(events.TypePayoutSettled, settled, map[string]any{"success": true})
	return settled, nil
}

func (s *service) Get(ctx context.Context, id string) (*Request, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListByVendor(ctx context.Context, vendorID string) ([]*Request, error) {
	return s.repo.ListByVendor(ctx, vendorID)
}

func (s *service) ListByStatus(ctx context.Context, status Status) ([]*Request, error) {
	return s.repo.ListByStatus(ctx, status)
}

func (s *service) publish(t events.Type, p *Request, extra map[string]any) {
	data := map[string]any{
		"vendor_id": p.VendorID.String(),
		"amount":    p.Amount,
		"method":    string(p.Method),
	}
	for k, v := range extra {
		data[k] = v
	}
	s.bus.Publish(events.New(t, p.ID.String(), data))
}

package payment

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Gateway is the provider-agnostic interface every payment adapter must implement.
// To add a new provider (e.g., Flutterwave, card rails), implement this interface.
type Gateway interface {
	// Initiate sends a payment request to the provider and returns the provider reference.
	Initiate(ctx context.Context, req *InitiateRequest) (*ProviderInitResponse, error)
	// Verify queries the provider for the current status of a transaction.
	Verify(ctx context.Context, providerRef string) (*ProviderInitResponse, error)
}

// GatewayRegistry maps provider names to their Gateway implementations.
type GatewayRegistry map[Provider]Gateway

// ── M-Pesa Adapter ────────────────────────────────────────────────────────────
// In production, replace the stub methods with actual Safaricom Daraja API calls.
// Daraja API docs: https://developer.safaricom.co.ke/

type mpesaGateway struct {
	consumerKey    string
	consumerSecret string
	shortCode      string
	baseURL        string
	env            string // sandbox | production
}

func NewMpesaGateway(consumerKey, consumerSecret, shortCode, baseURL, env string) Gateway {
	return &mpesaGateway{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		shortCode:      shortCode,
		baseURL:        baseURL,
		env:            env,
	}
}

func (g *mpesaGateway) Initiate(ctx context.Context, req *InitiateRequest) (*ProviderInitResponse, error) {
	if req.PhoneNumber == "" {
		return nil, fmt.Errorf("phone_number is required for M-Pesa")
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be greater than 0")
	}

	// ── PRODUCTION INTEGRATION POINT ──────────────────────────────────────────
	// Replace this block with actual Daraja STK Push call:
	//
	// 1. GET /oauth/v1/generate?grant_type=client_credentials — bearer token
	// 2. POST /mpesa/stkpush/v1/processrequest
	//    Body: { BusinessShortCode, Password (base64 shortcode+passkey+timestamp),
	//            Timestamp, TransactionType: "CustomerPayBillOnline", Amount,
	//            PartyA: phone, PartyB: shortcode, PhoneNumber, CallBackURL,
	//            AccountReference, TransactionDesc }
	// 3. Store the CheckoutRequestID as provider_ref
	// ──────────────────────────────────────────────────────────────────────────

	// Sandbox stub: simulate STK push acceptance
	ref := fmt.Sprintf("MPESA-%s-%04d", time.Now().Format("20060102150405"), rand.Intn(10000))
	return &ProviderInitResponse{
		ProviderRef:    ref,
		ProviderStatus: "PENDING",
		Message:        fmt.Sprintf("STK push sent to %s. Awaiting customer PIN.", req.PhoneNumber),
	}, nil
}

func (g *mpesaGateway) Verify(ctx context.Context, providerRef string) (*ProviderInitResponse, error) {
	// ── PRODUCTION INTEGRATION POINT ──────────────────────────────────────────
	// POST /mpesa/stkpushquery/v1/query with { BusinessShortCode, Password,
	// Timestamp, CheckoutRequestID }
	// Map ResultCode: 0 -> SUCCESS, 1032 -> CANCELLED, else -> FAILED
	// ──────────────────────────────────────────────────────────────────────────

	return &ProviderInitResponse{
		ProviderRef:    providerRef,
		ProviderStatus: "SUCCESS",
		Message:        "Transaction completed successfully",
	}, nil
}

// ── Paystack Adapter ──────────────────────────────────────────────────────────
// In production, replace the stub methods with actual Paystack API calls.
// Paystack API docs: https://paystack.com/docs/api/

type paystackGateway struct {
	secretKey string
	baseURL   string
	env       string // test | live
}

func NewPaystackGateway(secretKey, baseURL, env string) Gateway {
	return &paystackGateway{secretKey: secretKey, baseURL: baseURL, env: env}
}

func (g *paystackGateway) Initiate(ctx context.Context, req *InitiateRequest) (*ProviderInitResponse, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be greater than 0")
	}

	// ── PRODUCTION INTEGRATION POINT ──────────────────────────────────────────
	// POST /transaction/initialize
	//   Headers: Authorization: Bearer {secretKey}
	//   Body: { email, amount (in kobo/cents), currency, reference, callback_url }
	// Store the returned reference as provider_ref and hand the
	// authorization_url back to the client.
	// ──────────────────────────────────────────────────────────────────────────

	ref := fmt.Sprintf("PSK-%s-%04d", time.Now().Format("20060102150405"), rand.Intn(10000))
	return &ProviderInitResponse{
		ProviderRef:    ref,
		ProviderStatus: "pending",
		Message:        "Checkout initialized. Redirect customer to authorization URL.",
	}, nil
}

func (g *paystackGateway) Verify(ctx context.Context, providerRef string) (*ProviderInitResponse, error) {
	// ── PRODUCTION INTEGRATION POINT ──────────────────────────────────────────
	// GET /transaction/verify/{reference}
	// Map data.status: success -> COMPLETED, failed -> FAILED, else PROCESSING
	// ──────────────────────────────────────────────────────────────────────────

	return &ProviderInitResponse{
		ProviderRef:    providerRef,
		ProviderStatus: "success",
		Message:        "Transaction verified",
	}, nil
}

// ── Cash Adapter ──────────────────────────────────────────────────────────────
// Cash on delivery: the transaction completes immediately and reconciliation
// happens offline.

type cashGateway struct{}

func NewCashGateway() Gateway {
	return &cashGateway{}
}

func (g *cashGateway) Initiate(ctx context.Context, req *InitiateRequest) (*ProviderInitResponse, error) {
	ref := fmt.Sprintf("CASH-%s-%04d", time.Now().Format("20060102150405"), rand.Intn(10000))
	return &ProviderInitResponse{
		ProviderRef:    ref,
		ProviderStatus: "SUCCESS",
		Message:        "Cash payment recorded",
	}, nil
}

func (g *cashGateway) Verify(ctx context.Context, providerRef string) (*ProviderInitResponse, error) {
	return &ProviderInitResponse{ProviderRef: providerRef, ProviderStatus: "SUCCESS"}, nil
}

// ── Status Normalisation ──────────────────────────────────────────────────────

// NormaliseStatus maps a provider-specific status string onto the internal
// transaction lifecycle.
func NormaliseStatus(provider Provider, providerStatus string) TxStatus {
	s := strings.ToUpper(strings.TrimSpace(providerStatus))
	switch s {
	case "SUCCESS", "SUCCESSFUL", "COMPLETED", "PAID":
		return TxCompleted
	case "FAILED", "DECLINED", "REJECTED", "TIMEOUT", "INSUFFICIENT_FUNDS":
		return TxFailed
	case "CANCELLED", "ABANDONED", "REVERSED":
		return TxCancelled
	case "PENDING", "INITIATED":
		return TxPending
	default:
		return TxProcessing
	}
}

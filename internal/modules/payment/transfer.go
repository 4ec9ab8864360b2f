package payment

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// ── Outbound Transfers ────────────────────────────────────────────────────────
// Vendor payouts ride the same providers in the other direction. The shape of
// InitiateTransfer matches what the payout workflow expects from its gateway.

type paystackTransferGateway struct {
	secretKey string
	baseURL   string
	env       string
}

// NewPaystackTransferGateway creates the transfer adapter used for bank payouts.
func NewPaystackTransferGateway(secretKey, baseURL, env string) *paystackTransferGateway {
	return &paystackTransferGateway{secretKey: secretKey, baseURL: baseURL, env: env}
}

func (g *paystackTransferGateway) InitiateTransfer(ctx context.Context, payoutID string, amount float64, method, recipientName, recipientNumber string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("amount must be greater than 0")
	}
	if recipientNumber == "" {
		return "", fmt.Errorf("recipient number is required")
	}

	// ── PRODUCTION INTEGRATION POINT ──────────────────────────────────────────
	// 1. POST /transferrecipient — create recipient
	//    type: "mobile_money" for MOMO, "nuban"/"basa" for BANK
	// 2. POST /transfer with { source: "balance", amount (in cents), recipient,
	//    reference: payoutID, reason }
	// 3. Return the transfer reference; settlement arrives on the
	//    transfer.success / transfer.failed webhook
	// ──────────────────────────────────────────────────────────────────────────

	ref := fmt.Sprintf("TRF-%s-%04d", time.Now().Format("20060102150405"), rand.Intn(10000))
	return ref, nil
}

type mpesaB2CGateway struct {
	consumerKey    string
	consumerSecret string
	shortCode      string
	baseURL        string
	env            string
}

// NewMpesaB2CGateway creates the Daraja B2C transfer adapter for mobile money
// payouts.
func NewMpesaB2CGateway(consumerKey, consumerSecret, shortCode, baseURL, env string) *mpesaB2CGateway {
	return &mpesaB2CGateway{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		shortCode:      shortCode,
		baseURL:        baseURL,
		env:            env,
	}
}

func (g *mpesaB2CGateway) InitiateTransfer(ctx context.Context, payoutID string, amount float64, method, recipientName, recipientNumber string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("amount must be greater than 0")
	}
	if recipientNumber == "" {
		return "", fmt.Errorf("recipient msisdn is required")
	}

	// ── PRODUCTION INTEGRATION POINT ──────────────────────────────────────────
	// POST /mpesa/b2c/v1/paymentrequest with { InitiatorName,
	// SecurityCredential, CommandID: "BusinessPayment", Amount, PartyA:
	// shortcode, PartyB: msisdn, Remarks, QueueTimeOutURL, ResultURL,
	// Occasion: payoutID }
	// Store the ConversationID as the transfer reference.
	// ──────────────────────────────────────────────────────────────────────────

	ref := fmt.Sprintf("B2C-%s-%04d", time.Now().Format("20060102150405"), rand.Intn(10000))
	return ref, nil
}

package auth

import (
	"context"
	"errors"
)

var (
	ErrBadCredentials = errors.New("invalid credentials")
	ErrInvalidToken   = errors.New("invalid or expired token")
)

// Service defines the interface for authentication-related business logic.
type Service interface {
	// Login verifies the credentials and returns a signed session token.
	Login(ctx context.Context, email, password string) (string, error)

	// OrderConfirmationToken issues a long-lived token a customer can use
	// from a delivery email or SMS to confirm receipt of one order without
	// logging in.
	OrderConfirmationToken(orderID, buyerID string) (string, error)

	// VerifyOrderConfirmationToken checks the token and returns the order
	// and buyer it was issued for.
	VerifyOrderConfirmationToken(token string) (orderID, buyerID string, err error)
}

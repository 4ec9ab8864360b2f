package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"github.com/sokoline/sokoline-backend/internal/modules/user"
)

const (
	sessionTTL = 24 * time.Hour
	// confirmation links ride in delivery emails, customers take their time
	confirmationTTL      = 14 * 24 * time.Hour
	confirmationAudience = "order-confirm"
)

type sessionClaims struct {
	Role string `json:"role,omitempty"`
	jwt.StandardClaims
}

type service struct {
	userRepo user.Repository
	jwtKey   []byte
}

// NewService creates a new auth service.
func NewService(userRepo user.Repository, jwtSecret string) Service {
	return &service{userRepo: userRepo, jwtKey: []byte(jwtSecret)}
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		return "", ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrBadCredentials
	}

	claims := &sessionClaims{
		Role: string(u.Role),
		StandardClaims: jwt.StandardClaims{
			Subject:   u.ID.String(),
			ExpiresAt: time.Now().Add(sessionTTL).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtKey)
}

func (s *service) OrderConfirmationToken(orderID, buyerID string) (string, error) {
	claims := &jwt.StandardClaims{
		Audience:  confirmationAudience,
		Subject:   buyerID,
		Id:        orderID,
		ExpiresAt: time.Now().Add(confirmationTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtKey)
}

func (s *service) VerifyOrderConfirmationToken(token string) (string, string, error) {
	claims := &jwt.StandardClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtKey, nil
	})
	if err != nil || !parsed.Valid {
		return "", "", ErrInvalidToken
	}
	if claims.Audience != confirmationAudience || claims.Id == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Id, claims.Subject, nil
}

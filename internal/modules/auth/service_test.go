package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sokoline/sokoline-backend/internal/modules/user"
)

type fakeUserRepo struct {
	byEmail map[string]*user.User
}

func (f *fakeUserRepo) CreateUser(_ context.Context, u *user.User) error {
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, _ string) (*user.User, error) {
	return nil, user.ErrNotFound
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func seedUser(t *testing.T, repo *fakeUserRepo, email, password string) *user.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	u := &user.User{ID: uuid.New(), Email: email, PasswordHash: string(hash), Role: user.RoleCustomer}
	repo.byEmail[email] = u
	return u
}

func TestLogin(t *testing.T) {
	repo := &fakeUserRepo{byEmail: make(map[string]*user.User)}
	seedUser(t, repo, "amina@example.com", "correct horse battery")
	svc := NewService(repo, "test-secret")
	ctx := context.Background()

	token, err := svc.Login(ctx, "amina@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Error("empty token")
	}

	if _, err := svc.Login(ctx, "amina@example.com", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("wrong password: err = %v, want ErrBadCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "x"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("unknown email: err = %v, want ErrBadCredentials", err)
	}
}

func TestOrderConfirmationTokenRoundTrip(t *testing.T) {
	svc := NewService(&fakeUserRepo{byEmail: make(map[string]*user.User)}, "test-secret")
	orderID := uuid.New().String()
	buyerID := uuid.New().String()

	token, err := svc.OrderConfirmationToken(orderID, buyerID)
	if err != nil {
		t.Fatalf("OrderConfirmationToken: %v", err)
	}

	gotOrder, gotBuyer, err := svc.VerifyOrderConfirmationToken(token)
	if err != nil {
		t.Fatalf("VerifyOrderConfirmationToken: %v", err)
	}
	if gotOrder != orderID || gotBuyer != buyerID {
		t.Errorf("got %s/%s, want %s/%s", gotOrder, gotBuyer, orderID, buyerID)
	}
}

func TestConfirmationTokenRejectsWrongKeyAndGarbage(t *testing.T) {
	svc := NewService(&fakeUserRepo{byEmail: make(map[string]*user.User)}, "test-secret")
	other := NewService(&fakeUserRepo{byEmail: make(map[string]*user.User)}, "other-secret")

	token, _ := other.OrderConfirmationToken(uuid.New().String(), uuid.New().String())
	if _, _, err := svc.VerifyOrderConfirmationToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign token: err = %v, want ErrInvalidToken", err)
	}
	if _, _, err := svc.VerifyOrderConfirmationToken("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: err = %v, want ErrInvalidToken", err)
	}

	// session tokens are not confirmation tokens
	repo := &fakeUserRepo{byEmail: make(map[string]*user.User)}
	seedUser(t, repo, "amina@example.com", "pw12345678")
	sessions := NewService(repo, "test-secret")
	session, _ := sessions.Login(context.Background(), "amina@example.com", "pw12345678")
	if _, _, err := svc.VerifyOrderConfirmationToken(session); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("session token accepted as confirmation token")
	}
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sokoline/sokoline-backend/internal/modules/order"
)

// OrderConfirmer lets a confirmation-token holder confirm their order.
// order.Service satisfies it.
type OrderConfirmer interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	Transition(ctx context.Context, id string, action order.Action, p order.TransitionPayload) (*order.Order, error)
}

type Handler struct {
	service Service
	orders  OrderConfirmer
}

func NewHandler(service Service, orders OrderConfirmer) *Handler {
	return &Handler{service: service, orders: orders}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.login)
	r.Get("/confirm-order", h.confirmOrder)
	return r
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}

	token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respond(w, http.StatusUnauthorized, map[string]any{"error": ErrBadCredentials.Error()})
		return
	}
	respond(w, http.StatusOK, map[string]any{"token": token})
}

// confirmOrder lands from the link in the delivery notification. The token
// binds the action to one order and one buyer.
func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respond(w, http.StatusBadRequest, map[string]any{"error": "token is required"})
		return
	}
	orderID, buyerID, err := h.service.VerifyOrderConfirmationToken(token)
	if err != nil {
		respond(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	// the token names its buyer; a token replayed against someone else's
	// order must not confirm it
	o, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			respond(w, http.StatusNotFound, map[string]any{"error": err.Error()})
			return
		}
		respond(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if o.BuyerID.String() != buyerID {
		respond(w, http.StatusForbidden, map[string]any{"error": "token does not match the order's buyer"})
		return
	}

	o, err = h.orders.Transition(r.Context(), orderID, order.ActionConfirm, order.TransitionPayload{})
	if err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			respond(w, http.StatusConflict, map[string]any{"error": err.Error()})
			return
		}
		if errors.Is(err, order.ErrNotFound) {
			respond(w, http.StatusNotFound, map[string]any{"error": err.Error()})
			return
		}
		respond(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, o)
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

package payment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/validation"
)

// Handler exposes payment endpoints, including the provider webhooks.
type Handler struct {
	service  Service
	validate *validatorv10.Validate
	logger   *logrus.Logger
}

func NewHandler(service Service, validate *validatorv10.Validate, logger *logrus.Logger) *Handler {
	return &Handler{service: service, validate: validate, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.initiate)
	r.Get("/{id}", h.get)
	r.Post("/{id}/verify", h.verify)
	r.Get("/buyer/{buyer_id}", h.listByBuyer)
	return r
}

// WebhookRoutes are mounted separately so the main payment routes can sit
// behind auth while webhooks stay open to providers.
func (h *Handler) WebhookRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/mpesa", h.webhook(ProviderMpesa))
	r.Post("/paystack", h.webhook(ProviderPaystack))
	return r
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiateRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	t, err := h.service.Initiate(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusCreated, t)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, t)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Verify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, t)
}

func (h *Handler) webhook(provider Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			respond(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
			return
		}
		payload.Provider = string(provider)

		t, err := h.service.HandleWebhook(r.Context(), payload)
		if err != nil {
			// unknown references get a 200 so the provider stops retrying
			if errors.Is(err, ErrNotFound) {
				h.logger.WithField("external_ref", payload.ExternalRef).Warn("webhook for unknown transaction")
				respond(w, http.StatusOK, map[string]any{"status": "ignored"})
				return
			}
			h.fail(w, err)
			return
		}
		respond(w, http.StatusOK, map[string]any{"status": string(t.Status)})
	}
}

func (h *Handler) listByBuyer(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.ListByBuyer(r.Context(), chi.URLParam(r, "buyer_id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("payment request failed")
	}
	respond(w, status, map[string]any{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

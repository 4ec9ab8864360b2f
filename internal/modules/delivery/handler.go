package delivery

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/modules/order"
	"github.com/sokoline/sokoline-backend/internal/validation"
)

// Handler exposes delivery dispatch endpoints.
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
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Get("/{id}/updates", h.updates)
	r.Patch("/{id}/status", h.updateStatus)
	r.Post("/{id}/reassign", h.reassign)
	r.Get("/order/{order_id}", h.getByOrder)
	r.Post("/providers", h.createProvider)
	r.Get("/providers", h.listProviders)
	return r
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	d, err := h.service.CreateForOrder(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusCreated, d)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, d)
}

func (h *Handler) getByOrder(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetByOrder(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, d)
}

func (h *Handler) updates(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Updates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"updates": entries})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	d, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, d)
}

func (h *Handler) reassign(w http.ResponseWriter, r *http.Request) {
	var req ReassignRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	d, err := h.service.Reassign(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, d)
}

func (h *Handler) createProvider(w http.ResponseWriter, r *http.Request) {
	var req CreateProviderRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	p, err := h.service.CreateProvider(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusCreated, p)
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.service.ListProviders(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"providers": providers})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("delivery request failed")
	}
	respond(w, status, map[string]any{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrProviderNotFound), errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrNoProvider):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

package payout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/modules/vendor"
	"github.com/sokoline/sokoline-backend/internal/validation"
)

// Handler exposes payout workflow endpoints.
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
	r.Post("/", h.request)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/settlements", h.settle)
	r.Get("/vendor/{vendor_id}", h.listByVendor)
	r.Get("/", h.listByStatus)
	return r
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	p, err := h.service.Request(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusCreated, p)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	p, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"), req.AdminID, req.Note)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	p, err := h.service.Reject(r.Context(), chi.URLParam(r, "id"), req.AdminID, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	var notice SettlementNotice
	if err := validation.DecodeAndValidate(r, &notice, h.validate); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	p, err := h.service.SettleTransfer(r.Context(), notice)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, p)
}

func (h *Handler) listByVendor(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.service.ListByVendor(r.Context(), chi.URLParam(r, "vendor_id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"payouts": payouts})
}

func (h *Handler) listByStatus(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	if status == "" {
		status = StatusPending
	}
	payouts, err := h.service.ListByStatus(r.Context(), status)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"payouts": payouts})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("payout request failed")
	}
	respond(w, status, map[string]any{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, vendor.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, ErrMissingPayoutDetails):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
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

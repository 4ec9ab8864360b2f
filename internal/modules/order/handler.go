package order

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/sokoline/sokoline-backend/internal/validation"
)

// Handler exposes order lifecycle endpoints.
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
	r.Post("/", h.createFromPayment)
	r.Post("/bookings", h.createBooking)
	r.Get("/{id}", h.get)
	r.Get("/{id}/tracking", h.tracking)
	r.Post("/{id}/transition", h.transition)
	r.Patch("/{id}/task-status", h.updateTaskStatus)
	r.Get("/vendor/{vendor_id}", h.listByVendor)
	r.Get("/buyer/{buyer_id}", h.listByBuyer)
	return r
}

func (h *Handler) createFromPayment(w http.ResponseWriter, r *http.Request) {
	var req CreateFromPaymentRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	o, err := h.service.CreateFromPayment(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusCreated, o)
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	o, err := h.service.CreateBooking(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusCreated, o)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) tracking(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Tracking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"tracking": entries})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	o, err := h.service.Transition(r.Context(), chi.URLParam(r, "id"), req.Action, TransitionPayload{
		Reason:      req.Reason,
		CourierID:   req.CourierID,
		CourierName: req.CourierName,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) updateTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateTaskStatusRequest
	if err := validation.DecodeAndValidate(r, &req, h.validate); err != nil {
		respond(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	o, err := h.service.UpdateTaskStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, o)
}

func (h *Handler) listByVendor(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	orders, err := h.service.ListByVendor(r.Context(), chi.URLParam(r, "vendor_id"), status)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) listByBuyer(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListByBuyer(r.Context(), chi.URLParam(r, "buyer_id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("order request failed")
	}
	respond(w, status, map[string]any{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

package payment

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"schooltrans-service/internal/backend"
	"schooltrans-service/internal/httputil"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/students/{id}/ledger", h.GetLedger)
	router.Post("/payments", h.CreatePayment)
	router.Put("/payments/{id}", h.UpdatePayment)
	router.Delete("/payments/{id}", h.DeletePayment)
}

func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid student ID")
		return
	}

	h.logger.InfoContext(r.Context(), "deriving ledger", "student_id", id)
	ledger, err := h.service.Ledger(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, ledger)
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}

	payment, err := h.service.CreatePayment(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusCreated, payment)
}

func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid payment ID")
		return
	}

	var req UpdatePaymentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}

	payment, err := h.service.UpdatePayment(r.Context(), id, req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, payment)
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid payment ID")
		return
	}

	if err := h.service.DeletePayment(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var verr *ValidationError
	if errors.As(err, &verr) {
		h.logger.InfoContext(ctx, "invalid payment request", "error", err)
		httputil.RespondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  ErrInvalidInput.Error(),
			"fields": verr.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, ErrDuplicateTicketNumber):
		h.logger.InfoContext(ctx, "duplicate ticket number")
		httputil.RespondWithError(w, http.StatusConflict, "numero de talonario ya esta siendo usado")
	case errors.Is(err, ErrMonthAlreadyRecorded):
		httputil.RespondWithError(w, http.StatusConflict, "el mes ya tiene un pago registrado")
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, backend.ErrNotFound):
		httputil.RespondWithError(w, http.StatusNotFound, "payment not found")
	case errors.Is(err, backend.ErrTransientFetch):
		h.logger.WarnContext(ctx, "payments backend unavailable", "error", err)
		httputil.RespondWithError(w, http.StatusBadGateway, "payments backend unavailable")
	default:
		h.logger.ErrorContext(ctx, "internal error", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

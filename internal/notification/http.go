package notification

import (
	"log/slog"
	"net/http"
	"strconv"

	"schooltrans-service/internal/alert"
	"schooltrans-service/internal/httputil"

	"github.com/go-chi/chi/v5"
)

// Refresher requests an out-of-schedule poll cycle. Kick reports false when
// a request is already pending.
type Refresher interface {
	Kick() bool
}

type Handler struct {
	store     *Store
	refresher Refresher
	logger    *slog.Logger
}

func NewHandler(store *Store, refresher Refresher, logger *slog.Logger) *Handler {
	return &Handler{
		store:     store,
		refresher: refresher,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/notifications", h.ListNotifications)
	router.Delete("/notifications", h.ClearNotifications)
	router.Delete("/notifications/{kind}/{id}", h.DismissNotification)
	router.Post("/notifications/refresh", h.Refresh)
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	page := httputil.QueryInt(r, "page", 1)
	size := httputil.QueryInt(r, "size", 0)

	httputil.RespondWithJSON(w, http.StatusOK, h.store.Page(page, size))
}

func (h *Handler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	kind := alert.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid notification kind")
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid notification ID")
		return
	}

	if !h.store.Dismiss(Key{Kind: kind, EntityID: id}) {
		httputil.RespondWithError(w, http.StatusNotFound, "notification not found")
		return
	}

	h.logger.InfoContext(r.Context(), "notification dismissed", "kind", kind, "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	removed := h.store.ClearAll()

	h.logger.InfoContext(r.Context(), "notifications cleared", "removed", removed)
	httputil.RespondWithJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		httputil.RespondWithError(w, http.StatusServiceUnavailable, "polling disabled")
		return
	}

	queued := h.refresher.Kick()
	httputil.RespondWithJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

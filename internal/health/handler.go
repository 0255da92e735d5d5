package health

import (
	"context"
	"net/http"
	"time"

	"schooltrans-service/internal/httputil"

	"github.com/go-chi/chi/v5"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

type Handler struct {
	checks map[string]Check
}

func NewHandler(checks map[string]Check) *Handler {
	if checks == nil {
		checks = map[string]Check{}
	}
	return &Handler{checks: checks}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.Health)
	router.Get("/ready", h.Ready)
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondWithJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, results := h.Evaluate(ctx)
	code := http.StatusOK
	if status != "ready" {
		code = http.StatusServiceUnavailable
	}
	httputil.RespondWithJSON(w, code, HealthResponse{Status: status, Checks: results})
}

// Evaluate runs every check and returns "ready" or "degraded".
func (h *Handler) Evaluate(ctx context.Context) (string, map[string]string) {
	status := "ready"
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = "degraded"
			continue
		}
		results[name] = "ok"
	}
	return status, results
}

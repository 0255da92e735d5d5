package fleet

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"schooltrans-service/internal/backend"
	"schooltrans-service/internal/httputil"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	routes   backend.RouteReader
	vehicles backend.VehicleReader
	drivers  backend.DriverReader
	logger   *slog.Logger
}

func NewHandler(routes backend.RouteReader, vehicles backend.VehicleReader, drivers backend.DriverReader, logger *slog.Logger) *Handler {
	return &Handler{
		routes:   routes,
		vehicles: vehicles,
		drivers:  drivers,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/routes/overview", h.GetOverview)
}

func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	overview, err := h.overview(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrTransientFetch) {
			h.logger.WarnContext(ctx, "fleet backends unavailable", "error", err)
			httputil.RespondWithError(w, http.StatusBadGateway, "fleet backends unavailable")
			return
		}
		h.logger.ErrorContext(ctx, "failed to build route overview", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, overview)
}

func (h *Handler) overview(ctx context.Context) ([]RouteOverview, error) {
	routes, err := h.routes.ListRoutes(ctx)
	if err != nil {
		return nil, err
	}
	vehicles, err := h.vehicles.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}
	drivers, err := h.drivers.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	return BuildOverview(routes, vehicles, drivers), nil
}

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	serve := func(h *Handler, path string) *httptest.ResponseRecorder {
		router := chi.NewRouter()
		h.RegisterRoutes(router)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	t.Run("Health", func(t *testing.T) {
		w := serve(NewHandler(nil), "/health")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Ready", func(t *testing.T) {
		h := NewHandler(map[string]Check{
			"database": func(ctx context.Context) error { return nil },
		})
		w := serve(h, "/ready")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Degraded", func(t *testing.T) {
		h := NewHandler(map[string]Check{
			"database": func(ctx context.Context) error { return nil },
			"nats":     func(ctx context.Context) error { return errors.New("nats: disconnected") },
		})
		w := serve(h, "/ready")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)

		var resp HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "ok", resp.Checks["database"])
		assert.Equal(t, "nats: disconnected", resp.Checks["nats"])
	})
}

package notification_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"schooltrans-service/internal/alert"
	"schooltrans-service/internal/logger"
	"schooltrans-service/internal/notification"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	kicks int
}

func (r *countingRefresher) Kick() bool {
	r.kicks++
	return true
}

func setupHandler(t *testing.T, refresher notification.Refresher) (chi.Router, *notification.Store) {
	t.Helper()
	store := notification.NewStore(5, nil)
	store.Reconcile(alert.KindDriver, []alert.Candidate{
		{Kind: alert.KindDriver, EntityID: 1, Name: "Ana"},
		{Kind: alert.KindDriver, EntityID: 2, Name: "Luis"},
	})

	router := chi.NewRouter()
	notification.NewHandler(store, refresher, logger.Discard()).RegisterRoutes(router)
	return router, store
}

func serve(router http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNotificationHandler(t *testing.T) {
	t.Run("ListNotifications", func(t *testing.T) {
		router, _ := setupHandler(t, nil)

		w := serve(router, http.MethodGet, "/notifications?page=1&size=1")
		require.Equal(t, http.StatusOK, w.Code)

		var page notification.Page
		require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
		assert.Equal(t, 2, page.Total)
		assert.Equal(t, 2, page.Pages)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "Ana", page.Items[0].Name)
	})

	t.Run("ListNotificationsHugeQuery", func(t *testing.T) {
		router, _ := setupHandler(t, nil)

		w := serve(router, http.MethodGet, "/notifications?page=4611686018427387905&size=9223372036854775807")
		require.Equal(t, http.StatusOK, w.Code)

		var page notification.Page
		require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
		assert.Equal(t, notification.MaxPageSize, page.Size)
		assert.Equal(t, 1, page.Pages)
		assert.Empty(t, page.Items)
	})

	t.Run("DismissNotification", func(t *testing.T) {
		router, store := setupHandler(t, nil)

		w := serve(router, http.MethodDelete, "/notifications/driver/1")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, 1, store.Len())

		w = serve(router, http.MethodDelete, "/notifications/driver/1")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("DismissNotification_BadKind", func(t *testing.T) {
		router, _ := setupHandler(t, nil)

		w := serve(router, http.MethodDelete, "/notifications/bus/1")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("ClearNotifications", func(t *testing.T) {
		router, store := setupHandler(t, nil)

		w := serve(router, http.MethodDelete, "/notifications")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Zero(t, store.Len())
	})

	t.Run("Refresh", func(t *testing.T) {
		refresher := &countingRefresher{}
		router, _ := setupHandler(t, refresher)

		w := serve(router, http.MethodPost, "/notifications/refresh")
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, 1, refresher.kicks)
	})

	t.Run("Refresh_Disabled", func(t *testing.T) {
		router, _ := setupHandler(t, nil)

		w := serve(router, http.MethodPost, "/notifications/refresh")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

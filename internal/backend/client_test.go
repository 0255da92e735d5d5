package backend_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"schooltrans-service/internal/backend"
	"schooltrans-service/internal/logger"
	"schooltrans-service/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, handler http.HandlerFunc, retries int) *backend.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return backend.NewClient("test", server.URL+"/", backend.Options{
		Timeout:      2 * time.Second,
		MaxRetries:   retries,
		RetryBackoff: time.Millisecond,
	}, logger.Discard(), metrics.NewMock())
}

func TestClient_DecodesStudents(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/estudiantes/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(`[{"id":7,"estudiante_nombre":"Ana","estudiante_apellido":"Ruiz","estudiante_estado":false,"ruta":{"id":2,"nombre":"Norte"}}]`))
	}, 0)

	students, err := backend.NewStudentsClient(client).ListStudents(context.Background())

	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, 7, students[0].ID)
	assert.Equal(t, "Ana Ruiz", students[0].FullName())
	assert.False(t, students[0].Active)
	assert.Equal(t, "Norte", students[0].Route.Nombre)
}

func TestClient_RetriesGetOnServerError(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}, 2)

	routes, err := backend.NewRoutesClient(client).ListRoutes(context.Background())

	require.NoError(t, err)
	assert.Empty(t, routes)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_TransientAfterRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 1)

	_, err := backend.NewDriversClient(client).ListDrivers(context.Background())

	assert.ErrorIs(t, err, backend.ErrTransientFetch)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_MutationsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusInternalServerError)
	}, 3)

	err := client.Do(context.Background(), http.MethodPost, "/api/pagos/", map[string]int{"estudiante_id": 1}, nil)

	assert.ErrorIs(t, err, backend.ErrTransientFetch)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_NotFound(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, 2)

	_, err := backend.NewStudentsClient(client).GetStudent(context.Background(), 99)

	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestClient_StatusError(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"numero_talonario":["already exists"]}` + "\n"))
	}, 2)

	err := client.Do(context.Background(), http.MethodPost, "/api/pagos/", struct{}{}, nil)

	var statusErr *backend.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.Status)
	assert.Equal(t, "test", statusErr.Service)
	assert.Contains(t, statusErr.Body, "numero_talonario")
}

func TestClient_ForwardsToken(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}, 0)

	ctx := backend.WithToken(context.Background(), "abc")
	require.NoError(t, client.Do(ctx, http.MethodDelete, "/api/pagos/1", nil, nil))
}

func TestWithToken_EmptyIsIgnored(t *testing.T) {
	ctx := backend.WithToken(context.Background(), "")

	_, ok := backend.TokenFromContext(ctx)
	assert.False(t, ok)
}

func TestClient_CancelledContextStopsRetries(t *testing.T) {
	client := backend.NewClient("test", "http://127.0.0.1:1", backend.Options{
		Timeout:      time.Second,
		MaxRetries:   5,
		RetryBackoff: time.Hour,
	}, logger.Discard(), metrics.NewMock())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := backend.NewVehiclesClient(client).ListVehicles(ctx)
	assert.ErrorIs(t, err, backend.ErrTransientFetch)
}

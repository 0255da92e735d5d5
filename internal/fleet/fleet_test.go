package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"schooltrans-service/internal/backend"
	"schooltrans-service/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

var (
	testVehicles = []backend.Vehicle{
		{ID: 1, Plate: "ABC123", RouteID: intPtr(10)},
		{ID: 2, Plate: "XYZ 789", RouteID: nil},
		{ID: 3, Plate: "QWE456", RouteID: intPtr(11)},
	}
	testDrivers = []backend.Driver{
		{ID: 7, FirstName: "Ana", VehiclePlate: "abc 123"},
	}
)

func TestVehicleForRoute(t *testing.T) {
	v, ok := VehicleForRoute(10, testVehicles)
	require.True(t, ok)
	assert.Equal(t, 1, v.ID)

	_, ok = VehicleForRoute(99, testVehicles)
	assert.False(t, ok)
}

func TestDriverForPlate(t *testing.T) {
	d, ok := DriverForPlate("ABC123", testDrivers)
	require.True(t, ok)
	assert.Equal(t, 7, d.ID)

	_, ok = DriverForPlate("QWE456", testDrivers)
	assert.False(t, ok)

	_, ok = DriverForPlate("  ", []backend.Driver{{ID: 1, VehiclePlate: ""}})
	assert.False(t, ok)
}

func TestBuildOverview(t *testing.T) {
	routes := []backend.Route{{ID: 10, Name: "Norte"}, {ID: 11, Name: "Sur"}, {ID: 12, Name: "Centro"}}

	rows := BuildOverview(routes, testVehicles, testDrivers)

	require.Len(t, rows, 3)
	require.NotNil(t, rows[0].Vehicle)
	require.NotNil(t, rows[0].Driver)
	assert.Equal(t, 7, rows[0].Driver.ID)

	require.NotNil(t, rows[1].Vehicle)
	assert.Nil(t, rows[1].Driver)

	assert.Nil(t, rows[2].Vehicle)
	assert.Nil(t, rows[2].Driver)
}

type fakeFleet struct {
	routesErr error
}

func (f fakeFleet) ListRoutes(ctx context.Context) ([]backend.Route, error) {
	if f.routesErr != nil {
		return nil, f.routesErr
	}
	return []backend.Route{{ID: 10, Name: "Norte", Active: true}}, nil
}

func (f fakeFleet) ListVehicles(ctx context.Context) ([]backend.Vehicle, error) {
	return testVehicles, nil
}

func (f fakeFleet) ListDrivers(ctx context.Context) ([]backend.Driver, error) {
	return testDrivers, nil
}

func TestOverviewHandler(t *testing.T) {
	serve := func(src fakeFleet) *httptest.ResponseRecorder {
		router := chi.NewRouter()
		NewHandler(src, src, src, logger.Discard()).RegisterRoutes(router)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/routes/overview", nil))
		return w
	}

	t.Run("OK", func(t *testing.T) {
		w := serve(fakeFleet{})
		require.Equal(t, http.StatusOK, w.Code)

		var rows []RouteOverview
		require.NoError(t, json.NewDecoder(w.Body).Decode(&rows))
		require.Len(t, rows, 1)
		assert.Equal(t, "Norte", rows[0].Route.Name)
		require.NotNil(t, rows[0].Driver)
	})

	t.Run("BackendDown", func(t *testing.T) {
		w := serve(fakeFleet{routesErr: fmt.Errorf("rutas: %w", backend.ErrTransientFetch)})
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

// Package fleet resolves the weak links between routes, vehicles and
// drivers. None of them are foreign keys: a route may have no vehicle, a
// vehicle no route, and a plate may match no driver.
package fleet

import (
	"strings"

	"schooltrans-service/internal/backend"
)

// VehicleForRoute returns the first vehicle assigned to routeID.
func VehicleForRoute(routeID int, vehicles []backend.Vehicle) (backend.Vehicle, bool) {
	for _, v := range vehicles {
		if v.RouteID != nil && *v.RouteID == routeID {
			return v, true
		}
	}
	return backend.Vehicle{}, false
}

// DriverForPlate returns the driver whose vehicle plate matches plate,
// ignoring case and spaces.
func DriverForPlate(plate string, drivers []backend.Driver) (backend.Driver, bool) {
	want := normalizePlate(plate)
	if want == "" {
		return backend.Driver{}, false
	}
	for _, d := range drivers {
		if normalizePlate(d.VehiclePlate) == want {
			return d, true
		}
	}
	return backend.Driver{}, false
}

func normalizePlate(plate string) string {
	return strings.ToUpper(strings.Join(strings.Fields(plate), ""))
}

// RouteOverview is one row of the route administration view.
type RouteOverview struct {
	Route   backend.Route    `json:"ruta"`
	Vehicle *backend.Vehicle `json:"vehiculo"`
	Driver  *backend.Driver  `json:"conductor"`
}

func BuildOverview(routes []backend.Route, vehicles []backend.Vehicle, drivers []backend.Driver) []RouteOverview {
	out := make([]RouteOverview, 0, len(routes))
	for _, r := range routes {
		row := RouteOverview{Route: r}
		if v, ok := VehicleForRoute(r.ID, vehicles); ok {
			row.Vehicle = &v
			if d, ok := DriverForPlate(v.Plate, drivers); ok {
				row.Driver = &d
			}
		}
		out = append(out, row)
	}
	return out
}

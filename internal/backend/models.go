package backend

import "strings"

// Ref is the {id, nombre} shape the estudiantes service nests for the
// student's institution and route.
type Ref struct {
	ID     int    `json:"id"`
	Nombre string `json:"nombre"`
}

type Student struct {
	ID            int    `json:"id"`
	FirstName     string `json:"estudiante_nombre"`
	LastName      string `json:"estudiante_apellido"`
	Course        string `json:"estudiante_curso"`
	Active        bool   `json:"estudiante_estado"`
	RouteJoinedAt string `json:"estudiante_fecha_ingreso_ruta,omitempty"`
	Institution   Ref    `json:"institucion"`
	Route         Ref    `json:"ruta"`
	VehiclePlate  string `json:"vehiculo_placa,omitempty"`
}

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

type Route struct {
	ID             int    `json:"id"`
	Name           string `json:"ruta_nombre"`
	Mobile         string `json:"ruta_movil,omitempty"`
	Active         bool   `json:"activa"`
	InstitutionIDs []int  `json:"instituciones_ids,omitempty"`
}

type Vehicle struct {
	ID       int    `json:"id"`
	Plate    string `json:"vehiculo_placa"`
	Make     string `json:"vehiculo_marca"`
	Model    string `json:"vehiculo_modelo"`
	Capacity int    `json:"vehiculo_capacidad"`
	// RouteID is nil for vehicles not assigned to a route.
	RouteID *int `json:"ruta_id"`
}

type Driver struct {
	ID        int    `json:"id"`
	FirstName string `json:"nombre"`
	LastName  string `json:"apellido"`
	// VehiclePlate is a weak reference to Vehicle.Plate.
	VehiclePlate  string `json:"vehiculo"`
	LicenseActive bool   `json:"licencia_activa"`
	LicenseExpiry string `json:"fecha_expiracion"`
	Phone         string `json:"telefono,omitempty"`
}

func (d Driver) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

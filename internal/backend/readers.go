package backend

import (
	"context"
	"fmt"
	"net/http"
)

type StudentReader interface {
	ListStudents(ctx context.Context) ([]Student, error)
	GetStudent(ctx context.Context, id int) (*Student, error)
}

type RouteReader interface {
	ListRoutes(ctx context.Context) ([]Route, error)
}

type VehicleReader interface {
	ListVehicles(ctx context.Context) ([]Vehicle, error)
}

type DriverReader interface {
	ListDrivers(ctx context.Context) ([]Driver, error)
}

type StudentsClient struct {
	client *Client
}

func NewStudentsClient(c *Client) *StudentsClient {
	return &StudentsClient{client: c}
}

func (s *StudentsClient) ListStudents(ctx context.Context) ([]Student, error) {
	var students []Student
	if err := s.client.Do(ctx, http.MethodGet, "/api/estudiantes/", nil, &students); err != nil {
		return nil, err
	}
	return students, nil
}

func (s *StudentsClient) GetStudent(ctx context.Context, id int) (*Student, error) {
	student := new(Student)
	if err := s.client.Do(ctx, http.MethodGet, fmt.Sprintf("/api/estudiantes/%d/", id), nil, student); err != nil {
		return nil, err
	}
	return student, nil
}

type RoutesClient struct {
	client *Client
}

func NewRoutesClient(c *Client) *RoutesClient {
	return &RoutesClient{client: c}
}

func (r *RoutesClient) ListRoutes(ctx context.Context) ([]Route, error) {
	var routes []Route
	if err := r.client.Do(ctx, http.MethodGet, "/api/rutas/", nil, &routes); err != nil {
		return nil, err
	}
	return routes, nil
}

type VehiclesClient struct {
	client *Client
}

func NewVehiclesClient(c *Client) *VehiclesClient {
	return &VehiclesClient{client: c}
}

func (v *VehiclesClient) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	var vehicles []Vehicle
	if err := v.client.Do(ctx, http.MethodGet, "/api/vehiculos/", nil, &vehicles); err != nil {
		return nil, err
	}
	return vehicles, nil
}

type DriversClient struct {
	client *Client
}

func NewDriversClient(c *Client) *DriversClient {
	return &DriversClient{client: c}
}

func (d *DriversClient) ListDrivers(ctx context.Context) ([]Driver, error) {
	var drivers []Driver
	if err := d.client.Do(ctx, http.MethodGet, "/api/conductores/", nil, &drivers); err != nil {
		return nil, err
	}
	return drivers, nil
}

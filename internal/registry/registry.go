// Package registry exposes read-only lookups into the platform's vehicle,
// route and driver records. Tracking uses them only to enrich fixes for
// display; correctness never depends on them.
package registry

type VehicleInfo struct {
	Registration string
}

type RouteInfo struct {
	Name string
}

type DriverInfo struct {
	Name string
}

type Registry interface {
	Vehicle(id string) (VehicleInfo, bool)
	Route(id string) (RouteInfo, bool)
	Driver(id string) (DriverInfo, bool)
}

// Static is a fixed in-memory registry for tests and standalone runs.
type Static struct {
	Vehicles map[string]VehicleInfo
	Routes   map[string]RouteInfo
	Drivers  map[string]DriverInfo
}

func NewStatic() *Static {
	return &Static{
		Vehicles: map[string]VehicleInfo{},
		Routes:   map[string]RouteInfo{},
		Drivers:  map[string]DriverInfo{},
	}
}

func (s *Static) Vehicle(id string) (VehicleInfo, bool) {
	v, ok := s.Vehicles[id]
	return v, ok
}

func (s *Static) Route(id string) (RouteInfo, bool) {
	r, ok := s.Routes[id]
	return r, ok
}

func (s *Static) Driver(id string) (DriverInfo, bool) {
	d, ok := s.Drivers[id]
	return d, ok
}

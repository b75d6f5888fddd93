package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"tracking-svr/internal/geo"
)

// SimRoute is one simulated vehicle's route polyline and identity.
type SimRoute struct {
	VehicleID string      `yaml:"vehicle_id" validate:"required"`
	RouteID   string      `yaml:"route_id"`
	DriverID  string      `yaml:"driver_id"`
	Capacity  int         `yaml:"capacity" validate:"gte=0"`
	Waypoints []geo.Point `yaml:"waypoints" validate:"min=2,dive"`
}

type routesFile struct {
	Routes []SimRoute `yaml:"routes"`
}

// LoadRoutes reads and validates the simulator route file.
func LoadRoutes(path string) ([]SimRoute, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	var f routesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse routes file: %w", err)
	}
	v := validator.New()
	for i, r := range f.Routes {
		if err := v.Struct(r); err != nil {
			return nil, fmt.Errorf("route %d (%s): %w", i, r.VehicleID, err)
		}
	}
	return f.Routes, nil
}

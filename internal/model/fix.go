// Package model holds the typed records flowing through the tracking
// pipeline. A RawReport is untyped client input; validation is the single
// gate that turns it into a Fix.
package model

import "time"

// Status classifies a vehicle's movement at the time a fix was written.
type Status string

const (
	StatusMoving  Status = "moving"
	StatusStopped Status = "stopped"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
)

// RawReport is one position report as submitted by a driver client or the
// simulator. Optional numeric fields are pointers so that absent and zero
// are distinguishable.
type RawReport struct {
	VehicleID    string    `json:"vehicleId" validate:"required"`
	DriverID     string    `json:"driverId,omitempty"`
	Longitude    float64   `json:"longitude" validate:"gte=-180,lte=180"`
	Latitude     float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Heading      *float64  `json:"heading,omitempty" validate:"omitempty,gte=0,lte=360"`
	Speed        *float64  `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Accuracy     *float64  `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Altitude     *float64  `json:"altitude,omitempty"`
	RouteID      string    `json:"routeId,omitempty"`
	TripID       string    `json:"tripId,omitempty"`
	Passengers   *int      `json:"passengers,omitempty" validate:"omitempty,gte=0"`
	BatteryLevel *float64  `json:"batteryLevel,omitempty" validate:"omitempty,gte=0,lte=100"`
	Timestamp    time.Time `json:"timestamp,omitzero"`
}

// Fix is one validated, immutable GPS report. Corrections arrive as new
// fixes, never as updates.
type Fix struct {
	VehicleID    string    `json:"vehicleId"`
	DriverID     string    `json:"driverId,omitempty"`
	Longitude    float64   `json:"longitude"`
	Latitude     float64   `json:"latitude"`
	Heading      *float64  `json:"heading,omitempty"`
	Speed        float64   `json:"speed"`
	Accuracy     *float64  `json:"accuracy,omitempty"`
	Altitude     *float64  `json:"altitude,omitempty"`
	RouteID      string    `json:"routeId,omitempty"`
	TripID       string    `json:"tripId,omitempty"`
	Status       Status    `json:"status"`
	Passengers   *int      `json:"passengers,omitempty"`
	BatteryLevel *float64  `json:"batteryLevel,omitempty"`
	Timestamp    time.Time `json:"timestamp"`

	// Display enrichment from the registries; never persisted as truth.
	Registration string `json:"registration,omitempty"`
	RouteName    string `json:"routeName,omitempty"`
	DriverName   string `json:"driverName,omitempty"`
}

// NearbyFix is a Fix with its great-circle distance from a query point.
type NearbyFix struct {
	Fix
	DistanceMeters float64 `json:"distanceMeters"`
}

// Package pipeline turns raw position reports into validated, normalized
// fixes ready for storage. Normalize is pure: identical input always yields
// an identical Fix.
package pipeline

import (
	"time"

	"github.com/go-playground/validator/v10"

	"tracking-svr/internal/apperr"
	"tracking-svr/internal/model"
)

// Speed thresholds (km/h) for movement classification.
const (
	movingAboveKMH = 5.0
)

var validate = validator.New()

// StatusFromSpeed maps a speed to a movement status. Offline is never
// derived here; staleness filtering owns that.
func StatusFromSpeed(speedKMH float64) model.Status {
	switch {
	case speedKMH > movingAboveKMH:
		return model.StatusMoving
	case speedKMH > 0:
		return model.StatusStopped
	default:
		return model.StatusIdle
	}
}

// Normalize validates a raw report and produces the Fix to persist.
// now is used when the report carries no timestamp.
func Normalize(r model.RawReport, now time.Time) (model.Fix, error) {
	if err := validate.Struct(r); err != nil {
		return model.Fix{}, apperr.Validation("invalid report: %v", err)
	}
	// An omitted position decodes as (0,0), which is also the no-fix
	// sentinel GPS units emit before acquiring satellites. Never a real bus.
	if r.Longitude == 0 && r.Latitude == 0 {
		return model.Fix{}, apperr.Validation("missing position")
	}

	speed := 0.0
	if r.Speed != nil {
		speed = *r.Speed
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = now
	}

	return model.Fix{
		VehicleID:    r.VehicleID,
		DriverID:     r.DriverID,
		Longitude:    r.Longitude,
		Latitude:     r.Latitude,
		Heading:      r.Heading,
		Speed:        speed,
		Accuracy:     r.Accuracy,
		Altitude:     r.Altitude,
		RouteID:      r.RouteID,
		TripID:       r.TripID,
		Status:       StatusFromSpeed(speed),
		Passengers:   r.Passengers,
		BatteryLevel: r.BatteryLevel,
		Timestamp:    ts.UTC(),
	}, nil
}

// Package simulator drives configured vehicles along route polylines and
// feeds the resulting reports through the normal ingestion path. It stands
// in for real driver hardware in testing and demos; restarting the process
// resets every vehicle to its first waypoint.
package simulator

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"tracking-svr/internal/auth"
	"tracking-svr/internal/config"
	"tracking-svr/internal/geo"
	"tracking-svr/internal/model"
)

// Speed is perturbed each tick and clamped to a plausible city-bus range.
const (
	minSpeedKMH = 10.0
	maxSpeedKMH = 80.0
)

// Submitter is the slice of the tracker service the simulator needs.
type Submitter interface {
	SubmitFix(ctx context.Context, p auth.Principal, report model.RawReport) (model.Fix, error)
}

// VehicleState is the in-memory cursor of one simulated vehicle.
type VehicleState struct {
	VehicleID string
	RouteID   string
	DriverID  string
	Capacity  int

	Waypoints  []geo.Point
	Segment    int     // index of the current polyline segment
	Progress   float64 // fraction of the segment covered, [0,1)
	Direction  int     // +1 forward, -1 backward
	SpeedKMH   float64
	Passengers int
}

// travel returns the start and end points of the current traversal.
func (v *VehicleState) travel() (geo.Point, geo.Point) {
	a := v.Waypoints[v.Segment]
	b := v.Waypoints[v.Segment+1]
	if v.Direction < 0 {
		return b, a
	}
	return a, b
}

// Position interpolates linearly within the current segment.
func (v *VehicleState) Position() geo.Point {
	from, to := v.travel()
	return geo.Interpolate(from, to, v.Progress)
}

// Heading is the initial bearing along the current traversal.
func (v *VehicleState) Heading() float64 {
	from, to := v.travel()
	return geo.InitialBearing(from, to)
}

// Advance moves the cursor by one tick's worth of distance. On running off
// either end of the polyline the vehicle clamps to the boundary and
// reverses rather than looping or teleporting.
func (v *VehicleState) Advance(tick time.Duration) {
	stepMeters := v.SpeedKMH / 3.6 * tick.Seconds()
	from, to := v.travel()
	segMeters := geo.HaversineMeters(from, to)
	if segMeters <= 0 {
		v.Progress = 1
	} else {
		v.Progress += stepMeters / segMeters
	}
	if v.Progress < 1 {
		return
	}
	v.Progress = 0
	v.Segment += v.Direction
	if v.Segment > len(v.Waypoints)-2 {
		v.Segment = len(v.Waypoints) - 2
		v.Direction = -1
	} else if v.Segment < 0 {
		v.Segment = 0
		v.Direction = 1
	}
}

// Perturb jitters speed every tick and occasionally the passenger count,
// both clamped to their allowed ranges.
func (v *VehicleState) Perturb(rng *rand.Rand) {
	v.SpeedKMH += (rng.Float64()*2 - 1) * 5
	if v.SpeedKMH < minSpeedKMH {
		v.SpeedKMH = minSpeedKMH
	}
	if v.SpeedKMH > maxSpeedKMH {
		v.SpeedKMH = maxSpeedKMH
	}

	if rng.Float64() < 0.2 {
		v.Passengers += rng.Intn(7) - 3
		if v.Passengers < 0 {
			v.Passengers = 0
		}
		if v.Capacity > 0 && v.Passengers > v.Capacity {
			v.Passengers = v.Capacity
		}
	}
}

type Simulator struct {
	submitter Submitter
	vehicles  []*VehicleState
	tick      time.Duration
	rng       *rand.Rand
	logger    *slog.Logger
	principal auth.Principal
}

func New(sub Submitter, routes []config.SimRoute, tick time.Duration, logger *slog.Logger) *Simulator {
	vehicles := make([]*VehicleState, 0, len(routes))
	for _, r := range routes {
		vehicles = append(vehicles, &VehicleState{
			VehicleID: r.VehicleID,
			RouteID:   r.RouteID,
			DriverID:  r.DriverID,
			Capacity:  r.Capacity,
			Waypoints: r.Waypoints,
			Direction: 1,
			SpeedKMH:  30,
		})
	}
	return &Simulator{
		submitter: sub,
		vehicles:  vehicles,
		tick:      tick,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger,
		principal: auth.Principal{ID: "simulator", Role: auth.RoleService},
	}
}

// Run emits one report per vehicle per tick until ctx is cancelled. The
// in-flight tick finishes before the loop stops scheduling.
func (s *Simulator) Run(ctx context.Context) {
	if len(s.vehicles) == 0 {
		return
	}
	s.logger.Info("simulator started", "vehicles", len(s.vehicles), "tick", s.tick.String())
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return
		case <-ticker.C:
			s.step(ctx)
		}
	}
}

func (s *Simulator) step(ctx context.Context) {
	now := time.Now().UTC()
	for _, v := range s.vehicles {
		v.Perturb(s.rng)
		v.Advance(s.tick)

		pos := v.Position()
		heading := v.Heading()
		speed := v.SpeedKMH
		passengers := v.Passengers
		_, err := s.submitter.SubmitFix(ctx, s.principal, model.RawReport{
			VehicleID:  v.VehicleID,
			DriverID:   v.DriverID,
			RouteID:    v.RouteID,
			Longitude:  pos.Lon,
			Latitude:   pos.Lat,
			Heading:    &heading,
			Speed:      &speed,
			Passengers: &passengers,
			Timestamp:  now,
		})
		if err != nil {
			s.logger.Warn("simulated fix rejected", "vehicle", v.VehicleID, "error", err)
		}
	}
}

// Package tracker is the transport-agnostic core of the live tracking
// subsystem: one entry point per protocol operation, chaining validation,
// persistence and fan-out. Transports (WebSocket, HTTP) are adapters over
// this service.
package tracker

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"tracking-svr/internal/apperr"
	"tracking-svr/internal/auth"
	"tracking-svr/internal/hub"
	"tracking-svr/internal/model"
	"tracking-svr/internal/observability"
	"tracking-svr/internal/pipeline"
	"tracking-svr/internal/registry"
	"tracking-svr/internal/store"
)

const lockStripes = 64

type Service struct {
	store     store.Store
	hub       *hub.Hub
	verifier  auth.Verifier
	registry  registry.Registry
	freshness time.Duration
	radius    float64

	// Per-vehicle stripes serialize append+publish so delivery order
	// matches persistence order for a single vehicle.
	locks [lockStripes]sync.Mutex
}

type Options struct {
	Freshness          time.Duration
	NearbyRadiusMeters float64
}

func New(st store.Store, h *hub.Hub, v auth.Verifier, reg registry.Registry, opts Options) *Service {
	if opts.Freshness <= 0 {
		opts.Freshness = 5 * time.Minute
	}
	if opts.NearbyRadiusMeters <= 0 {
		opts.NearbyRadiusMeters = 5000
	}
	return &Service{
		store:     st,
		hub:       h,
		verifier:  v,
		registry:  reg,
		freshness: opts.Freshness,
		radius:    opts.NearbyRadiusMeters,
	}
}

func (s *Service) lockFor(vehicleID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(vehicleID))
	return &s.locks[h.Sum32()%lockStripes]
}

// Authenticate resolves a bearer token to a principal.
func (s *Service) Authenticate(token string) (auth.Principal, error) {
	return s.verifier.Verify(token)
}

// SubmitFix is the ingestion entry point: authorize, validate, persist,
// then fan out. A storage failure aborts the whole submission; a fan-out
// problem never does.
func (s *Service) SubmitFix(ctx context.Context, p auth.Principal, report model.RawReport) (model.Fix, error) {
	if !p.CanSubmitFor(report.DriverID) {
		observability.UnauthorizedSubmits.Inc()
		return model.Fix{}, apperr.Unauthorized("principal %q may not submit for driver %q", p.ID, report.DriverID)
	}

	start := time.Now()
	fix, err := pipeline.Normalize(report, start)
	if err != nil {
		observability.ValidationErrors.Inc()
		return model.Fix{}, err
	}

	mu := s.lockFor(fix.VehicleID)
	mu.Lock()
	err = s.store.Append(ctx, fix)
	if err != nil {
		mu.Unlock()
		return model.Fix{}, err
	}
	s.hub.Publish(s.enrich(fix))
	mu.Unlock()

	observability.FixesIngested.Inc()
	observability.ObserveAppendLatency(start)
	return fix, nil
}

// Subscribe attaches the session to a topic, pushing the one-shot backfill.
func (s *Service) Subscribe(ctx context.Context, sess *hub.Session, topic string) error {
	t, err := hub.ParseTopic(topic)
	if err != nil {
		return err
	}
	return s.hub.Subscribe(ctx, sess, t)
}

func (s *Service) Unsubscribe(sess *hub.Session, topic string) error {
	t, err := hub.ParseTopic(topic)
	if err != nil {
		return err
	}
	s.hub.Unsubscribe(sess, t)
	return nil
}

// Disconnect tears down all of the session's subscriptions.
func (s *Service) Disconnect(sess *hub.Session) {
	s.hub.Disconnect(sess)
}

// GetLatest returns the most recent non-stale fix for a vehicle.
func (s *Service) GetLatest(ctx context.Context, vehicleID string) (model.Fix, error) {
	if vehicleID == "" {
		return model.Fix{}, apperr.Validation("vehicleId is required")
	}
	fix, err := s.store.Latest(ctx, vehicleID)
	if err != nil {
		return model.Fix{}, err
	}
	return s.enrich(fix), nil
}

// GetActive returns the newest fix per vehicle inside the freshness window.
// sinceMinutes <= 0 selects the configured default.
func (s *Service) GetActive(ctx context.Context, sinceMinutes int) ([]model.Fix, error) {
	window := s.freshness
	if sinceMinutes > 0 {
		window = time.Duration(sinceMinutes) * time.Minute
	}
	fixes, err := s.store.AllActive(ctx, window)
	if err != nil {
		return nil, err
	}
	for i := range fixes {
		fixes[i] = s.enrich(fixes[i])
	}
	return fixes, nil
}

// GetNearby returns active vehicles by ascending distance from the point.
// radiusMeters <= 0 selects the configured default.
func (s *Service) GetNearby(ctx context.Context, lon, lat, radiusMeters float64) ([]model.NearbyFix, error) {
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return nil, apperr.Validation("query point out of bounds: lon=%v lat=%v", lon, lat)
	}
	if radiusMeters <= 0 {
		radiusMeters = s.radius
	}
	fixes, err := s.store.Nearby(ctx, lon, lat, radiusMeters)
	if err != nil {
		return nil, err
	}
	for i := range fixes {
		fixes[i].Fix = s.enrich(fixes[i].Fix)
	}
	return fixes, nil
}

// enrich merges display fields from the registries onto a copy of the fix.
func (s *Service) enrich(fix model.Fix) model.Fix {
	if s.registry == nil {
		return fix
	}
	if v, ok := s.registry.Vehicle(fix.VehicleID); ok {
		fix.Registration = v.Registration
	}
	if fix.RouteID != "" {
		if r, ok := s.registry.Route(fix.RouteID); ok {
			fix.RouteName = r.Name
		}
	}
	if fix.DriverID != "" {
		if d, ok := s.registry.Driver(fix.DriverID); ok {
			fix.DriverName = d.Name
		}
	}
	return fix
}

// Package store persists vehicle fixes in Redis: per-vehicle history sorted
// sets keyed by timestamp, a GEO set holding each vehicle's last position,
// and a membership set used by queries and the retention sweep.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tracking-svr/internal/apperr"
	"tracking-svr/internal/model"
	"tracking-svr/internal/observability"
)

const (
	keyVehicles = "track:vehicles"
	keyGeo      = "track:geo"
)

func fixesKey(vehicleID string) string { return "track:fixes:" + vehicleID }

// Store is the durable, queryable history of fixes.
type Store interface {
	Append(ctx context.Context, fix model.Fix) error
	Latest(ctx context.Context, vehicleID string) (model.Fix, error)
	AllActive(ctx context.Context, since time.Duration) ([]model.Fix, error)
	Nearby(ctx context.Context, lon, lat, radiusMeters float64) ([]model.NearbyFix, error)
	Sweep(ctx context.Context) (int64, error)
}

type Options struct {
	Retention time.Duration // fixes older than this are swept
	Freshness time.Duration // staleness threshold for Latest and the active default
}

// Redis implements Store on go-redis.
type Redis struct {
	rdb       *redis.Client
	retention time.Duration
	freshness time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(addr string, db int, opts Options) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisWithClient(rdb, opts), nil
}

// NewRedisWithClient wraps an existing client; used by tests.
func NewRedisWithClient(rdb *redis.Client, opts Options) *Redis {
	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}
	if opts.Freshness <= 0 {
		opts.Freshness = 5 * time.Minute
	}
	return &Redis{rdb: rdb, retention: opts.Retention, freshness: opts.Freshness}
}

func (s *Redis) Close() error { return s.rdb.Close() }

// Append persists one immutable fix. History, membership and the geo index
// are written in one transaction; concurrent appends for the same vehicle
// are all retained.
func (s *Redis) Append(ctx context.Context, fix model.Fix) error {
	data, err := json.Marshal(fix)
	if err != nil {
		return apperr.Storage("marshal fix", err)
	}

	key := fixesKey(fix.VehicleID)
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(fix.Timestamp.UnixMilli()),
		Member: data,
	})
	pipe.Expire(ctx, key, s.retention)
	pipe.SAdd(ctx, keyVehicles, fix.VehicleID)
	pipe.GeoAdd(ctx, keyGeo, &redis.GeoLocation{
		Name:      fix.VehicleID,
		Longitude: fix.Longitude,
		Latitude:  fix.Latitude,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		observability.StoreErrors.Inc()
		return apperr.Storage("append fix", err)
	}
	return nil
}

// Latest returns the newest fix for a vehicle by timestamp, or NOT_FOUND
// when the vehicle has never reported or its newest fix is stale.
func (s *Redis) Latest(ctx context.Context, vehicleID string) (model.Fix, error) {
	min := strconv.FormatInt(time.Now().Add(-s.freshness).UnixMilli(), 10)
	vals, err := s.rdb.ZRevRangeByScore(ctx, fixesKey(vehicleID), &redis.ZRangeBy{
		Min:   min,
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		observability.StoreErrors.Inc()
		return model.Fix{}, apperr.Storage("latest fix", err)
	}
	if len(vals) == 0 {
		return model.Fix{}, apperr.NotFound("no recent fix for vehicle %s", vehicleID)
	}
	var fix model.Fix
	if err := json.Unmarshal([]byte(vals[0]), &fix); err != nil {
		return model.Fix{}, apperr.Storage("decode fix", err)
	}
	return fix, nil
}

// AllActive returns the single newest fix per vehicle, limited to fixes
// newer than since and whose status is not offline. Results are ordered by
// vehicle id for stable output.
func (s *Redis) AllActive(ctx context.Context, since time.Duration) ([]model.Fix, error) {
	if since <= 0 {
		since = s.freshness
	}
	ids, err := s.rdb.SMembers(ctx, keyVehicles).Result()
	if err != nil {
		observability.StoreErrors.Inc()
		return nil, apperr.Storage("list vehicles", err)
	}
	fixes, err := s.latestPerVehicle(ctx, ids, since)
	if err != nil {
		return nil, err
	}
	out := make([]model.Fix, 0, len(fixes))
	for _, fix := range fixes {
		if fix.Status == model.StatusOffline {
			continue
		}
		out = append(out, fix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out, nil
}

// Nearby returns active vehicles ordered by ascending great-circle distance
// from the query point, each with its distance attached. The radius query
// runs against the engine's geo index; freshness filtering reuses the
// per-vehicle history.
func (s *Redis) Nearby(ctx context.Context, lon, lat, radiusMeters float64) ([]model.NearbyFix, error) {
	locs, err := s.rdb.GeoRadius(ctx, keyGeo, lon, lat, &redis.GeoRadiusQuery{
		Radius:   radiusMeters,
		Unit:     "m",
		WithDist: true,
		Sort:     "ASC",
	}).Result()
	if err != nil {
		observability.StoreErrors.Inc()
		return nil, apperr.Storage("geo radius", err)
	}

	ids := make([]string, len(locs))
	dist := make(map[string]float64, len(locs))
	for i, loc := range locs {
		ids[i] = loc.Name
		dist[loc.Name] = loc.Dist
	}
	fixes, err := s.latestPerVehicle(ctx, ids, s.freshness)
	if err != nil {
		return nil, err
	}

	out := make([]model.NearbyFix, 0, len(fixes))
	for _, fix := range fixes {
		if fix.Status == model.StatusOffline {
			continue
		}
		out = append(out, model.NearbyFix{Fix: fix, DistanceMeters: dist[fix.VehicleID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out, nil
}

// latestPerVehicle fetches the newest fix within the window for each id,
// skipping vehicles with nothing recent.
func (s *Redis) latestPerVehicle(ctx context.Context, ids []string, window time.Duration) ([]model.Fix, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	min := strconv.FormatInt(time.Now().Add(-window).UnixMilli(), 10)
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.ZRevRangeByScore(ctx, fixesKey(id), &redis.ZRangeBy{
			Min:   min,
			Max:   "+inf",
			Count: 1,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		observability.StoreErrors.Inc()
		return nil, apperr.Storage("latest per vehicle", err)
	}

	out := make([]model.Fix, 0, len(ids))
	for _, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		var fix model.Fix
		if err := json.Unmarshal([]byte(vals[0]), &fix); err != nil {
			continue
		}
		out = append(out, fix)
	}
	return out, nil
}

// Sweep removes fixes older than the retention horizon and drops vehicles
// whose history emptied out from the membership and geo sets. Expiry is
// eventually consistent; callers must not rely on exact timing.
func (s *Redis) Sweep(ctx context.Context) (int64, error) {
	ids, err := s.rdb.SMembers(ctx, keyVehicles).Result()
	if err != nil {
		return 0, apperr.Storage("list vehicles", err)
	}
	horizon := strconv.FormatInt(time.Now().Add(-s.retention).UnixMilli(), 10)

	var removed int64
	for _, id := range ids {
		n, err := s.rdb.ZRemRangeByScore(ctx, fixesKey(id), "-inf", horizon).Result()
		if err != nil {
			return removed, apperr.Storage("trim history", err)
		}
		removed += n

		left, err := s.rdb.ZCard(ctx, fixesKey(id)).Result()
		if err != nil {
			return removed, apperr.Storage("history size", err)
		}
		if left == 0 {
			pipe := s.rdb.TxPipeline()
			pipe.SRem(ctx, keyVehicles, id)
			pipe.ZRem(ctx, keyGeo, id)
			pipe.Del(ctx, fixesKey(id))
			if _, err := pipe.Exec(ctx); err != nil {
				return removed, apperr.Storage("drop vehicle", err)
			}
		}
	}
	if removed > 0 {
		observability.SweepRemovals.Add(float64(removed))
	}
	return removed, nil
}

// RunSweeper trims expired fixes on a fixed interval until ctx is done.
func (s *Redis) RunSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				logger.Error("retention sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				logger.Info("retention sweep", "removed", removed)
			}
		}
	}
}

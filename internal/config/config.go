package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ListenPort  string
	MetricsPort string
	RedisAddr   string
	RedisDB     int

	// Tracking semantics.
	FreshnessWindow    time.Duration // vehicles older than this are not "active"
	Retention          time.Duration // fixes older than this are swept
	SweepInterval      time.Duration
	NearbyRadiusMeters float64
	SessionQueueSize   int

	// Simulator.
	SimulatorEnabled bool
	SimulatorRoutes  string
	SimulatorTick    time.Duration

	// AUTH_TOKENS is "token=id:role" pairs separated by commas.
	AuthTokens string
}

func Load() Config {
	return Config{
		ListenPort:         getEnv("LISTEN_PORT", "8080"),
		MetricsPort:        getEnv("METRICS_PORT", "9000"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		FreshnessWindow:    getEnvDuration("FRESHNESS_WINDOW", 5*time.Minute),
		Retention:          getEnvDuration("RETENTION", 7*24*time.Hour),
		SweepInterval:      getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),
		NearbyRadiusMeters: getEnvFloat("NEARBY_RADIUS_METERS", 5000),
		SessionQueueSize:   getEnvInt("SESSION_QUEUE_SIZE", 64),
		SimulatorEnabled:   getEnv("SIMULATOR_ENABLED", "false") == "true",
		SimulatorRoutes:    getEnv("SIMULATOR_ROUTES", "routes.yml"),
		SimulatorTick:      getEnvDuration("SIMULATOR_TICK", 2*time.Second),
		AuthTokens:         getEnv("AUTH_TOKENS", ""),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

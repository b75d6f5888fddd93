package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WSConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_ws_connections_total",
		Help: "WebSocket connections accepted",
	})
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracking_sessions_active",
		Help: "Currently connected sessions",
	})
	FixesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_fixes_ingested_total",
		Help: "Fixes validated and persisted",
	})
	ValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_validation_errors_total",
		Help: "Reports rejected by validation",
	})
	UnauthorizedSubmits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_unauthorized_submits_total",
		Help: "Fix submissions rejected by authorization",
	})
	StoreErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_store_errors_total",
		Help: "Storage-layer failures",
	})
	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_events_published_total",
		Help: "Fan-out events delivered to session queues",
	})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_events_dropped_total",
		Help: "Events dropped from full session queues (oldest first)",
	})
	Backfills = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_backfills_total",
		Help: "One-shot backfills pushed at subscribe time",
	})
	SweepRemovals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_sweep_removals_total",
		Help: "Fixes removed by the retention sweep",
	})
	AppendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracking_append_latency_seconds",
		Help:    "Latency of one fix append (validate + persist)",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveAppendLatency(start time.Time) {
	AppendLatency.Observe(time.Since(start).Seconds())
}

// Package metrics holds the process-wide Prometheus collectors. Label sets are
// closed: hub names, endpoint names, frame kinds, topics and channels are all
// fixed at startup, so cardinality stays bounded.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat"

// Result label values.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultDropped = "dropped"
)

var (
	// HubSinks gauges live sinks per hub.
	HubSinks = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hub_sinks",
		Help:      "Live sinks registered in a broadcast hub.",
	}, []string{"hub"})

	// HubDeliveries counts per-sink emit outcomes (ok or dropped).
	HubDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hub_deliveries_total",
		Help:      "Per-sink deliveries attempted by a broadcast hub.",
	}, []string{"hub", "result"})

	// Sessions gauges open connections per endpoint.
	Sessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Open WebSocket sessions.",
	}, []string{"endpoint"})

	// SessionRejects counts handshakes refused for identity reasons.
	SessionRejects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_rejects_total",
		Help:      "WebSocket handshakes rejected.",
	}, []string{"endpoint"})

	// SessionFrames counts inbound frames by kind and outcome.
	SessionFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_frames_total",
		Help:      "Inbound frames handled by session handlers.",
	}, []string{"kind", "result"})

	// SideEffects counts detached side effects by name and outcome.
	SideEffects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "side_effects_total",
		Help:      "Fire-and-forget side effects issued by sessions.",
	}, []string{"name", "result"})

	// PipelineAppends counts produce attempts and delivery reports per topic.
	PipelineAppends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_appends_total",
		Help:      "Distribution pipeline appends by topic and result.",
	}, []string{"topic", "result"})

	// PipelineConsumed counts records handled by the pipeline consumer.
	PipelineConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_consumed_total",
		Help:      "Distribution pipeline records consumed by topic and result.",
	}, []string{"topic", "result"})

	// BridgeSignals counts fanout bridge traffic.
	BridgeSignals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bridge_signals_total",
		Help:      "Fanout bridge signals by channel and direction.",
	}, []string{"channel", "direction"})

	// LedgerWrites counts per-user entries written into the read ledger.
	LedgerWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "read_ledger_writes_total",
		Help:      "Read-progress entries merged into the durable ledger.",
	})

	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP API requests.",
	}, []string{"method", "path", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP API requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
)

func init() {
	prometheus.MustRegister(
		HubSinks, HubDeliveries, Sessions, SessionRejects, SessionFrames, SideEffects,
		PipelineAppends, PipelineConsumed, BridgeSignals, LedgerWrites,
		httpReqs, httpLat,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Package metrics provides Prometheus instrumentation for agentchattr.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentchattr_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentchattr_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Business metrics.
var (
	ActiveAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentchattr_active_agents",
		Help: "Number of agents currently online (recent presence).",
	})

	PendingTriggers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agentchattr_pending_triggers",
		Help: "Number of trigger entries queued per agent awaiting injection.",
	}, []string{"agent"})

	TriggersEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentchattr_triggers_enqueued_total",
		Help: "Total number of trigger entries enqueued per agent.",
	}, []string{"agent"})

	LoopGuardTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentchattr_loop_guard_trips_total",
		Help: "Total number of times the loop guard paused a channel.",
	}, []string{"channel"})

	ChannelHops = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agentchattr_channel_hops",
		Help: "Current agent-to-agent hop count per channel.",
	}, []string{"channel"})

	WrapperRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentchattr_wrapper_restarts_total",
		Help: "Total number of wrapper-initiated session restarts, by reason.",
	}, []string{"agent", "reason"})

	HealthProbeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentchattr_health_probe_failures_total",
		Help: "Total number of failed MCP health probes, by probe kind.",
	}, []string{"agent", "probe"})
)

// WebSocket metrics.
var (
	WSConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentchattr_ws_connections_active",
		Help: "Number of active WebSocket connections.",
	})

	WSMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentchattr_ws_messages_total",
		Help: "Total number of WebSocket messages sent.",
	})

	WSDroppedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentchattr_ws_dropped_events_total",
		Help: "Total number of non-essential events dropped for slow WebSocket clients.",
	}, []string{"type"})
)

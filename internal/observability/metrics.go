package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	HttpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served, websocket sessions excluded",
		},
		[]string{"service"},
	)

	WebSocketConnectionsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of active WebSocket connections",
		},
		[]string{"service"},
	)

	EnvelopesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_envelopes_processed_total",
			Help: "Broker envelopes handled by the delivery tracker, by outcome",
		},
		[]string{"outcome"},
	)

	MessageDeliveryLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "message_delivery_latency_seconds",
			Help:    "Time from send to DELIVERED",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 30, 60, 300, 900},
		},
	)

	RetryAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_retry_attempts_total",
			Help: "Republish attempts made by the retry scheduler",
		},
	)

	MessagesFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_messages_failed_total",
			Help: "Messages that exhausted their retry budget",
		},
	)

	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_sweep_runs_total",
			Help: "Periodic task executions, by task and result",
		},
		[]string{"task", "result"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_sweep_duration_seconds",
			Help:    "Duration of one periodic task execution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	SweepSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_sweep_skipped_total",
			Help: "Ticks skipped because the previous run was still in flight",
		},
		[]string{"task"},
	)

	MessagesPromotedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_messages_promoted_total",
			Help: "Messages promoted to DELIVERED, by path",
		},
		[]string{"path"},
	)

	LivePushFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_push_failures_total",
			Help: "Best-effort live channel publishes that failed",
		},
		[]string{"kind"},
	)
)

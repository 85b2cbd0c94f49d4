// ABOUTME: Prometheus metrics for connections, messages, fanout, and AI completions
// ABOUTME: All metrics are package-level promauto vars exposed via the /metrics endpoint

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "campuschat_active_connections",
			Help: "Currently active WebSocket connections",
		},
		[]string{"kind"}, // "chat" or "ai_chat"
	)

	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuschat_connections_total",
			Help: "Total accepted WebSocket connections",
		},
		[]string{"kind"},
	)

	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuschat_connections_rejected_total",
			Help: "Connection upgrades rejected before accept",
		},
		[]string{"reason"}, // "authentication" or "authorization"
	)

	// Message metrics
	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuschat_messages_persisted_total",
			Help: "Messages durably written to the store",
		},
		[]string{"ingress"}, // "ws" or "api"
	)

	FanoutDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campuschat_fanout_deliveries_total",
			Help: "Per-member fanout deliveries attempted",
		},
	)

	// AI metrics
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuschat_completions_total",
			Help: "Completion provider calls",
		},
		[]string{"outcome"}, // "success" or "error"
	)

	CompletionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campuschat_completion_duration_seconds",
			Help:    "Completion provider call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 30, 60},
		},
	)

	CompletionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuschat_completion_tokens_total",
			Help: "Tokens consumed by completion calls",
		},
		[]string{"kind"}, // "prompt" or "completion"
	)
)

// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesTotal tracks messages appended to the store.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total messages appended, by direction",
		},
		[]string{"direction"},
	)

	// StatusTransitionsTotal tracks message status transitions.
	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_status_transitions_total",
			Help: "Total message status transitions",
		},
		[]string{"to"},
	)

	// OnlineUsers tracks users currently marked online in the directory.
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_online_users",
			Help: "Number of directory users currently online",
		},
	)

	// TypingUsers tracks users currently flagged as typing.
	TypingUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_typing_users",
			Help: "Number of users currently flagged as typing",
		},
	)

	// PendingTimers tracks deferred delivery-simulation calls not yet fired.
	PendingTimers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sim_pending_timers",
			Help: "Pending delivery-simulation timers",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// EngineNotificationsTotal tracks snapshot notifications to subscribers.
	EngineNotificationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_engine_notifications_total",
			Help: "Total snapshot notifications delivered to subscribers",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordMessage records an appended message.
func RecordMessage(direction string) {
	MessagesTotal.WithLabelValues(direction).Inc()
}

// RecordTransition records a message status transition.
func RecordTransition(to string) {
	StatusTransitionsTotal.WithLabelValues(to).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

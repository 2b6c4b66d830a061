package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "rescuedispatch"

// Dispatch metrics
var (
	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Total alerts created, by priority",
		},
		[]string{"priority"},
	)

	// AlertTransitionsTotal counts lifecycle transitions by outcome: applied,
	// rejected (guard failed) or error (store unavailable).
	AlertTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "alerts",
			Name:      "transitions_total",
			Help:      "Alert lifecycle transitions by transition and outcome",
		},
		[]string{"transition", "outcome"},
	)

	DispatchFanout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatch",
			Name:      "fanout_responders",
			Help:      "Number of responders notified per alert",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
	)

	ExpiredAlertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "alerts",
			Name:      "expired_total",
			Help:      "Alerts cancelled by the expiry sweep",
		},
	)

	SideEffectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dispatch",
			Name:      "side_effect_failures_total",
			Help:      "Fire-and-forget side effects that failed",
		},
		[]string{"effect"},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "websocket",
			Name:      "connections",
			Help:      "Currently connected websocket clients",
		},
	)
)

// Transition outcomes
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

func RecordTransition(transition string, err error) {
	outcome := OutcomeApplied
	switch {
	case err == nil:
	case IsKind(err, KindUnavailable):
		outcome = OutcomeError
	default:
		outcome = OutcomeRejected
	}
	AlertTransitionsTotal.WithLabelValues(transition, outcome).Inc()
}

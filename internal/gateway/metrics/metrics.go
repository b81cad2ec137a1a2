package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	// HTTP surface.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Websocket surface.
	WSConnectionsActive prometheus.Gauge

	// Collaboration core.
	SessionsActive     prometheus.Gauge
	ParticipantsActive prometheus.Gauge
	LocksActive        prometheus.Gauge
	OperationsTotal    *prometheus.CounterVec
	ConflictsTotal     prometheus.Counter
	VersionsSavedTotal prometheus.Counter
}

// NewMetrics registers the collectors under namespace/subsystem.
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		WSConnectionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ws_connections_active",
			Help:      "Currently open websocket connections.",
		}),

		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_active",
			Help:      "Live document sessions.",
		}),

		ParticipantsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "participants_active",
			Help:      "Participants across all live sessions.",
		}),

		LocksActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "locks_active",
			Help:      "Active section locks across all sessions.",
		}),

		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "Submitted operations by outcome.",
		}, []string{"outcome"}),

		ConflictsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "conflicts_total",
			Help:      "Operations dropped by conflict resolution.",
		}),

		VersionsSavedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "versions_saved_total",
			Help:      "Versions persisted to the store.",
		}),
	}
}

// ObserveHTTP records one completed HTTP request.
func (m *Metrics) ObserveHTTP(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOperation records a submitted operation's outcome: applied,
// dropped or rejected.
func (m *Metrics) RecordOperation(outcome string) {
	m.OperationsTotal.WithLabelValues(outcome).Inc()
	if outcome == "dropped" {
		m.ConflictsTotal.Inc()
	}
}

// Handler exposes the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

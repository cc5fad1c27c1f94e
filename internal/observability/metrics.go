package observability

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission results used as the "result" label of SecurityLogSubmissionsTotal
const (
	ResultAccepted     = "accepted"
	ResultUnauthorized = "unauthorized"
	ResultInvalid      = "invalid"
	ResultError        = "error"
)

// HTTP metrics, labelled by method, chi route pattern and status code.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route pattern.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

// Security log pipeline metrics.
var (
	// SecurityLogSubmissionsTotal counts every submit attempt by result.
	SecurityLogSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_log_submissions_total",
			Help: "Security log submissions by result (accepted, unauthorized, invalid, error).",
		},
		[]string{"result"},
	)

	// SecurityLogEventsTotal counts persisted records. Label values come from
	// the closed catalogue so cardinality is fixed.
	SecurityLogEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_log_events_total",
			Help: "Persisted security log records by event and outcome.",
		},
		[]string{"event", "outcome"},
	)

	RecorderDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_log_recorder_dropped_total",
			Help: "In-process security events dropped because the recorder buffer was full or stopped.",
		},
	)

	RecorderPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "security_log_recorder_pending",
			Help: "Security events queued in the in-process recorder.",
		},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_log_rate_limited_total",
			Help: "Ingestion requests rejected by the rate limiter.",
		},
	)
)

// RegisterDBStats exposes connection pool statistics for db. It returns the
// registration error so callers can ignore AlreadyRegisteredError on restart paths.
func RegisterDBStats(reg prometheus.Registerer, db *sql.DB) error {
	return reg.Register(collectors.NewDBStatsCollector(db, "security_logs"))
}

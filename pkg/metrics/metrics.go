package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors register with the default registry at package load so that
// library code and tests can record without an init step.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	URLsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_urls_pending",
			Help: "Current number of URLs waiting in the audit queue.",
		},
	)

	AuditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audits_total",
			Help: "Total number of page audit attempts.",
		},
		[]string{"status", "error_type"}, // status: passed, failed, crashed, skipped_redirect, retry
	)

	AuditDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audit_duration_seconds",
			Help:    "Duration of page audits.",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
		},
		[]string{"status"},
	)

	PageScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_page_score",
			Help:    "Distribution of accessibility scores.",
			Buckets: []float64{50, 60, 65, 70, 75, 80, 85, 90, 95, 100},
		},
	)

	SessionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "browser_sessions_in_use",
			Help: "Page sessions currently checked out of the pool.",
		},
	)

	BrowserInstances = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "browser_instances",
			Help: "Browser processes currently managed by the pool.",
		},
	)

	BrowserLaunches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browser_launches_total",
			Help: "Browser launch attempts.",
		},
		[]string{"result"}, // ok, error
	)
)

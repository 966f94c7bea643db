// Package metrics declares the Prometheus collectors for the update pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle outcomes used as the "outcome" label.
const (
	OutcomeCompleted  = "completed"
	OutcomeLockDenied = "lock_denied"
	OutcomeFailed     = "failed"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "view_tracker_update_cycles_total",
		Help: "Update cycles by outcome",
	}, []string{"outcome"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "view_tracker_update_cycle_duration_seconds",
		Help:    "Duration of update cycles that acquired the lock",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	SnapshotsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "view_tracker_snapshots_saved_total",
		Help: "Video snapshots persisted by cycles and manual additions",
	})

	LastSuccessfulCycle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "view_tracker_last_successful_cycle_timestamp_seconds",
		Help: "Cycle timestamp of the most recent completed update",
	})

	CatalogRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "view_tracker_catalog_requests_total",
		Help: "Catalog API calls by endpoint and result",
	}, []string{"endpoint", "result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "view_tracker_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "view_tracker_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// ObserveCatalogRequest counts one catalog API call.
func ObserveCatalogRequest(endpoint string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CatalogRequests.WithLabelValues(endpoint, result).Inc()
}

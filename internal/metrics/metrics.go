// Package metrics exposes Prometheus collectors for dataset runs. A batch
// run has no scrape endpoint, so the registry can be dumped to a textfile for
// node_exporter's textfile collector when the run finishes.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup results.
const (
	ResultHit  = "hit"
	ResultMiss = "miss"
)

var (
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "munidist_cache_lookups_total",
			Help: "Total cache lookups, labeled by store and result.",
		},
		[]string{"store", "result"},
	)

	externalCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "munidist_external_calls_total",
			Help: "Total calls to external services, labeled by service and outcome.",
		},
		[]string{"service", "outcome"},
	)

	externalCallDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "munidist_external_call_duration_seconds",
			Help:    "Histogram of external call latencies, labeled by service.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "munidist_rate_limit_delays_seconds",
			Help:    "Histogram of courtesy delay wait durations, labeled by service.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 1.5, 2, 5},
		},
		[]string{"service"},
	)

	exportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "munidist_exports_total",
			Help: "Total dataset exports, labeled by sink and status.",
		},
		[]string{"sink", "status"},
	)

	exportedRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "munidist_exported_rows",
			Help: "Rows in the most recent export, labeled by sink.",
		},
		[]string{"sink"},
	)
)

// ObserveCacheLookup counts a lookup against store.
func ObserveCacheLookup(store string, hit bool) {
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	cacheLookupsTotal.WithLabelValues(store, result).Inc()
}

// ObserveExternalCall records the outcome and latency of one external call.
func ObserveExternalCall(service, outcome string, duration time.Duration) {
	externalCallsTotal.WithLabelValues(service, outcome).Inc()
	externalCallDurationSeconds.WithLabelValues(service).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a courtesy wait.
func ObserveRateLimitDelay(service string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(service).Observe(duration.Seconds())
}

// ObserveExport records a finished export of rows to sink.
func ObserveExport(sink string, rows int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	exportsTotal.WithLabelValues(sink, status).Inc()
	if err == nil {
		exportedRows.WithLabelValues(sink).Set(float64(rows))
	}
}

// WriteTextfile dumps every metric gathered by g to path in the text
// exposition format. A nil gatherer uses the default registry.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

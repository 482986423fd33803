// Package telemetry exposes Prometheus metrics for the scan service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesleuth_scans_total",
			Help: "Total number of scan requests processed, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	cacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sitesleuth_cache_hits_total",
			Help: "Total number of scans served from the result cache.",
		},
	)

	crawlerPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesleuth_crawler_pages_total",
			Help: "Total number of pages visited by the crawler, labeled by status.",
		},
		[]string{"status"},
	)

	classifierFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesleuth_classifier_backend_failures_total",
			Help: "Total number of classifier backend failures, labeled by backend.",
		},
		[]string{"backend"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitesleuth_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesleuth_http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)
)

// ObserveScan records the terminal outcome of one scan request
// (e.g. "success", "cache_hit", "invalid_url", "fetch_failed").
func ObserveScan(outcome string) {
	scansTotal.WithLabelValues(outcome).Inc()
	if outcome == "cache_hit" {
		cacheHitsTotal.Inc()
	}
}

// ObserveCrawledPage records one crawler page visit ("ok" or "error").
func ObserveCrawledPage(status string) {
	crawlerPagesTotal.WithLabelValues(status).Inc()
}

// ObserveBackendFailure records a classifier backend failure.
func ObserveBackendFailure(backend string) {
	classifierFailuresTotal.WithLabelValues(backend).Inc()
}

// ObserveHTTPRequest records latency and count for one served request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

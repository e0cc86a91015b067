// Package metrics exposes Prometheus collectors for the image enricher.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	outcomesTotal              *prometheus.CounterVec
	heuristicMatchesTotal      *prometheus.CounterVec
	persistErrorsTotal         prometheus.Counter
	batchesTotal               prometheus.Counter
	remainingCandidates        prometheus.Gauge
	fetchDurationSeconds       *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	archiveErrorsTotal         prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		outcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_outcomes_total",
				Help: "Classified enrichment outcomes, labeled by outcome and miss reason.",
			},
			[]string{"outcome", "reason"},
		)

		heuristicMatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enricher_heuristic_matches_total",
				Help: "Images found, labeled by the heuristic that matched.",
			},
			[]string{"heuristic"},
		)

		persistErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "enricher_persist_errors_total",
				Help: "Image writes that failed.",
			},
		)

		batchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "enricher_batches_total",
				Help: "Batches completed.",
			},
		)

		remainingCandidates = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "enricher_remaining_candidates",
				Help: "Records still missing an image at the last evaluation.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "enricher_fetch_duration_seconds",
				Help:    "Page fetch latency, labeled by site and fetch status.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"site", "status"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "enricher_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		archiveErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "enricher_archive_errors_total",
				Help: "Miss-archive writes that failed.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOutcome counts one classified outcome.
func ObserveOutcome(outcome, reason string) {
	Init()
	outcomesTotal.WithLabelValues(outcome, reason).Inc()
}

// ObserveHeuristicMatch counts an image found by heuristic.
func ObserveHeuristicMatch(heuristic string) {
	Init()
	heuristicMatchesTotal.WithLabelValues(heuristic).Inc()
}

// ObservePersistError counts a failed image write.
func ObservePersistError() {
	Init()
	persistErrorsTotal.Inc()
}

// ObserveBatch counts a completed batch and records the remaining backlog.
// A negative remaining value means the count was unavailable.
func ObserveBatch(remaining int64) {
	Init()
	batchesTotal.Inc()
	if remaining >= 0 {
		remainingCandidates.Set(float64(remaining))
	}
}

// ObserveFetch records the latency of one page fetch.
func ObserveFetch(rawURL, status string, duration time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(SanitizeSite(rawURL), status).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveArchiveError counts a failed miss-archive write.
func ObserveArchiveError() {
	Init()
	archiveErrorsTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

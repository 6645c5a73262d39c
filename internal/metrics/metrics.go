// Package metrics exposes Prometheus collectors for the websum service.
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
	acquisitionsTotal          *prometheus.CounterVec
	acquisitionDurationSeconds *prometheus.HistogramVec
	escalationsTotal           *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	chunksPerJob               prometheus.Histogram
	summarizeCallsTotal        *prometheus.CounterVec
	jobsTotal                  *prometheus.CounterVec
	queueDepth                 *prometheus.GaugeVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call repeatedly.
func Init() {
	once.Do(func() {
		acquisitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websum_acquisitions_total",
				Help: "Acquisitions labeled by source, strategy and outcome.",
			},
			[]string{"source", "strategy", "outcome"},
		)

		acquisitionDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "websum_acquisition_duration_seconds",
				Help:    "Wall time per acquisition attempt.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 90},
			},
			[]string{"source"},
		)

		escalationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websum_fallback_escalations_total",
				Help: "Remote rendering escalations labeled by outcome (used, empty, failed).",
			},
			[]string{"outcome"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "websum_rate_limit_delays_seconds",
				Help:    "Histogram of per-host rate limit waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		chunksPerJob = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "websum_chunks_per_job",
				Help:    "Number of chunks produced for each summarized document.",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
			},
		)

		summarizeCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websum_summarize_calls_total",
				Help: "Summarizer calls labeled by outcome.",
			},
			[]string{"outcome"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websum_jobs_total",
				Help: "Jobs reaching a terminal state, labeled by state.",
			},
			[]string{"state"},
		)

		queueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "websum_queue_jobs",
				Help: "Jobs currently queued or running.",
			},
			[]string{"state"},
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

// SanitizeSite extracts a lowercase hostname, or "unknown".
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

// ObserveAcquisition records one acquisition attempt.
func ObserveAcquisition(source, strategy, outcome string, duration time.Duration) {
	Init()
	acquisitionsTotal.WithLabelValues(source, strategy, outcome).Inc()
	acquisitionDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveEscalation records the outcome of a remote rendering fallback.
func ObserveEscalation(outcome string) {
	Init()
	escalationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveChunks records how many chunks a document produced.
func ObserveChunks(n int) {
	Init()
	chunksPerJob.Observe(float64(n))
}

// ObserveSummarize records a summarizer call.
func ObserveSummarize(err error) {
	Init()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	summarizeCallsTotal.WithLabelValues(outcome).Inc()
}

// ObserveJob increments the job counter for a terminal state.
func ObserveJob(state string) {
	Init()
	jobsTotal.WithLabelValues(state).Inc()
}

// SetQueueDepth publishes the scheduler's queued and running counts.
func SetQueueDepth(queued, running int) {
	Init()
	queueDepth.WithLabelValues("queued").Set(float64(queued))
	queueDepth.WithLabelValues("running").Set(float64(running))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

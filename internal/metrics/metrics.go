// Package metrics exposes Prometheus collectors for the catalog builder.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchRetriesTotal          *prometheus.CounterVec
	permitsInFlight            *prometheus.GaugeVec
	permitWaitSeconds          *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	linkChecksTotal            *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "isocatalog_fetch_attempts_total",
				Help: "Upstream HTTP attempts, labeled by host and outcome.",
			},
			[]string{"host", "outcome"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "isocatalog_fetch_retries_total",
				Help: "Retries scheduled after transient upstream failures, labeled by host.",
			},
			[]string{"host"},
		)

		permitsInFlight = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "isocatalog_permits_in_flight",
				Help: "Admission permits currently held, labeled by pool.",
			},
			[]string{"pool"},
		)

		permitWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "isocatalog_permit_wait_seconds",
				Help:    "Time spent waiting for an admission permit, labeled by pool.",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"pool"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "isocatalog_rate_limit_delay_seconds",
				Help:    "Histogram of per-host pacing delays.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		linkChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "isocatalog_link_checks_total",
				Help: "Liveness probes, labeled by classification.",
			},
			[]string{"result"},
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

// Handler returns an http.Handler exposing the default registry merged with
// any extra gatherers.
func Handler(extra ...prometheus.Gatherer) http.Handler {
	if len(extra) == 0 {
		return promhttp.Handler()
	}
	gatherers := append(prometheus.Gatherers{prometheus.DefaultGatherer}, extra...)
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

// ObserveFetchAttempt counts one upstream attempt.
func ObserveFetchAttempt(host, outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(host, outcome).Inc()
}

// ObserveRetry counts a scheduled retry.
func ObserveRetry(host string) {
	Init()
	fetchRetriesTotal.WithLabelValues(host).Inc()
}

// SetPermitsInFlight publishes the in-flight count of a pool.
func SetPermitsInFlight(pool string, n int64) {
	Init()
	permitsInFlight.WithLabelValues(pool).Set(float64(n))
}

// ObservePermitWait records how long an acquisition was suspended.
func ObservePermitWait(pool string, d time.Duration) {
	Init()
	permitWaitSeconds.WithLabelValues(pool).Observe(d.Seconds())
}

// ObserveRateLimitDelay records the duration of a pacing wait.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveLinkCheck counts one liveness classification.
func ObserveLinkCheck(result string) {
	Init()
	linkChecksTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

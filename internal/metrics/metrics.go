// Package metrics exposes Prometheus collectors for the scout service.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	expansionAttemptsTotal     *prometheus.CounterVec
	queuePopsTotal             *prometheus.CounterVec
	chainCrawlsTotal           prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
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

		expansionAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appscout_expansion_attempts_total",
				Help: "Total term expansion attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		queuePopsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appscout_queue_pops_total",
				Help: "Total work queue pops, labeled by result.",
			},
			[]string{"result"},
		)

		chainCrawlsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "appscout_chain_crawls_total",
				Help: "Total crawls launched by the chain controller.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// The domain helpers below no-op until Init registers the collectors, so the
// packages calling them stay testable without the metrics endpoint.

// ObserveExpansionAttempt records one provider attempt outcome
// ("ok", "rate_limited" or "error").
func ObserveExpansionAttempt(outcome string) {
	if expansionAttemptsTotal == nil {
		return
	}
	expansionAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveQueuePop records a work queue pop ("found" or "empty").
func ObserveQueuePop(found bool) {
	if queuePopsTotal == nil {
		return
	}
	result := "empty"
	if found {
		result = "found"
	}
	queuePopsTotal.WithLabelValues(result).Inc()
}

// ObserveChainCrawl counts a crawl launched by the chain controller.
func ObserveChainCrawl() {
	if chainCrawlsTotal == nil {
		return
	}
	chainCrawlsTotal.Inc()
}

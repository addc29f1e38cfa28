// Package metrics holds the Prometheus collectors for the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neardup_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"path", "method", "status"},
	)
	apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neardup_api_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	passPairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neardup_pass_pairs_total",
			Help: "Pairs emitted by search passes, before merging",
		},
		[]string{"pass"},
	)
	passDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neardup_pass_duration_seconds",
			Help:    "Search pass latency",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
		[]string{"pass"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neardup_cache_lookups_total",
			Help: "Similar-pairs cache lookups by result",
		},
		[]string{"result"},
	)

	storeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neardup_store_operations_total",
			Help: "Fingerprint store operations",
		},
		[]string{"operation"},
	)

	jobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "neardup_jobs_in_flight",
			Help: "Dedupe jobs currently running",
		},
	)
	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neardup_webhook_deliveries_total",
			Help: "Webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(apiRequests, apiDuration)
	prometheus.MustRegister(passPairs, passDuration)
	prometheus.MustRegister(cacheLookups, storeOps)
	prometheus.MustRegister(jobsInFlight, webhookDeliveries)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one finished API request.
func ObserveRequest(path, method string, status int, elapsed time.Duration) {
	apiRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	apiDuration.WithLabelValues(path, method).Observe(elapsed.Seconds())
}

// ObservePass records one search pass.
func ObservePass(name string, pairs int, elapsed time.Duration) {
	passPairs.WithLabelValues(name).Add(float64(pairs))
	passDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// CacheLookup records a cache "hit" or "miss".
func CacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

// StoreOp counts a store operation.
func StoreOp(op string) {
	storeOps.WithLabelValues(op).Inc()
}

// JobStarted and JobFinished track running dedupe jobs.
func JobStarted()  { jobsInFlight.Inc() }
func JobFinished() { jobsInFlight.Dec() }

// WebhookDelivery records a webhook outcome: "delivered", "retry" or "failed".
func WebhookDelivery(outcome string) {
	webhookDeliveries.WithLabelValues(outcome).Inc()
}

// Package metrics defines the Prometheus metric collectors used by the item
// service and the enrichment worker, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	CacheHitsTotal       *prometheus.CounterVec
	CacheMissesTotal     *prometheus.CounterVec
	QueueDepth           prometheus.Gauge
	DBQueryDuration      *prometheus.HistogramVec
	TasksTotal           *prometheus.CounterVec
	TaskDuration         prometheus.Histogram
	CircuitBreakerState  *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them with reg. A nil reg uses a
// fresh private registry, which keeps tests from colliding on the global one.
func New(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer
	switch r := reg.(type) {
	case nil:
		private := prometheus.NewRegistry()
		reg, gatherer = private, private
	case prometheus.Gatherer:
		gatherer = r
	default:
		gatherer = prometheus.DefaultGatherer
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits by cache backend.",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses by cache backend.",
			},
			[]string{"cache"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "worker_queue_depth",
				Help: "Number of enrichment tasks waiting in the worker queue.",
			},
		),
		DBQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Database query duration in seconds by operation.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation"},
		),
		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enrichment_tasks_total",
				Help: "Enrichment tasks processed by final status.",
			},
			[]string{"status"},
		),
		TaskDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "enrichment_task_duration_seconds",
				Help:    "Time spent handling one enrichment task.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 1.5, 2, 5, 10, 30},
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		gatherer: gatherer,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.QueueDepth,
		m.DBQueryDuration,
		m.TasksTotal,
		m.TaskDuration,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveQuery records the latency of one storage operation.
func (m *Metrics) ObserveQuery(operation string, elapsed time.Duration) {
	m.DBQueryDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// CacheHit and CacheMiss count lookups against the named cache backend.
func (m *Metrics) CacheHit(cache string)  { m.CacheHitsTotal.WithLabelValues(cache).Inc() }
func (m *Metrics) CacheMiss(cache string) { m.CacheMissesTotal.WithLabelValues(cache).Inc() }

// SetQueueDepth publishes the latest observed queue length.
func (m *Metrics) SetQueueDepth(depth int64) {
	m.QueueDepth.Set(float64(depth))
}

// Handler returns the Prometheus scrape HTTP handler for the registry these
// metrics were registered with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Handler returns the scrape handler for the global registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

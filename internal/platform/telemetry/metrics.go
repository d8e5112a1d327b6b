// Package telemetry exposes Prometheus metrics and Sentry error reporting
// for the clinic server.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinic"

// Catalog cache results.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Metrics holds every collector the server exports. It implements
// prometheus.Collector so it registers as one unit.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	consultationsCreated *prometheus.CounterVec
	resolutions          *prometheus.CounterVec
	overrides            *prometheus.CounterVec
	overrideRows         prometheus.Counter
	cacheRequests        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on registry together
// with the Go runtime and process collectors.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.init()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	return m, nil
}

// NewNopMetrics returns metrics backed by a private registry, for tests and
// for servers running with METRICS_ENABLED=false.
func NewNopMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.init()
	_ = m.registry.Register(m)
	return m
}

func (m *Metrics) init() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)
	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time taken for HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	m.consultationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consultations_created_total",
			Help:      "Consultations saved, by whether the general consultation fallback was used",
		},
		[]string{"fallback"},
	)
	m.resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnosis_resolutions_total",
			Help:      "Diagnosis entries written, by resolved status",
		},
		[]string{"result"},
	)
	m.overrides = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnosis_overrides_total",
			Help:      "Bulk status overrides, by target status",
		},
		[]string{"status"},
	)
	m.overrideRows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnosis_override_rows_total",
			Help:      "Diagnosis entries rewritten by bulk overrides",
		},
	)
	m.cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_requests_total",
			Help:      "Diagnosis catalog cache lookups, by result",
		},
		[]string{"result"},
	)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.consultationsCreated,
		m.resolutions,
		m.overrides,
		m.overrideRows,
		m.cacheRequests,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// The recording methods are no-ops on a nil *Metrics.

// ObserveHTTP records one finished request. route is the matched route
// pattern, never the raw path, to bound label cardinality.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ConsultationCreated records a saved consultation and the status of each
// entry it wrote.
func (m *Metrics) ConsultationCreated(fallback bool, statuses []string) {
	if m == nil {
		return
	}
	m.consultationsCreated.WithLabelValues(strconv.FormatBool(fallback)).Inc()
	for _, s := range statuses {
		m.resolutions.WithLabelValues(s).Inc()
	}
}

// StatusOverridden records a bulk override and how many entries it touched.
func (m *Metrics) StatusOverridden(status string, rows int64) {
	if m == nil {
		return
	}
	m.overrides.WithLabelValues(status).Inc()
	m.overrideRows.Add(float64(rows))
}

// CacheLookup records a catalog cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheRequests.WithLabelValues(CacheHit).Inc()
		return
	}
	m.cacheRequests.WithLabelValues(CacheMiss).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
	return echo.WrapHandler(h)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toolsascode/bfm/info/internal/info"
)

// Collector holds the Prometheus metrics exported by the server and worker.
// It uses its own registry so tests and multiple instances do not collide.
// Record and Observe methods are no-ops on a nil collector.
type Collector struct {
	registry *prometheus.Registry

	Migrations          *prometheus.GaugeVec
	Valid               prometheus.Gauge
	Refreshes           *prometheus.CounterVec
	RefreshDuration     prometheus.Histogram
	Jobs                *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with all metrics registered under namespace
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "bfm"
	}
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		Migrations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "info",
			Name:      "migrations",
			Help:      "Number of migrations per derived state after the last refresh",
		}, []string{"state"}),
		Valid: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "info",
			Name:      "valid",
			Help:      "1 when the last validation found no problem, 0 otherwise",
		}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "info",
			Name:      "refresh_total",
			Help:      "Total number of refreshes",
		}, []string{"status"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "info",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refreshes in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of queued jobs processed",
		}, []string{"kind", "status"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		c.Migrations,
		c.Valid,
		c.Refreshes,
		c.RefreshDuration,
		c.Jobs,
		c.HTTPRequestsTotal,
		c.HTTPRequestDuration,
	)
	return c
}

// Handler returns an HTTP handler that serves the collector's metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRefresh records one refresh attempt
func (c *Collector) RecordRefresh(duration time.Duration, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.Refreshes.WithLabelValues(status).Inc()
	c.RefreshDuration.Observe(duration.Seconds())
}

// ObserveSummary publishes per-state counts; states absent from summary are set to zero
func (c *Collector) ObserveSummary(summary map[info.State]int) {
	if c == nil {
		return
	}
	for _, s := range info.AllStates {
		c.Migrations.WithLabelValues(s.Code()).Set(float64(summary[s]))
	}
}

// ObserveValidation publishes the outcome of a validation
func (c *Collector) ObserveValidation(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.Valid.Set(0)
		return
	}
	c.Valid.Set(1)
}

// RecordJob records a processed queue job
func (c *Collector) RecordJob(kind string, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.Jobs.WithLabelValues(kind, status).Inc()
}

// RecordHTTPRequest records an HTTP request metric
func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

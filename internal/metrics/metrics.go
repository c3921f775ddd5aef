// Package metrics exposes import and HTTP counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"journaltransporter/internal/ingest"
)

const Namespace = "transporter"

// Metrics owns a private registry so tests and multiple servers do not collide
// on the global one.
type Metrics struct {
	registry *prometheus.Registry

	importsTotal    *prometheus.CounterVec
	importDuration  *prometheus.HistogramVec
	recordsTotal    *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		importsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "imports_total",
			Help:      "Import attempts by event type and result.",
		}, []string{"type", "result"}),
		importDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "import_duration_seconds",
			Help:      "Time spent validating and persisting one payload.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "imported_records_total",
			Help:      "Nested records written by successful journal imports.",
		}, []string{"kind"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.importsTotal,
		m.importDuration,
		m.recordsTotal,
		m.requestsTotal,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// OnImport records one import attempt.
func (m *Metrics) OnImport(ev ingest.ImportEvent) {
	result := "ok"
	if ev.Err != "" {
		result = "error"
	}
	m.importsTotal.WithLabelValues(ev.Type, result).Inc()
	m.importDuration.WithLabelValues(ev.Type).Observe(ev.Duration.Seconds())

	if ev.Err != "" {
		return
	}
	m.recordsTotal.WithLabelValues("section").Add(float64(ev.Sections))
	m.recordsTotal.WithLabelValues("issue").Add(float64(ev.Issues))
	m.recordsTotal.WithLabelValues("article").Add(float64(ev.Articles))
	m.recordsTotal.WithLabelValues("author").Add(float64(ev.Authors))
}

// GinMiddleware counts requests by matched route, so ids in paths do not explode cardinality.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

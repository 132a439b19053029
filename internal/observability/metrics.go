package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the Prometheus collectors of the service. Every method is
// safe on a nil receiver so components can run without metrics in tests.
type Metrics struct {
	registry          *prometheus.Registry
	requestCount      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	errorCount        *prometheus.CounterVec
	scanRuns          *prometheus.CounterVec
	scanDuration      prometheus.Histogram
	escalations       *prometheus.CounterVec
	deadlineFallbacks prometheus.Counter
	statusChanges     *prometheus.CounterVec
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_requests_total",
			Help: "HTTP requests by path, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_errors_total",
			Help: "HTTP errors by path, method and error code.",
		}, []string{"path", "method", "code"}),
		scanRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_sla_breach_scans_total",
			Help: "Breach scanner runs by outcome.",
		}, []string{"outcome"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "helpdesk_sla_breach_scan_duration_seconds",
			Help:    "Breach scanner run duration.",
			Buckets: prometheus.DefBuckets,
		}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_sla_escalations_total",
			Help: "Escalation notifications by result (created, skipped, frozen, failed).",
		}, []string{"result"}),
		deadlineFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_sla_deadline_fallbacks_total",
			Help: "Deadlines computed by linear addition because calendar planning failed.",
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_sla_status_changes_total",
			Help: "SLA status writes by kind (created, removed, reached).",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.requestCount,
		m.requestDuration,
		m.errorCount,
		m.scanRuns,
		m.scanDuration,
		m.escalations,
		m.deadlineFallbacks,
		m.statusChanges,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(path, method, code).Inc()
}

// RecordScan records one breach scanner run.
func (m *Metrics) RecordScan(err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.scanRuns.WithLabelValues(outcome).Inc()
	m.scanDuration.Observe(duration.Seconds())
}

// RecordEscalation counts an escalation attempt by result.
func (m *Metrics) RecordEscalation(result string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(result).Inc()
}

// RecordDeadlineFallback counts a linear-hours deadline fallback.
func (m *Metrics) RecordDeadlineFallback() {
	if m == nil {
		return
	}
	m.deadlineFallbacks.Inc()
}

// RecordStatusChange counts SLA status writes.
func (m *Metrics) RecordStatusChange(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.statusChanges.WithLabelValues(kind).Add(float64(n))
}

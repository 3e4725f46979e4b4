// Package telemetry exposes Prometheus metrics for the HTTP layer and the
// patient workflow: request counts and latency, transitions, notification
// deliveries, bulk assignments and audit buffer drops.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

type TelemetryConfig struct {
	ServiceName    string
	Environment    string
	MetricsEnabled *bool // nil = use default (true)
}

func (c *TelemetryConfig) metricsOn() bool {
	if c.MetricsEnabled == nil {
		return true
	}
	return *c.MetricsEnabled
}

func (c *TelemetryConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "bloodlink"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// BoolPtr is a helper for building a TelemetryConfig literal.
func BoolPtr(b bool) *bool {
	return &b
}

// Outcome labels shared by the workflow counters.
const (
	ResultOK        = "ok"
	ResultForbidden = "forbidden"
	ResultInvalid   = "invalid"
	ResultConflict  = "conflict"
	ResultError     = "error"
)

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// TelemetryProvider owns a private registry so several providers (tests)
// can coexist in one process. A nil provider records nothing.
type TelemetryProvider struct {
	cfg      TelemetryConfig
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	bulkAssign    *prometheus.CounterVec
	auditDropped  prometheus.Counter
}

func NewTelemetryProvider(cfg TelemetryConfig) *TelemetryProvider {
	cfg.applyDefaults()
	constLabels := prometheus.Labels{"service": cfg.ServiceName, "env": cfg.Environment}

	tp := &TelemetryProvider{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "Duration of HTTP requests in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests being served",
			ConstLabels: constLabels,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "workflow_transitions_total",
			Help:        "Patient process transitions by target state and outcome",
			ConstLabels: constLabels,
		}, []string{"to", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "notifications_sent_total",
			Help:        "Status notifications delivered to staff inboxes",
			ConstLabels: constLabels,
		}, []string{"result"}),
		bulkAssign: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "responsibility_bulk_assign_items_total",
			Help:        "Per-patient outcomes of bulk responsibility assignment",
			ConstLabels: constLabels,
		}, []string{"result"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "audit_entries_dropped_total",
			Help:        "Audit entries dropped because the buffer was full",
			ConstLabels: constLabels,
		}),
	}

	if cfg.metricsOn() {
		tp.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			tp.httpRequests,
			tp.httpDuration,
			tp.httpInFlight,
			tp.transitions,
			tp.notifications,
			tp.bulkAssign,
			tp.auditDropped,
		)
	}
	return tp
}

// Registry exposes the underlying registry for extra collectors and tests.
func (tp *TelemetryProvider) Registry() *prometheus.Registry {
	return tp.registry
}

// RegisterDBPool publishes connection pool gauges read on every scrape.
func (tp *TelemetryProvider) RegisterDBPool(stats func() (total, idle, acquired int32)) {
	if tp == nil || !tp.cfg.metricsOn() {
		return
	}
	gauge := func(name, help string, pick func(total, idle, acquired int32) int32) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return float64(pick(stats()))
		})
	}
	tp.registry.MustRegister(
		gauge("db_pool_connections_total", "Open database connections",
			func(t, _, _ int32) int32 { return t }),
		gauge("db_pool_connections_idle", "Idle database connections",
			func(_, i, _ int32) int32 { return i }),
		gauge("db_pool_connections_acquired", "Database connections in use",
			func(_, _, a int32) int32 { return a }),
	)
}

// ---------------------------------------------------------------------------
// Domain recorders
// ---------------------------------------------------------------------------

func (tp *TelemetryProvider) RecordTransition(to, result string) {
	if tp == nil {
		return
	}
	tp.transitions.WithLabelValues(to, result).Inc()
}

func (tp *TelemetryProvider) RecordNotifications(sent, failed int) {
	if tp == nil {
		return
	}
	tp.notifications.WithLabelValues(ResultOK).Add(float64(sent))
	tp.notifications.WithLabelValues(ResultError).Add(float64(failed))
}

func (tp *TelemetryProvider) RecordBulkAssign(success, failed int) {
	if tp == nil {
		return
	}
	tp.bulkAssign.WithLabelValues(ResultOK).Add(float64(success))
	tp.bulkAssign.WithLabelValues(ResultError).Add(float64(failed))
}

func (tp *TelemetryProvider) RecordAuditDropped() {
	if tp == nil {
		return
	}
	tp.auditDropped.Inc()
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

// MetricsMiddleware records request count and latency labelled by the
// matched route template, not the raw path, to keep cardinality bounded.
func (tp *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if tp == nil || !tp.cfg.metricsOn() {
				return next(c)
			}
			tp.httpInFlight.Inc()
			start := time.Now()

			err := next(c)

			tp.httpInFlight.Dec()
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			tp.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			tp.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// PrometheusHandler serves the text exposition format.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	h := promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{})
	return echo.WrapHandler(h)
}

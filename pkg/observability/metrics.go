// Package observability exposes the service's Prometheus metrics. A single
// Metrics value is created at startup and shared by the orchestrators and the
// HTTP server; a nil *Metrics is a valid no-op recorder so tests and library
// use need no registry.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry *prometheus.Registry

	turnsTotal     *prometheus.CounterVec
	roundsPerTurn  prometheus.Histogram
	toolExecutions *prometheus.CounterVec
	modelLatency   prometheus.Histogram
	requestsTotal  *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewMetrics builds the metric set on a fresh registry, so the process-wide
// default registry stays untouched.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_turns_total",
			Help: "Completed conversation turns by outcome.",
		}, []string{"stage", "outcome"}),
		roundsPerTurn: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "concierge_rounds_per_turn",
			Help:    "Model rounds consumed per turn.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		toolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_tool_executions_total",
			Help: "Tool executions by tool name and status.",
		}, []string{"tool", "status"}),
		modelLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "concierge_model_request_seconds",
			Help:    "Latency of model endpoint requests.",
			Buckets: prometheus.DefBuckets,
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "concierge_http_request_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.turnsTotal,
		m.roundsPerTurn,
		m.toolExecutions,
		m.modelLatency,
		m.requestsTotal,
		m.requestLatency,
	)
	return m
}

// Registry returns the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// RecordTurn records a finished turn: how many rounds it took and how it
// ended ("reply", "escalated", "exhausted" or "error").
func (m *Metrics) RecordTurn(stage, outcome string, rounds int) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(stage, outcome).Inc()
	m.roundsPerTurn.Observe(float64(rounds))
}

// RecordToolExecution records one tool invocation.
func (m *Metrics) RecordToolExecution(tool string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.toolExecutions.WithLabelValues(tool, status).Inc()
}

// RecordModelCall records the latency of one model endpoint round trip.
func (m *Metrics) RecordModelCall(duration time.Duration) {
	if m == nil {
		return
	}
	m.modelLatency.Observe(duration.Seconds())
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, statusLabel(code)).Inc()
	m.requestLatency.Observe(duration.Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

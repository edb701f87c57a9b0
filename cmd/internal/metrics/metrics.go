// Package metrics owns the Prometheus registry and the counters exported at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "united"

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	reg *prometheus.Registry

	authOutcomes     *prometheus.CounterVec
	rateLimitDenied  *prometheus.CounterVec
	refreshRotations *prometheus.CounterVec
	registrations    *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New builds a registry with process and runtime collectors plus the server counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_requests_total",
			Help:      "Auth endpoint outcomes by endpoint and result.",
		}, []string{"endpoint", "result"}),
		rateLimitDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_denied_total",
			Help:      "Requests rejected by the rate limiter by endpoint class.",
		}, []string{"class"}),
		refreshRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_rotations_total",
			Help:      "Refresh token rotations by result.",
		}, []string{"result"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Successful registrations by owner flag.",
		}, []string{"owner"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and status class.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status_class"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.authOutcomes,
		m.rateLimitDenied,
		m.refreshRotations,
		m.registrations,
		m.httpDuration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// AuthOutcome counts one auth endpoint result ("ok", "invalid", "rate_limited", ...).
func (m *Metrics) AuthOutcome(endpoint, result string) {
	if m == nil {
		return
	}
	m.authOutcomes.WithLabelValues(endpoint, result).Inc()
}

// RateLimited counts one rate-limit denial for class.
func (m *Metrics) RateLimited(class string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.WithLabelValues(class).Inc()
}

// RefreshRotation counts one refresh outcome.
func (m *Metrics) RefreshRotation(result string) {
	if m == nil {
		return
	}
	m.refreshRotations.WithLabelValues(result).Inc()
}

// Registered counts one successful registration.
func (m *Metrics) Registered(owner bool) {
	if m == nil {
		return
	}
	label := "false"
	if owner {
		label = "true"
	}
	m.registrations.WithLabelValues(label).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, statusClass string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, statusClass).Observe(d.Seconds())
}

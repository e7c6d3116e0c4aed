// Package metrics holds the Prometheus collectors shared by parking-api and parking-worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	reg *prometheus.Registry

	operations   *prometheus.CounterVec
	mismatches   prometheus.Counter
	published    *prometheus.CounterVec
	sweeps       *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	rateLimited  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkbox",
			Name:      "operations_total",
			Help:      "Coordinator operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkbox",
			Name:      "document_mismatches_total",
			Help:      "Exits whose document did not match the entry document.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkbox",
			Name:      "events_published_total",
			Help:      "Transaction events handed to Kafka.",
		}, []string{"outcome"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkbox",
			Name:      "sweep_items_total",
			Help:      "Transactions touched by worker sweeps.",
		}, []string{"sweep"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkbox",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"route", "code"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkbox",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-operator rate limiter.",
		}),
	}
	reg.MustRegister(
		m.operations, m.mismatches, m.published, m.sweeps, m.httpRequests, m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Operation(name string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) DocumentMismatch() {
	if m == nil {
		return
	}
	m.mismatches.Inc()
}

func (m *Metrics) Published(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.published.WithLabelValues("error").Inc()
		return
	}
	m.published.WithLabelValues("ok").Inc()
}

func (m *Metrics) Swept(sweep string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweeps.WithLabelValues(sweep).Add(float64(n))
}

func (m *Metrics) HTTPRequest(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Package metrics holds the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loanbook"

type Metrics struct {
	registry *prometheus.Registry

	mutations      *prometheus.CounterVec
	statusChanges  *prometheus.CounterVec
	reconciles     *prometheus.CounterVec
	viewDuration   *prometheus.HistogramVec
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loan_mutations_total",
			Help:      "Loan and event mutations by operation, loan type and result.",
		}, []string{"op", "loan_type", "result"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loan_status_changes_total",
			Help:      "Derived status transitions written back to the store.",
		}, []string{"from", "to"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Status reconcile passes by result.",
		}, []string{"result"}),
		viewDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "view_duration_seconds",
			Help:      "Time spent computing derived schedule views.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"view"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.mutations,
		m.statusChanges,
		m.reconciles,
		m.viewDuration,
		m.requests,
		m.requestLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveMutation(op, loanType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.mutations.WithLabelValues(op, loanType, result).Inc()
}

func (m *Metrics) ObserveStatusChange(from, to string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveReconcile(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reconciles.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveView(view string, d time.Duration) {
	if m == nil {
		return
	}
	m.viewDuration.WithLabelValues(view).Observe(d.Seconds())
}

// ObserveRequest records one HTTP request. route is the matched route
// template, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.requestLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

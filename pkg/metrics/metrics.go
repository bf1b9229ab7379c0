// Package metrics exposes Prometheus metrics for authorization flows and
// token refreshes.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-training/gcal-oauth/pkg/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gcal_oauth"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	flows        *prometheus.CounterVec
	flowDuration prometheus.Histogram
	refreshes    *prometheus.CounterVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newWithRegistry(registry)
}

func newWithRegistry(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		flows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flows_total",
				Help:      "Authorization flows by outcome",
			},
			[]string{"outcome"},
		),
		flowDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flow_duration_seconds",
			Help:      "Time from flow start to completion",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refresh_total",
				Help:      "Silent token refreshes by result",
			},
			[]string{"result"},
		),
	}
	registry.MustRegister(m.flows, m.flowDuration, m.refreshes)
	return m
}

// FlowFinished records a completed or failed flow.
func (m *Metrics) FlowFinished(kind core.ErrorKind, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if kind != core.KindNone {
		outcome = string(kind)
	}
	m.flows.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.flowDuration.Observe(elapsed.Seconds())
	}
}

// RefreshObserved records a refresh notification result.
func (m *Metrics) RefreshObserved(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Package metrics holds internal Prometheus counters/gauges for the
// aggregator. These are never exposed on a separate /metrics endpoint
// (the HTTP surface in spec is closed); instead a Snapshot is folded into
// the existing /status diagnostic body.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns a private registry so Gather can be called without
// exposing the default global registry (which may carry process/Go
// runtime collectors the diagnostic endpoints don't want to leak).
type Metrics struct {
	registry *prometheus.Registry

	toolCalls         *prometheus.CounterVec
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	activeSessions    prometheus.Gauge
	connectedBackends prometheus.Gauge
}

// New creates and registers the metric set.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcp_aggregator",
			Name:      "tool_calls_total",
			Help:      "Total number of tools/call dispatches, by outcome.",
		}, []string{"outcome"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcp_aggregator",
			Name:      "cache_hits_total",
			Help:      "Total number of Result Cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcp_aggregator",
			Name:      "cache_misses_total",
			Help:      "Total number of Result Cache misses.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcp_aggregator",
			Name:      "active_sessions",
			Help:      "Number of workspace sessions currently tracked.",
		}),
		connectedBackends: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mcp_aggregator",
			Name:      "connected_backends",
			Help:      "Number of backend instances currently in the connected state.",
		}),
	}

	registry.MustRegister(m.toolCalls, m.cacheHits, m.cacheMisses, m.activeSessions, m.connectedBackends)
	return m
}

// RecordToolCall increments the outcome-labeled tool-call counter.
func (m *Metrics) RecordToolCall(failed bool) {
	outcome := "success"
	if failed {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup increments the hit or miss counter.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.cacheHits.Inc()
		return
	}
	m.cacheMisses.Inc()
}

// SetActiveSessions records the current session count.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// SetConnectedBackends records the current connected-backend count.
func (m *Metrics) SetConnectedBackends(n int) {
	m.connectedBackends.Set(float64(n))
}

// Snapshot gathers every registered metric family into a flat
// name->value map suitable for embedding in a diagnostic JSON body.
// Only counter/gauge families are expected; any other metric kind is
// skipped rather than panicking, since this registry only ever holds
// counters and gauges by construction.
func (m *Metrics) Snapshot() map[string]float64 {
	families, err := m.registry.Gather()
	if err != nil {
		return nil
	}

	out := make(map[string]float64)
	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			key := fam.GetName()
			if len(metric.GetLabel()) > 0 {
				for _, lbl := range metric.GetLabel() {
					key = fam.GetName() + "{" + lbl.GetName() + "=" + lbl.GetValue() + "}"
				}
			}
			switch {
			case metric.Counter != nil:
				out[key] = metric.Counter.GetValue()
			case metric.Gauge != nil:
				out[key] = metric.Gauge.GetValue()
			}
		}
	}
	return out
}

// Package metrics exposes prometheus instrumentation for the sync engine.
//
// Every method is nil-safe so components can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values for cache operations.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics records dispatches, durable cache operations and hydrations.
type Metrics struct {
	dispatches *prometheus.CounterVec
	cacheOps   *prometheus.CounterVec
	cacheDur   *prometheus.HistogramVec
	hydrations *prometheus.CounterVec
}

// New registers the engine metrics on the provided registerer.
// A nil registerer yields a Metrics that records nothing.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopsync_dispatch_total",
		Help: "Actions applied by the state container.",
	}, []string{"action"})
	cacheOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopsync_cache_ops_total",
		Help: "Durable cache operations by collection, operation and result.",
	}, []string{"collection", "op", "result"})
	cacheDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopsync_cache_op_duration_seconds",
		Help:    "Duration of durable cache operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	hydrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopsync_hydration_total",
		Help: "Domain hydrations by data source.",
	}, []string{"domain", "source"})
	reg.MustRegister(dispatches, cacheOps, cacheDur, hydrations)
	return &Metrics{
		dispatches: dispatches,
		cacheOps:   cacheOps,
		cacheDur:   cacheDur,
		hydrations: hydrations,
	}
}

// IncDispatch counts one applied action.
func (m *Metrics) IncDispatch(action string) {
	if m == nil || m.dispatches == nil {
		return
	}
	m.dispatches.WithLabelValues(normalizeLabel(action)).Inc()
}

// ObserveCacheOp records the outcome and duration of one cache operation.
func (m *Metrics) ObserveCacheOp(collection, op string, err error, d time.Duration) {
	if m == nil || m.cacheOps == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.cacheOps.WithLabelValues(normalizeLabel(collection), normalizeLabel(op), result).Inc()
	m.cacheDur.WithLabelValues(normalizeLabel(op)).Observe(d.Seconds())
}

// IncHydration counts a domain hydrated from source ("remote", "cache", "none").
func (m *Metrics) IncHydration(domain, source string) {
	if m == nil || m.hydrations == nil {
		return
	}
	m.hydrations.WithLabelValues(normalizeLabel(domain), normalizeLabel(source)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

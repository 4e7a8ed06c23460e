// Package metrics exposes Prometheus instrumentation for item collection.
//
// All recording methods are safe to call on a nil [*Metrics], which lets
// components run uninstrumented in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "itemcollector"

// Drop check results recorded by [Metrics.CheckCompleted].
const (
	ResultDrop         = "drop"
	ResultEmpty        = "empty"
	ResultNotConnected = "not_connected"
	ResultUnavailable  = "unavailable"
	ResultError        = "error"
)

// Metrics holds the collectors for drop checks, cycles and controllers.
type Metrics struct {
	DropChecks     *prometheus.CounterVec
	DropsDetected  *prometheus.CounterVec
	Cycles         *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	TicksSkipped   prometheus.Counter
	ActiveSessions prometheus.Gauge
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// New creates and registers item collection metrics on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DropChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drop_checks_total",
			Help:      "Total number of drop checks, by result.",
		}, []string{"result"}),
		DropsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drops_detected_total",
			Help:      "Total number of detected drops, by application.",
		}, []string{"app_id"}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of poll cycles, by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of poll cycles in seconds.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		TicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Ticks skipped because the previous cycle was still running.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions currently idling.",
		}),
	}

	reg.MustRegister(m.DropChecks, m.DropsDetected, m.Cycles, m.CycleDuration, m.TicksSkipped, m.ActiveSessions)
	return m
}

// CheckCompleted records the result of one drop check.
func (m *Metrics) CheckCompleted(result string) {
	if m == nil {
		return
	}
	m.DropChecks.WithLabelValues(result).Inc()
}

// DropDetected records a detected drop for an application.
func (m *Metrics) DropDetected(appID string) {
	if m == nil {
		return
	}
	m.DropsDetected.WithLabelValues(appID).Inc()
}

// CycleCompleted records a finished poll cycle.
func (m *Metrics) CycleCompleted(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// TickSkipped records a tick that found a cycle still running.
func (m *Metrics) TickSkipped() {
	if m == nil {
		return
	}
	m.TicksSkipped.Inc()
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionStopped decrements the active session gauge.
func (m *Metrics) SessionStopped() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

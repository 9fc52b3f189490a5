// Package metrics exposes the core's Prometheus instrumentation: executor
// latency/slippage, governance gate outcomes, scan duration, and DXY refresh
// results, served at /metrics by the API server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every metric the core publishes under one struct so
// callers can pass a single value through the wiring instead of package
// globals.
type Registry struct {
	ExecutionLatency   *prometheus.HistogramVec
	ExecutionSlippage  *prometheus.HistogramVec
	ExecutionsTotal    *prometheus.CounterVec
	GovernanceDecision *prometheus.CounterVec
	ScanDuration       prometheus.Histogram
	ScanSignals        prometheus.Gauge
	DXYRefreshTotal    *prometheus.CounterVec
}

// New registers every metric against reg and returns the Registry handle.
// Pass prometheus.NewRegistry() in production and prometheus.NewPedanticRegistry()
// (or a fresh registry per test) in tests to avoid duplicate-registration panics.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		ExecutionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aurum",
			Subsystem: "execution",
			Name:      "latency_seconds",
			Help:      "Broker round-trip latency for SEND_ORDER attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"symbol", "status"}),

		ExecutionSlippage: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aurum",
			Subsystem: "execution",
			Name:      "slippage_price_units",
			Help:      "Signed slippage between requested and filled price.",
			Buckets:   []float64{-5, -2, -1, -0.5, -0.1, 0, 0.1, 0.5, 1, 2, 5},
		}, []string{"symbol", "side"}),

		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aurum",
			Subsystem: "execution",
			Name:      "events_total",
			Help:      "Execution attempts by terminal status.",
		}, []string{"symbol", "status"}),

		GovernanceDecision: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aurum",
			Subsystem: "governance",
			Name:      "decisions_total",
			Help:      "Pre-trade gate outcomes by allow/deny and reason.",
		}, []string{"allowed", "reason"}),

		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aurum",
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Wall-clock duration of one universe scan.",
			Buckets:   prometheus.DefBuckets,
		}),

		ScanSignals: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "aurum",
			Subsystem: "scanner",
			Name:      "last_scan_signals",
			Help:      "Number of signals persisted by the most recent scan.",
		}),

		DXYRefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aurum",
			Subsystem: "dxy",
			Name:      "refresh_total",
			Help:      "DXY context refresh attempts by outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveExecution records latency, slippage, and a status counter for one
// completed execution attempt. latencySeconds is zero and slippage nil when
// the event carries no measurement (e.g. a simulated attempt).
func (r *Registry) ObserveExecution(symbol, side, status string, latencySeconds float64, slippage *float64) {
	r.ExecutionLatency.WithLabelValues(symbol, status).Observe(latencySeconds)
	r.ExecutionsTotal.WithLabelValues(symbol, status).Inc()
	if slippage != nil {
		r.ExecutionSlippage.WithLabelValues(symbol, side).Observe(*slippage)
	}
}

// ObserveGovernanceDecision records one pre-trade gate outcome.
func (r *Registry) ObserveGovernanceDecision(allowed bool, reason string) {
	if reason == "" {
		reason = "none"
	}
	r.GovernanceDecision.WithLabelValues(boolLabel(allowed), reason).Inc()
}

// ObserveScan records the duration and signal count of one completed scan.
func (r *Registry) ObserveScan(durationSeconds float64, signalCount int) {
	r.ScanDuration.Observe(durationSeconds)
	r.ScanSignals.Set(float64(signalCount))
}

// ObserveDXYRefresh records one DXY refresh attempt outcome ("ok" or "error").
func (r *Registry) ObserveDXYRefresh(outcome string) {
	r.DXYRefreshTotal.WithLabelValues(outcome).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

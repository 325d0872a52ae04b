// Package metrics exposes Prometheus collectors for the tracker and a small
// HTTP server serving /metrics and /healthz.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "bankroll"

// Metrics holds the tracker's collectors on a private registry.
// All methods are safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	betsPlaced    *prometheus.CounterVec
	betsResolved  *prometheus.CounterVec
	betsRejected  *prometheus.CounterVec
	oracleCalls   *prometheus.CounterVec
	oracleLatency *prometheus.HistogramVec
	syncRuns      *prometheus.CounterVec
	commands      *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		betsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bets_placed_total",
			Help:      "Bets placed, by risk strategy.",
		}, []string{"strategy"}),
		betsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bets_resolved_total",
			Help:      "Bets moved out of PENDING, by result and source.",
		}, []string{"result", "source"}),
		betsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bets_rejected_total",
			Help:      "Bet placements refused by the ledger, by reason.",
		}, []string{"reason"}),
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_calls_total",
			Help:      "Recommendation oracle calls, by operation and outcome.",
		}, []string{"op", "outcome"}),
		oracleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_call_duration_seconds",
			Help:      "Recommendation oracle call latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}, []string{"op"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Result synchronisation runs, by trigger.",
		}, []string{"trigger"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_commands_total",
			Help:      "Bot commands handled.",
		}, []string{"command"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.betsPlaced,
		m.betsResolved,
		m.betsRejected,
		m.oracleCalls,
		m.oracleLatency,
		m.syncRuns,
		m.commands,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) BetPlaced(strategy string) {
	if m == nil {
		return
	}
	m.betsPlaced.WithLabelValues(strategy).Inc()
}

// BetResolved counts a settlement; source is "manual" or "oracle".
func (m *Metrics) BetResolved(result, source string) {
	if m == nil {
		return
	}
	m.betsResolved.WithLabelValues(result, source).Inc()
}

func (m *Metrics) BetRejected(reason string) {
	if m == nil {
		return
	}
	m.betsRejected.WithLabelValues(reason).Inc()
}

// OracleCall records one oracle round trip. outcome is one of
// "ok", "error", "panic", "timeout" or "cached".
func (m *Metrics) OracleCall(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.oracleCalls.WithLabelValues(op, outcome).Inc()
	if outcome != "cached" {
		m.oracleLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) SyncRun(trigger string) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(trigger).Inc()
}

func (m *Metrics) Command(name string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name).Inc()
}

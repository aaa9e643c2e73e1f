// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters incremented at the service boundary.
type Metrics struct {
	TradesExecuted     *prometheus.CounterVec
	SignalsRejected    *prometheus.CounterVec
	ExecutionFailures  *prometheus.CounterVec
	OrdersSubmitted    prometheus.Counter
	FillTimeouts       prometheus.Counter
	TradesClosed       prometheus.Counter
	StrategiesPaused   prometheus.Counter
	Discrepancies      *prometheus.CounterVec
	RecoveryRuns       *prometheus.CounterVec
	HeartbeatsRecorded prometheus.Counter
}

// New creates the metric set and registers it with the registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_trades_executed_total",
			Help: "Trades opened from executed signals, by symbol.",
		}, []string{"symbol"}),
		SignalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_signals_rejected_total",
			Help: "Signals rejected by pre-trade validation, by failing check.",
		}, []string{"check"}),
		ExecutionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_execution_failures_total",
			Help: "Signal executions that failed mid-sequence, by step.",
		}, []string{"step"}),
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trading_orders_submitted_total",
			Help: "Orders submitted to the broker.",
		}),
		FillTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trading_fill_timeouts_total",
			Help: "Entry orders that did not fill within the poll window.",
		}),
		TradesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trading_trades_closed_total",
			Help: "Trades closed by protective order fills.",
		}),
		StrategiesPaused: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trading_strategies_paused_total",
			Help: "Strategy pauses triggered by the consecutive-loss limit.",
		}),
		Discrepancies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_position_discrepancies_total",
			Help: "Position discrepancies found by reconciliation, by kind.",
		}, []string{"kind"}),
		RecoveryRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_recovery_runs_total",
			Help: "Recovery runs, by outcome.",
		}, []string{"outcome"}),
		HeartbeatsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trading_heartbeats_recorded_total",
			Help: "Liveness heartbeats written.",
		}),
	}

	reg.MustRegister(
		m.TradesExecuted,
		m.SignalsRejected,
		m.ExecutionFailures,
		m.OrdersSubmitted,
		m.FillTimeouts,
		m.TradesClosed,
		m.StrategiesPaused,
		m.Discrepancies,
		m.RecoveryRuns,
		m.HeartbeatsRecorded,
	)
	return m
}

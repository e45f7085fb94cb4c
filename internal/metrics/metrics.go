// Package metrics holds the Prometheus collectors of the ledger service.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the ledger's collectors.
type Metrics struct {
	settlements    *prometheus.CounterVec
	conflicts      *prometheus.CounterVec
	appliedAmounts *prometheus.HistogramVec
	newDebtAmounts *prometheus.HistogramVec
	rpcDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with registerer.
// A nil registerer means prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	amountBuckets := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

	m := &Metrics{
		settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_settlements_total",
				Help: "Settlement runs by kind and outcome.",
			},
			[]string{"kind", "outcome"}, // outcome: exact | shortfall | surplus | rejected | conflict | failed
		),
		conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_conflict_retries_total",
				Help: "Settlement runs retried after a concurrent ledger update.",
			},
			[]string{"kind"},
		),
		appliedAmounts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_applied_to_old_debts",
				Help:    "Amount of a payment applied to existing debts.",
				Buckets: amountBuckets,
			},
			[]string{"kind"},
		),
		newDebtAmounts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_new_debt",
				Help:    "Amount booked as new debt by a settlement.",
				Buckets: amountBuckets,
			},
			[]string{"kind"},
		),
		rpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_rpc_duration_seconds",
				Help:    "RPC handling time by procedure and code.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"procedure", "code"},
		),
	}

	registerer.MustRegister(
		m.settlements,
		m.conflicts,
		m.appliedAmounts,
		m.newDebtAmounts,
		m.rpcDuration,
	)

	return m
}

// IncSettlement counts one settlement run.
func (m *Metrics) IncSettlement(kind, outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(kind, outcome).Inc()
}

// IncConflictRetry counts one retry after storage reported a conflict.
func (m *Metrics) IncConflictRetry(kind string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(kind).Inc()
}

// ObserveAmounts records the applied and new-debt amounts of a settlement.
// Zero amounts are skipped.
func (m *Metrics) ObserveAmounts(kind string, applied, newDebt float64) {
	if m == nil {
		return
	}
	if applied > 0 {
		m.appliedAmounts.WithLabelValues(kind).Observe(applied)
	}
	if newDebt > 0 {
		m.newDebtAmounts.WithLabelValues(kind).Observe(newDebt)
	}
}

// ObserveRPC records how long one RPC took.
func (m *Metrics) ObserveRPC(procedure, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcDuration.WithLabelValues(procedure, code).Observe(d.Seconds())
}

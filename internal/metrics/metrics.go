// Package metrics registers the Prometheus instruments the orchestration
// core reports into. A single Registry-backed set is constructed at boot
// and injected; tests build their own isolated set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set bundles every instrument the core updates.
type Set struct {
	Registry *prometheus.Registry

	JobsSubmitted   prometheus.Counter
	JobsCompleted   prometheus.Counter
	JobsFailed      prometheus.Counter
	JobsRegenerated prometheus.Counter

	RefundsIssued prometheus.Counter
	// AccountingDefects counts refund inserts that failed after a
	// successful debit: credits lost, manual reconciliation required.
	AccountingDefects prometheus.Counter

	BreakerTransitions *prometheus.CounterVec
	ProviderCalls      *prometheus.CounterVec
	BatchItems         *prometheus.CounterVec
	JobsInFlight       prometheus.Gauge
}

// New builds and registers the instrument set on a fresh registry.
func New() *Set {
	reg := prometheus.NewRegistry()
	s := &Set{
		Registry: reg,
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generation_jobs_submitted_total",
			Help: "Generation sagas accepted past validation.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generation_jobs_completed_total",
			Help: "Jobs that passed quality validation.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generation_jobs_failed_total",
			Help: "Jobs that reached the failed state.",
		}),
		JobsRegenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "generation_jobs_regenerated_total",
			Help: "Auto-regeneration attempts dispatched.",
		}),
		RefundsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_refunds_total",
			Help: "Refund ledger entries written.",
		}),
		AccountingDefects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_accounting_defects_total",
			Help: "Refund inserts that failed after a successful debit.",
		}),
		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breaker_transitions_total",
			Help: "Circuit breaker state transitions.",
		}, []string{"from", "to"}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_calls_total",
			Help: "Outbound provider calls by dependency and outcome.",
		}, []string{"dependency", "outcome"}),
		BatchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_items_total",
			Help: "Batch item outcomes.",
		}, []string{"outcome"}),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "generation_jobs_in_flight",
			Help: "Jobs currently in the processing state.",
		}),
	}
	reg.MustRegister(
		s.JobsSubmitted,
		s.JobsCompleted,
		s.JobsFailed,
		s.JobsRegenerated,
		s.RefundsIssued,
		s.AccountingDefects,
		s.BreakerTransitions,
		s.ProviderCalls,
		s.BatchItems,
		s.JobsInFlight,
	)
	return s
}

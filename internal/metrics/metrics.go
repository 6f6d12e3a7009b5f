// Package metrics exposes Prometheus instrumentation for the scheduling core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	QuotaDebits    *prometheus.CounterVec
	QuotaRejected  prometheus.Counter
	QuotaUsedUnits prometheus.Gauge

	CandidatesProcessed prometheus.Counter
	CandidatesUploaded  prometheus.Counter
	CandidatesFailed    prometheus.Counter
	CandidatesDeferred  prometheus.Counter

	GroupRuns *prometheus.CounterVec
}

// New creates and registers the service collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QuotaDebits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortsync_quota_debits_total",
			Help: "Committed quota debits by operation.",
		}, []string{"operation"}),
		QuotaRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shortsync_quota_rejected_total",
			Help: "Debits rejected because they would exceed the daily budget.",
		}),
		QuotaUsedUnits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shortsync_quota_used_units",
			Help: "Units consumed from today's budget.",
		}),
		CandidatesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shortsync_candidates_processed_total",
			Help: "Candidates evaluated against their channel threshold.",
		}),
		CandidatesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shortsync_candidates_uploaded_total",
			Help: "Candidates handed to the publishing collaborator successfully.",
		}),
		CandidatesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shortsync_candidates_failed_total",
			Help: "Candidates that failed to fetch or publish.",
		}),
		CandidatesDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shortsync_candidates_deferred_total",
			Help: "Candidates deferred to a later cycle after quota exhaustion.",
		}),
		GroupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortsync_group_runs_total",
			Help: "Completed group runs by outcome.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.QuotaDebits,
		m.QuotaRejected,
		m.QuotaUsedUnits,
		m.CandidatesProcessed,
		m.CandidatesUploaded,
		m.CandidatesFailed,
		m.CandidatesDeferred,
		m.GroupRuns,
	)
	return m
}

// NewNop creates collectors bound to a private registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

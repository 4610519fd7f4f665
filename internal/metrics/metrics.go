package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "brainsait_reconciler"

// Metrics holds the engine's collectors. A nil *Metrics is valid and records
// nothing, so components can run without instrumentation in tests.
type Metrics struct {
	reconciliationRuns     *prometheus.CounterVec
	reconciliationRecords  *prometheus.CounterVec
	reconciliationDuration *prometheus.HistogramVec
	fraudAnalyses          *prometheus.CounterVec
	fraudSkippedFamilies   *prometheus.CounterVec
	ingestedRecords        *prometheus.CounterVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		reconciliationRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliation_runs_total",
				Help:      "Reconciliation runs by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		reconciliationRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliation_records_total",
				Help:      "Reconciliation records produced by provider and status",
			},
			[]string{"provider", "status"},
		),
		reconciliationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconciliation_duration_seconds",
				Help:      "Duration of reconciliation runs in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider"},
		),
		fraudAnalyses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fraud_analyses_total",
				Help:      "Fraud analyses by risk level",
			},
			[]string{"risk_level"},
		),
		fraudSkippedFamilies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fraud_rule_families_skipped_total",
				Help:      "Fraud rule families that failed and contributed no indicators",
			},
			[]string{"family"},
		),
		ingestedRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_report_records_total",
				Help:      "Provider report records ingested",
			},
			[]string{"provider"},
		),
	}
}

func (m *Metrics) ObserveReconciliation(provider, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.reconciliationRuns.WithLabelValues(provider, outcome).Inc()
	m.reconciliationDuration.WithLabelValues(provider).Observe(seconds)
}

func (m *Metrics) CountRecord(provider, status string) {
	if m == nil {
		return
	}
	m.reconciliationRecords.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) CountFraudAnalysis(level string) {
	if m == nil {
		return
	}
	m.fraudAnalyses.WithLabelValues(level).Inc()
}

func (m *Metrics) CountSkippedFamily(family string) {
	if m == nil {
		return
	}
	m.fraudSkippedFamilies.WithLabelValues(family).Inc()
}

func (m *Metrics) CountIngested(provider string, n int) {
	if m == nil {
		return
	}
	m.ingestedRecords.WithLabelValues(provider).Add(float64(n))
}

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"aeo-score-service/internal/rules"
)

// Metrics contains the Prometheus collectors exposed by the server.
type Metrics struct {
	evaluationsTotal  *prometheus.CounterVec
	ruleFailuresTotal *prometheus.CounterVec
	evaluationSeconds *prometheus.HistogramVec
	loadedRuleSets    prometheus.Gauge
}

// NewMetrics creates the server's collectors and registers them with reg.
// Each server owns its registry, so tests can spin up servers freely.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		evaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aeo_evaluations_total",
				Help: "Total number of rule set evaluations performed",
			},
			[]string{"rule_set", "tier", "grade"},
		),

		ruleFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aeo_rule_failures_total",
				Help: "Total number of individual rule failures",
			},
			[]string{"rule_set", "rule_id", "severity"},
		),

		evaluationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aeo_evaluation_duration_seconds",
				Help:    "Time spent evaluating one subject against one rule set",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"rule_set"},
		),

		loadedRuleSets: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "aeo_loaded_rule_sets",
				Help: "Number of rule sets currently registered",
			},
		),
	}
}

// ObserveReport records the collectors for one finished evaluation
func (m *Metrics) ObserveReport(report *rules.Report) {
	m.evaluationsTotal.WithLabelValues(report.RuleSet, string(report.Tier), report.Grade).Inc()
	m.evaluationSeconds.WithLabelValues(report.RuleSet).Observe(float64(report.EvaluationTimeMs) / 1000)

	for _, failure := range report.Failures {
		m.ruleFailuresTotal.WithLabelValues(report.RuleSet, failure.RuleID, string(failure.Severity)).Inc()
	}
}

// SetLoadedRuleSets updates the rule-set gauge
func (m *Metrics) SetLoadedRuleSets(n int) {
	m.loadedRuleSets.Set(float64(n))
}

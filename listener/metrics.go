package listener

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/liamcoop/easyrules/rules"
)

// Metrics holds the rule engine collectors.
//
// Metrics:
//   - <ns>_runs_total: Runs started by Fire or Check, by rule set. Check only
//     reaches run listeners, so the rule series count Fire alone.
//   - <ns>_rule_evaluations_total: Conditions evaluated, by rule set, rule and result
//   - <ns>_rule_soft_gate_rejections_total: Rules whose condition held but whose soft gate failed
//   - <ns>_rule_evaluation_errors_total: Conditions that failed with an error
//   - <ns>_rule_executions_total: Action runs, by rule set, rule and outcome
type Metrics struct {
	runsTotal        *prometheus.CounterVec
	evaluationsTotal *prometheus.CounterVec
	gateRejections   *prometheus.CounterVec
	evaluationErrors *prometheus.CounterVec
	executionsTotal  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registerer
func NewMetrics(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of rule set runs started, including dry-run checks",
			},
			[]string{"rule_set"},
		),
		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_evaluations_total",
				Help:      "Total number of rule condition evaluations",
			},
			[]string{"rule_set", "rule", "result"},
		),
		gateRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_soft_gate_rejections_total",
				Help:      "Total number of rules that matched but failed the probabilistic gate",
			},
			[]string{"rule_set", "rule"},
		),
		evaluationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_evaluation_errors_total",
				Help:      "Total number of rule conditions that failed with an error",
			},
			[]string{"rule_set", "rule"},
		),
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_executions_total",
				Help:      "Total number of rule action executions",
			},
			[]string{"rule_set", "rule", "outcome"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.runsTotal,
		m.evaluationsTotal,
		m.gateRejections,
		m.evaluationErrors,
		m.executionsTotal,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("register rule metrics: %w", err)
		}
	}
	return m, nil
}

// RuleListener returns a listener recording rule hooks under the given rule set label
func (m *Metrics) RuleListener(ruleSet string) *MetricsListener {
	return &MetricsListener{metrics: m, ruleSet: ruleSet}
}

// RunListener returns a listener counting runs under the given rule set label
func (m *Metrics) RunListener(ruleSet string) *RunMetricsListener {
	return &RunMetricsListener{metrics: m, ruleSet: ruleSet}
}

// MetricsListener records rule hooks. It never vetoes a rule.
type MetricsListener struct {
	rules.BaseRuleListener
	metrics *Metrics
	ruleSet string
}

var _ rules.RuleListener = (*MetricsListener)(nil)

func (l *MetricsListener) AfterEvaluate(rule rules.Rule, _ *rules.Facts, evaluationResult, randomResult bool) {
	l.metrics.evaluationsTotal.WithLabelValues(l.ruleSet, rule.Name(), strconv.FormatBool(evaluationResult)).Inc()
	if evaluationResult && !randomResult {
		l.metrics.gateRejections.WithLabelValues(l.ruleSet, rule.Name()).Inc()
	}
}

func (l *MetricsListener) OnSuccess(rule rules.Rule, _ *rules.Facts) {
	l.metrics.executionsTotal.WithLabelValues(l.ruleSet, rule.Name(), "success").Inc()
}

func (l *MetricsListener) OnFailure(rule rules.Rule, _ *rules.Facts, _ error) {
	l.metrics.executionsTotal.WithLabelValues(l.ruleSet, rule.Name(), "failure").Inc()
}

func (l *MetricsListener) OnEvaluationError(rule rules.Rule, _ *rules.Facts, _ error) {
	l.metrics.evaluationErrors.WithLabelValues(l.ruleSet, rule.Name()).Inc()
}

// RunMetricsListener counts runs
type RunMetricsListener struct {
	rules.BaseRulesEngineListener
	metrics *Metrics
	ruleSet string
}

var _ rules.RulesEngineListener = (*RunMetricsListener)(nil)

func (l *RunMetricsListener) BeforeEvaluate(*rules.Rules, *rules.Facts) {
	l.metrics.runsTotal.WithLabelValues(l.ruleSet).Inc()
}

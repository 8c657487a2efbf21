// Package listener provides stock rule and run listeners.
package listener

import (
	"log/slog"

	"github.com/liamcoop/easyrules/rules"
)

// Logging writes one structured record per rule hook. It never vetoes a rule.
type Logging struct {
	logger *slog.Logger
}

var _ rules.RuleListener = (*Logging)(nil)

// NewLogging creates a logging listener. A nil logger uses slog.Default().
func NewLogging(logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{logger: logger}
}

func (l *Logging) BeforeEvaluate(rule rules.Rule, _ *rules.Facts) bool {
	l.logger.Debug("Evaluating rule", "rule", rule.Name(), "priority", rule.Priority())
	return true
}

func (l *Logging) AfterEvaluate(rule rules.Rule, _ *rules.Facts, evaluationResult, randomResult bool) {
	l.logger.Debug("Rule evaluated",
		"rule", rule.Name(),
		"evaluationResult", evaluationResult,
		"randomResult", randomResult,
	)
}

func (l *Logging) BeforeExecute(rule rules.Rule, _ *rules.Facts) {
	l.logger.Debug("Executing rule", "rule", rule.Name())
}

func (l *Logging) OnSuccess(rule rules.Rule, _ *rules.Facts) {
	l.logger.Info("Rule applied", "rule", rule.Name())
}

func (l *Logging) OnFailure(rule rules.Rule, _ *rules.Facts, err error) {
	l.logger.Warn("Rule action failed", "rule", rule.Name(), "error", err)
}

func (l *Logging) OnEvaluationError(rule rules.Rule, _ *rules.Facts, err error) {
	l.logger.Warn("Rule condition failed", "rule", rule.Name(), "error", err)
}

// RunLogging logs the start and end of each run
type RunLogging struct {
	logger *slog.Logger
}

var _ rules.RulesEngineListener = (*RunLogging)(nil)

func NewRunLogging(logger *slog.Logger) *RunLogging {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLogging{logger: logger}
}

func (l *RunLogging) BeforeEvaluate(rs *rules.Rules, facts *rules.Facts) {
	l.logger.Info("Run started", "rules", rs.Len(), "facts", facts.Len())
}

func (l *RunLogging) AfterExecute(rs *rules.Rules, facts *rules.Facts) {
	l.logger.Info("Run finished", "rules", rs.Len(), "facts", facts.Len())
}

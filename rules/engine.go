package rules

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// RulesEngine fires rule sets against facts
type RulesEngine interface {
	Parameters() Parameters
	Fire(rules *Rules, facts *Facts) bool
	Check(rules *Rules, facts *Facts) (map[RuleKey]bool, error)
}

// Engine is the default RulesEngine. It walks the rule set once, in
// priority order, evaluating each condition and executing the actions of
// rules whose condition holds and whose soft gate passes.
//
// Runs are synchronous. An Engine may be shared by goroutines as long as
// listeners are not registered while it runs, its RandomSource is safe for
// concurrent use and each run gets its own Facts.
type Engine struct {
	parameters           Parameters
	ruleListeners        ruleListeners
	rulesEngineListeners rulesEngineListeners
	random               RandomSource
	logger               *slog.Logger
}

var _ RulesEngine = (*Engine)(nil)

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used for run diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(en *Engine) {
		if logger != nil {
			en.logger = logger
		}
	}
}

// WithRandomSource replaces the source used by the soft gate
func WithRandomSource(src RandomSource) Option {
	return func(en *Engine) {
		if src != nil {
			en.random = src
		}
	}
}

func WithRuleListeners(listeners ...RuleListener) Option {
	return func(en *Engine) { en.RegisterRuleListeners(listeners...) }
}

func WithRulesEngineListeners(listeners ...RulesEngineListener) Option {
	return func(en *Engine) { en.RegisterRulesEngineListeners(listeners...) }
}

// NewEngine creates an engine with the given parameters
func NewEngine(parameters Parameters, opts ...Option) *Engine {
	en := &Engine{
		parameters: parameters,
		random:     DefaultRandomSource,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(en)
	}
	return en
}

// NewDefaultEngine creates an engine with DefaultParameters
func NewDefaultEngine(opts ...Option) *Engine {
	return NewEngine(DefaultParameters(), opts...)
}

func (en *Engine) Parameters() Parameters {
	return en.parameters
}

// RegisterRuleListener appends a rule listener. Listeners are called in
// registration order.
func (en *Engine) RegisterRuleListener(l RuleListener) {
	if l != nil {
		en.ruleListeners = append(en.ruleListeners, l)
	}
}

func (en *Engine) RegisterRuleListeners(listeners ...RuleListener) {
	for _, l := range listeners {
		en.RegisterRuleListener(l)
	}
}

// RegisterRulesEngineListener appends a run listener
func (en *Engine) RegisterRulesEngineListener(l RulesEngineListener) {
	if l != nil {
		en.rulesEngineListeners = append(en.rulesEngineListeners, l)
	}
}

func (en *Engine) RegisterRulesEngineListeners(listeners ...RulesEngineListener) {
	for _, l := range listeners {
		en.RegisterRulesEngineListener(l)
	}
}

func (en *Engine) RuleListeners() []RuleListener {
	return slices.Clone(en.ruleListeners)
}

func (en *Engine) RulesEngineListeners() []RulesEngineListener {
	return slices.Clone(en.rulesEngineListeners)
}

// Fire evaluates rules against facts and executes the actions of the rules
// that apply. Condition and action errors are reported to rule listeners and
// never returned.
//
// The result is true only when the rule set is empty or when
// SkipOnFirstAppliedRule ended the run after a successful rule. A complete
// pass returns false even if rules were applied along the way.
//
// When SkipOnFirstNonTriggeredRule is set, a condition error is logged as
// skipping the remaining rules but the run continues with the next rule.
// That mismatch is long-standing behavior kept for compatibility.
func (en *Engine) Fire(rules *Rules, facts *Facts) bool {
	en.rulesEngineListeners.notify(func(l RulesEngineListener) { l.BeforeEvaluate(rules, facts) })
	result := en.doFire(rules, facts)
	en.rulesEngineListeners.notify(func(l RulesEngineListener) { l.AfterExecute(rules, facts) })
	en.logger.Debug("Fire result", "result", result)
	return result
}

func (en *Engine) doFire(rules *Rules, facts *Facts) bool {
	if rules == nil || rules.IsEmpty() {
		en.logger.Warn("No rules registered! Nothing to apply")
		return true
	}
	en.logRun(rules, facts)

	for rule := range rules.All() {
		name := rule.Name()
		priority := rule.Priority()
		if priority > en.parameters.PriorityThreshold {
			en.logger.Warn("Rule priority threshold exceeded, next rules will be skipped",
				"priorityThreshold", en.parameters.PriorityThreshold,
				"rule", name,
				"priority", priority,
			)
			break
		}

		if !en.ruleListeners.allow(rule, facts) {
			en.logger.Debug("Rule has been skipped before being evaluated", "rule", name)
			continue
		}

		evaluationResult, err := rule.Evaluate(facts)
		if err != nil {
			evaluationResult = false
			en.logger.Error("Rule evaluated with error", "rule", name, "error", err)
			en.ruleListeners.notify(func(l RuleListener) { l.OnEvaluationError(rule, facts, err) })
			if en.parameters.SkipOnFirstNonTriggeredRule {
				en.logger.Warn("Next rules will be skipped since parameter skipOnFirstNonTriggeredRule is set", "rule", name)
				continue
			}
		}

		randomResult := false
		if evaluationResult {
			var draw float64
			randomResult, draw = softGate(rule.Threshold(), MaxThreshold, en.random)
			en.logger.Info("Rule has been evaluated",
				"rule", name,
				"evaluationResult", evaluationResult,
				"randomResult", randomResult,
				"draw", draw,
				"threshold", ClampThreshold(rule.Threshold(), MaxThreshold),
			)
		}
		en.ruleListeners.notify(func(l RuleListener) { l.AfterEvaluate(rule, facts, evaluationResult, randomResult) })

		if !evaluationResult || !randomResult {
			en.logger.Info("Rule has not been applied, actions will not be executed", "rule", name)
			continue
		}

		en.ruleListeners.notify(func(l RuleListener) { l.BeforeExecute(rule, facts) })
		if err := rule.Execute(facts); err != nil {
			en.logger.Error("Rule performed action with error", "rule", name, "error", err)
			en.ruleListeners.notify(func(l RuleListener) { l.OnFailure(rule, facts, err) })
			if en.parameters.SkipOnFirstFailedRule {
				en.logger.Debug("Moving to next rule since parameter skipOnFirstFailedRule is set", "rule", name)
			}
			continue
		}

		en.logger.Debug("Rule performed action successfully", "rule", name)
		en.ruleListeners.notify(func(l RuleListener) { l.OnSuccess(rule, facts) })
		if en.parameters.SkipOnFirstAppliedRule {
			en.logger.Debug("Next rules will be skipped since parameter skipOnFirstAppliedRule is set", "rule", name)
			return true
		}
	}
	return false
}

// Check evaluates the conditions of rules that pass the listener gate,
// without priority cutoff, soft gate or actions. Rules refused by a
// listener are absent from the result. The first condition error ends the
// check and is returned; the run-level after hook is not called then.
func (en *Engine) Check(rules *Rules, facts *Facts) (map[RuleKey]bool, error) {
	en.rulesEngineListeners.notify(func(l RulesEngineListener) { l.BeforeEvaluate(rules, facts) })
	result, err := en.doCheck(rules, facts)
	if err != nil {
		return nil, err
	}
	en.rulesEngineListeners.notify(func(l RulesEngineListener) { l.AfterExecute(rules, facts) })
	en.logger.Debug("Check result", "result", result)
	return result, nil
}

func (en *Engine) doCheck(rules *Rules, facts *Facts) (map[RuleKey]bool, error) {
	en.logger.Debug("Checking rules")
	result := make(map[RuleKey]bool)
	if rules == nil {
		return result, nil
	}
	for rule := range rules.All() {
		if !en.ruleListeners.allow(rule, facts) {
			continue
		}
		ok, err := rule.Evaluate(facts)
		if err != nil {
			return nil, fmt.Errorf("check rule %q: %w", rule.Name(), err)
		}
		result[KeyOf(rule)] = ok
	}
	return result, nil
}

func (en *Engine) logRun(rules *Rules, facts *Facts) {
	if !en.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	en.logger.Debug("Engine parameters", "parameters", en.parameters.String())
	en.logger.Debug("Registered rules:")
	for rule := range rules.All() {
		en.logger.Debug("Rule",
			"name", rule.Name(),
			"description", rule.Description(),
			"priority", rule.Priority(),
			"threshold", rule.Threshold(),
		)
	}
	en.logger.Debug("Known facts:")
	for name, value := range facts.All() {
		en.logger.Debug("Fact", "name", name, "value", value)
	}
	en.logger.Debug("Rules evaluation started")
}

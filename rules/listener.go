package rules

// RuleListener observes, and may veto, each rule of a run.
//
// Hooks are trusted code: they return no errors, and a panicking hook
// aborts the run.
type RuleListener interface {
	// BeforeEvaluate is the gate. Returning false skips the rule and
	// suppresses every later hook for it.
	BeforeEvaluate(rule Rule, facts *Facts) bool
	AfterEvaluate(rule Rule, facts *Facts, evaluationResult, randomResult bool)
	BeforeExecute(rule Rule, facts *Facts)
	OnSuccess(rule Rule, facts *Facts)
	OnFailure(rule Rule, facts *Facts, err error)
	OnEvaluationError(rule Rule, facts *Facts, err error)
}

// RulesEngineListener observes whole runs
type RulesEngineListener interface {
	BeforeEvaluate(rules *Rules, facts *Facts)
	AfterExecute(rules *Rules, facts *Facts)
}

// BaseRuleListener is a no-op RuleListener meant for embedding
type BaseRuleListener struct{}

func (BaseRuleListener) BeforeEvaluate(Rule, *Facts) bool       { return true }
func (BaseRuleListener) AfterEvaluate(Rule, *Facts, bool, bool) {}
func (BaseRuleListener) BeforeExecute(Rule, *Facts)             {}
func (BaseRuleListener) OnSuccess(Rule, *Facts)                 {}
func (BaseRuleListener) OnFailure(Rule, *Facts, error)          {}
func (BaseRuleListener) OnEvaluationError(Rule, *Facts, error)  {}

// BaseRulesEngineListener is a no-op RulesEngineListener meant for embedding
type BaseRulesEngineListener struct{}

func (BaseRulesEngineListener) BeforeEvaluate(*Rules, *Facts) {}
func (BaseRulesEngineListener) AfterExecute(*Rules, *Facts)   {}

type ruleListeners []RuleListener

// allow asks each listener in order and stops at the first refusal
func (ls ruleListeners) allow(rule Rule, facts *Facts) bool {
	for _, l := range ls {
		if !l.BeforeEvaluate(rule, facts) {
			return false
		}
	}
	return true
}

// notify calls fn on every listener in order
func (ls ruleListeners) notify(fn func(RuleListener)) {
	for _, l := range ls {
		fn(l)
	}
}

type rulesEngineListeners []RulesEngineListener

func (ls rulesEngineListeners) notify(fn func(RulesEngineListener)) {
	for _, l := range ls {
		fn(l)
	}
}

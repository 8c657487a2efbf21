package rules

import (
	"fmt"
	"math"
)

const (
	// MaxThreshold is the upper bound of a rule threshold. A rule with this
	// threshold always passes the soft gate once its condition holds.
	MaxThreshold = 1.0

	// DefaultPriority is the priority of rules that do not set one
	DefaultPriority = math.MaxInt32 - 1

	DefaultName        = "rule"
	DefaultDescription = "description"
)

// Condition decides whether a rule applies to the current facts
type Condition interface {
	Evaluate(facts *Facts) (bool, error)
}

// Action is one step performed when a rule fires. Actions may mutate facts.
type Action interface {
	Execute(facts *Facts) error
}

// ConditionFunc adapts a function to Condition
type ConditionFunc func(facts *Facts) (bool, error)

func (fn ConditionFunc) Evaluate(facts *Facts) (bool, error) { return fn(facts) }

// ActionFunc adapts a function to Action
type ActionFunc func(facts *Facts) error

func (fn ActionFunc) Execute(facts *Facts) error { return fn(facts) }

var (
	// True is a condition that always holds
	True Condition = ConditionFunc(func(*Facts) (bool, error) { return true, nil })

	// False is a condition that never holds
	False Condition = ConditionFunc(func(*Facts) (bool, error) { return false, nil })
)

// Rule is a prioritized decision unit: a condition, a firing threshold and
// an ordered list of actions.
type Rule interface {
	Name() string
	Description() string
	Priority() int
	Threshold() float64
	Evaluate(facts *Facts) (bool, error)
	Execute(facts *Facts) error
}

// RuleKey identifies a rule inside a Rules set
type RuleKey struct {
	Name     string
	Priority int
}

func (k RuleKey) String() string {
	return fmt.Sprintf("%s@%d", k.Name, k.Priority)
}

// KeyOf returns the identity of a rule
func KeyOf(r Rule) RuleKey {
	return RuleKey{Name: r.Name(), Priority: r.Priority()}
}

// compareRules orders by priority, then name
func compareRules(a, b Rule) int {
	if a.Priority() != b.Priority() {
		if a.Priority() < b.Priority() {
			return -1
		}
		return 1
	}
	switch {
	case a.Name() < b.Name():
		return -1
	case a.Name() > b.Name():
		return 1
	}
	return 0
}

// BasicRule is the stock Rule implementation
type BasicRule struct {
	name        string
	description string
	priority    int
	threshold   float64
	condition   Condition
	actions     []Action
}

// RuleOption configures a BasicRule
type RuleOption func(*BasicRule)

// NewRule creates a rule with the given name. Without options the rule has
// the default priority, the maximum threshold and a condition that never holds.
func NewRule(name string, opts ...RuleOption) *BasicRule {
	if name == "" {
		name = DefaultName
	}
	r := &BasicRule{
		name:        name,
		description: DefaultDescription,
		priority:    DefaultPriority,
		threshold:   MaxThreshold,
		condition:   False,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func WithDescription(description string) RuleOption {
	return func(r *BasicRule) { r.description = description }
}

func WithPriority(priority int) RuleOption {
	return func(r *BasicRule) { r.priority = priority }
}

// WithThreshold sets the soft gate threshold. Out-of-range values are kept
// as given and clamped when the rule fires.
func WithThreshold(threshold float64) RuleOption {
	return func(r *BasicRule) { r.threshold = threshold }
}

// When sets the rule condition
func When(condition Condition) RuleOption {
	return func(r *BasicRule) {
		if condition != nil {
			r.condition = condition
		}
	}
}

// Then appends actions to the rule
func Then(actions ...Action) RuleOption {
	return func(r *BasicRule) { r.actions = append(r.actions, actions...) }
}

func (r *BasicRule) Name() string        { return r.name }
func (r *BasicRule) Description() string { return r.description }
func (r *BasicRule) Priority() int       { return r.priority }
func (r *BasicRule) Threshold() float64  { return r.threshold }

// Condition returns the rule condition
func (r *BasicRule) Condition() Condition { return r.condition }

// Actions returns a copy of the rule actions
func (r *BasicRule) Actions() []Action {
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}

func (r *BasicRule) Evaluate(facts *Facts) (bool, error) {
	return r.condition.Evaluate(facts)
}

// Execute runs the actions in order and stops at the first failure
func (r *BasicRule) Execute(facts *Facts) error {
	for i, action := range r.actions {
		if err := action.Execute(facts); err != nil {
			return fmt.Errorf("action %d of rule %q: %w", i, r.name, err)
		}
	}
	return nil
}

func (r *BasicRule) String() string {
	return fmt.Sprintf("Rule{name=%q, description=%q, priority=%d, threshold=%g, actions=%d}",
		r.name, r.description, r.priority, r.threshold, len(r.actions))
}

package rules

import (
	"fmt"
	"math"
)

// Parameters controls how an Engine walks a rule set. They are read-only
// for the duration of a run.
type Parameters struct {
	// PriorityThreshold is the inclusive upper bound on rule priority.
	// The first rule above it ends the run.
	PriorityThreshold int `json:"priorityThreshold" yaml:"priorityThreshold"`

	// SkipOnFirstAppliedRule ends the run, returning true, as soon as one
	// rule executes its actions successfully.
	SkipOnFirstAppliedRule bool `json:"skipOnFirstAppliedRule" yaml:"skipOnFirstAppliedRule"`

	// SkipOnFirstNonTriggeredRule is consulted when a condition fails with
	// an error. The run logs that remaining rules will be skipped but moves
	// on to the next rule anyway; see Engine.Fire.
	SkipOnFirstNonTriggeredRule bool `json:"skipOnFirstNonTriggeredRule" yaml:"skipOnFirstNonTriggeredRule"`

	// SkipOnFirstFailedRule continues with the next rule after an action
	// failure. Failures do not stop the run when it is unset either.
	SkipOnFirstFailedRule bool `json:"skipOnFirstFailedRule" yaml:"skipOnFirstFailedRule"`
}

// DefaultParameters considers every rule and never skips
func DefaultParameters() Parameters {
	return Parameters{PriorityThreshold: math.MaxInt}
}

func (p Parameters) String() string {
	return fmt.Sprintf("Engine parameters{priorityThreshold=%d, skipOnFirstAppliedRule=%t, skipOnFirstNonTriggeredRule=%t, skipOnFirstFailedRule=%t}",
		p.PriorityThreshold, p.SkipOnFirstAppliedRule, p.SkipOnFirstNonTriggeredRule, p.SkipOnFirstFailedRule)
}

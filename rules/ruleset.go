package rules

import (
	"iter"
	"slices"
)

// Rules is an ordered set of rules. Iteration yields rules by ascending
// priority, ties broken by name. Two rules with the same name and priority
// are the same rule: registering the second replaces the first.
//
// Rules is not safe for concurrent mutation. Concurrent reads are fine.
type Rules struct {
	rules []Rule
}

// NewRules creates a rule set holding the given rules
func NewRules(rules ...Rule) *Rules {
	rs := &Rules{}
	rs.Register(rules...)
	return rs
}

// Register adds rules to the set. A rule whose key matches a registered rule
// replaces it. Nil rules are ignored.
func (rs *Rules) Register(rules ...Rule) {
	for _, r := range rules {
		if r == nil {
			continue
		}
		i, found := slices.BinarySearchFunc(rs.rules, r, compareRules)
		if found {
			rs.rules[i] = r
			continue
		}
		rs.rules = slices.Insert(rs.rules, i, r)
	}
}

// Unregister removes rules matching the keys of the given rules
func (rs *Rules) Unregister(rules ...Rule) {
	for _, r := range rules {
		if r == nil {
			continue
		}
		if i, found := slices.BinarySearchFunc(rs.rules, r, compareRules); found {
			rs.rules = slices.Delete(rs.rules, i, i+1)
		}
	}
}

// UnregisterByName removes every rule with the given name
func (rs *Rules) UnregisterByName(name string) {
	rs.rules = slices.DeleteFunc(rs.rules, func(r Rule) bool {
		return r.Name() == name
	})
}

// Get returns the rule with the given key
func (rs *Rules) Get(key RuleKey) (Rule, bool) {
	for _, r := range rs.rules {
		if KeyOf(r) == key {
			return r, true
		}
	}
	return nil, false
}

func (rs *Rules) Clear() {
	rs.rules = nil
}

func (rs *Rules) Len() int {
	return len(rs.rules)
}

func (rs *Rules) IsEmpty() bool {
	return len(rs.rules) == 0
}

// All iterates rules in firing order
func (rs *Rules) All() iter.Seq[Rule] {
	return slices.Values(rs.rules)
}

// List returns the rules in firing order
func (rs *Rules) List() []Rule {
	return slices.Clone(rs.rules)
}

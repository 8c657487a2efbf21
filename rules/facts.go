package rules

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
)

// Fact is a single named value held in Facts
type Fact struct {
	Name  string
	Value any
}

func (f Fact) String() string {
	return fmt.Sprintf("Fact{name=%s, value=%v}", f.Name, f.Value)
}

// Facts is the mutable working memory passed to conditions, actions and listeners.
// It is not safe for concurrent use; callers serialize runs sharing one Facts.
// The zero value is an empty fact set ready to use.
type Facts struct {
	values map[string]any
}

// NewFacts creates an empty fact set
func NewFacts() *Facts {
	return &Facts{values: make(map[string]any)}
}

// FactsFromMap creates a fact set holding a shallow copy of m
func FactsFromMap(m map[string]any) *Facts {
	f := NewFacts()
	for name, value := range m {
		f.values[name] = value
	}
	return f
}

// Put adds or replaces the fact with the given name
func (f *Facts) Put(name string, value any) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("fact name must not be blank")
	}
	if f.values == nil {
		f.values = make(map[string]any)
	}
	f.values[name] = value
	return nil
}

// Get returns the value of a fact and whether it exists
func (f *Facts) Get(name string) (any, bool) {
	v, ok := f.values[name]
	return v, ok
}

// Remove deletes a fact. Removing a missing fact is a no-op.
func (f *Facts) Remove(name string) {
	delete(f.values, name)
}

// Len returns the number of facts
func (f *Facts) Len() int {
	return len(f.values)
}

// All iterates facts in name order
func (f *Facts) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, name := range slices.Sorted(maps.Keys(f.values)) {
			if !yield(name, f.values[name]) {
				return
			}
		}
	}
}

// AsMap returns a copy of the facts, suitable as an expression activation.
// Nested values are shared with the fact set, so mutating them mutates the facts.
func (f *Facts) AsMap() map[string]any {
	return maps.Clone(f.values)
}

func (f *Facts) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	first := true
	for name, value := range f.All() {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(Fact{Name: name, Value: value}.String())
	}
	sb.WriteString("]")
	return sb.String()
}

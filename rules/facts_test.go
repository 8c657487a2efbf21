package rules

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFactsPutGetRemove(t *testing.T) {
	facts := NewFacts()

	if err := facts.Put("rain", true); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := facts.Put("temperature", 21); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	v, ok := facts.Get("rain")
	if !ok || v != true {
		t.Errorf("Get(rain) = %v, %v; want true, true", v, ok)
	}

	facts.Remove("rain")
	if _, ok := facts.Get("rain"); ok {
		t.Error("rain should have been removed")
	}
	facts.Remove("missing")

	if facts.Len() != 1 {
		t.Errorf("Len() = %d, want 1", facts.Len())
	}
}

func TestFactsZeroValue(t *testing.T) {
	var facts Facts
	if facts.Len() != 0 || facts.String() != "[]" {
		t.Errorf("zero Facts = %s (len %d), want empty", facts.String(), facts.Len())
	}
	if _, ok := facts.Get("rain"); ok {
		t.Error("zero Facts should hold nothing")
	}
	facts.Remove("rain")

	if err := facts.Put("rain", true); err != nil {
		t.Fatalf("Put() on zero Facts failed: %v", err)
	}
	if v, ok := facts.Get("rain"); !ok || v != true {
		t.Errorf("Get(rain) = %v, %v; want true, true", v, ok)
	}
	if diff := cmp.Diff(map[string]any{"rain": true}, facts.AsMap()); diff != "" {
		t.Errorf("AsMap() mismatch (-want +got):\n%s", diff)
	}
}

func TestFactsPutRejectsBlankName(t *testing.T) {
	facts := NewFacts()
	for _, name := range []string{"", "   "} {
		if err := facts.Put(name, 1); err == nil {
			t.Errorf("Put(%q) should fail", name)
		}
	}
}

func TestFactsIterationIsSortedByName(t *testing.T) {
	facts := FactsFromMap(map[string]any{"c": 3, "a": 1, "b": 2})

	var names []string
	for name := range facts.All() {
		names = append(names, name)
	}

	if diff := cmp.Diff([]string{"a", "b", "c"}, names); diff != "" {
		t.Errorf("iteration order mismatch (-want +got):\n%s", diff)
	}
}

func TestFactsAsMapIsACopy(t *testing.T) {
	facts := FactsFromMap(map[string]any{"a": 1})
	m := facts.AsMap()
	m["b"] = 2

	if _, ok := facts.Get("b"); ok {
		t.Error("mutating AsMap() result should not add facts")
	}
}

func TestFactsString(t *testing.T) {
	facts := FactsFromMap(map[string]any{"b": 2, "a": 1})
	want := "[Fact{name=a, value=1}, Fact{name=b, value=2}]"
	if got := facts.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

package ruledef

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/liamcoop/easyrules/rules"
)

const yamlRules = `
name: rule1
description: bulk removal
priority: 1
threshold: 0.95
condition: "event.RemoveCount > 2"
actions:
  - "discount = 10"
---
name: rule2
priority: 2
condition: "event.SkuCount >= 4 && event.TotalPrice < 10"
`

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestReadYAMLMultiDocument(t *testing.T) {
	defs, err := ReadYAML(strings.NewReader(yamlRules))
	if err != nil {
		t.Fatalf("ReadYAML() failed: %v", err)
	}

	want := []Definition{
		{
			Name:        "rule1",
			Description: "bulk removal",
			Priority:    intPtr(1),
			Threshold:   floatPtr(0.95),
			Condition:   "event.RemoveCount > 2",
			Actions:     []string{"discount = 10"},
		},
		{
			Name:      "rule2",
			Priority:  intPtr(2),
			Condition: "event.SkuCount >= 4 && event.TotalPrice < 10",
		},
	}
	if diff := cmp.Diff(want, defs); diff != "" {
		t.Errorf("definitions mismatch (-want +got):\n%s", diff)
	}
}

func TestReadYAMLSequenceDocument(t *testing.T) {
	input := `
- name: a
  condition: "true"
- name: b
  condition: "false"
`
	defs, err := ReadYAML(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadYAML() failed: %v", err)
	}
	if len(defs) != 2 || defs[0].Name != "a" || defs[1].Name != "b" {
		t.Errorf("ReadYAML() = %+v, want a and b", defs)
	}
}

func TestReadYAMLInvalid(t *testing.T) {
	if _, err := ReadYAML(strings.NewReader("name: [unclosed")); err == nil {
		t.Error("ReadYAML() should fail on malformed input")
	}
}

func TestReadJSON(t *testing.T) {
	input := `[
		{"name": "rule1", "priority": 1, "condition": "event.RemoveCount > 2", "actions": ["discount = 10"]},
		{"name": "rule2", "threshold": 0.5, "condition": "true"}
	]`
	defs, err := ReadJSON(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadJSON() failed: %v", err)
	}

	want := []Definition{
		{Name: "rule1", Priority: intPtr(1), Condition: "event.RemoveCount > 2", Actions: []string{"discount = 10"}},
		{Name: "rule2", Threshold: floatPtr(0.5), Condition: "true"},
	}
	if diff := cmp.Diff(want, defs); diff != "" {
		t.Errorf("definitions mismatch (-want +got):\n%s", diff)
	}
}

func TestReadJSONEmpty(t *testing.T) {
	defs, err := ReadJSON(strings.NewReader("  "))
	if err != nil || defs != nil {
		t.Errorf("ReadJSON(blank) = %v, %v; want nil, nil", defs, err)
	}
}

func TestFactoryCreateRulesCEL(t *testing.T) {
	compiler, err := CompilerFor(LanguageCEL, "event", "discount")
	if err != nil {
		t.Fatalf("CompilerFor() failed: %v", err)
	}
	factory := NewFactory(nil, compiler)

	rs, err := factory.CreateRules(strings.NewReader(yamlRules))
	if err != nil {
		t.Fatalf("CreateRules() failed: %v", err)
	}

	list := rs.List()
	if len(list) != 2 {
		t.Fatalf("CreateRules() produced %d rules, want 2", len(list))
	}
	if list[0].Name() != "rule1" || list[0].Threshold() != 0.95 || list[0].Description() != "bulk removal" {
		t.Errorf("rule1 = %v", list[0])
	}
	if list[1].Threshold() != rules.MaxThreshold {
		t.Errorf("rule2 threshold = %v, want default %v", list[1].Threshold(), rules.MaxThreshold)
	}
	if list[1].Description() != rules.DefaultDescription {
		t.Errorf("rule2 description = %q, want default", list[1].Description())
	}

	facts := rules.FactsFromMap(map[string]any{
		"event": map[string]any{"RemoveCount": 12, "SkuCount": 30, "TotalPrice": 8},
	})
	engine := rules.NewEngine(rules.DefaultParameters(), rules.WithRandomSource(zeroSource{}))
	result, err := engine.Check(rs, facts)
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	want := map[rules.RuleKey]bool{{Name: "rule1", Priority: 1}: true, {Name: "rule2", Priority: 2}: true}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("Check() mismatch (-want +got):\n%s", diff)
	}
}

type zeroSource struct{}

func (zeroSource) Float64() float64 { return 0 }

func TestFactoryCreateRulesLua(t *testing.T) {
	compiler, err := CompilerFor(LanguageLua)
	if err != nil {
		t.Fatalf("CompilerFor() failed: %v", err)
	}
	factory := NewFactory(JSONReader, compiler)

	rs, err := factory.CreateRules(strings.NewReader(`[
		{"name": "adult", "priority": 1, "condition": "person.age >= 18", "actions": ["person.adult = true"]}
	]`))
	if err != nil {
		t.Fatalf("CreateRules() failed: %v", err)
	}

	facts := rules.FactsFromMap(map[string]any{"person": map[string]any{"age": 20}})
	rules.NewEngine(rules.DefaultParameters(), rules.WithRandomSource(zeroSource{})).Fire(rs, facts)

	person, _ := facts.Get("person")
	if person.(map[string]any)["adult"] != true {
		t.Errorf("person = %v, want adult=true", person)
	}
}

func TestFactoryErrors(t *testing.T) {
	compiler, _ := CompilerFor(LanguageCEL, "event")
	factory := NewFactory(YAMLReader, compiler)

	testCases := []struct {
		name string
		def  Definition
	}{
		{"Missing name", Definition{Condition: "true"}},
		{"Missing condition", Definition{Name: "r"}},
		{"Bad condition", Definition{Name: "r", Condition: "event.RemoveCount >"}},
		{"Bad action", Definition{Name: "r", Condition: "true", Actions: []string{"event.RemoveCount > 1"}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := factory.CreateRule(tc.def); err == nil {
				t.Errorf("CreateRule(%+v) should fail", tc.def)
			}
		})
	}
}

func TestCompilerForUnknownLanguage(t *testing.T) {
	_, err := CompilerFor("groovy")
	if !errors.Is(err, ErrUnknownLanguage) {
		t.Errorf("CompilerFor(groovy) error = %v, want ErrUnknownLanguage", err)
	}
}

func TestReaderForPath(t *testing.T) {
	if ReaderForPath("rules.JSON") != JSONReader {
		t.Error("rules.JSON should use the JSON reader")
	}
	if ReaderForPath("rules.yml") != YAMLReader {
		t.Error("rules.yml should use the YAML reader")
	}
}

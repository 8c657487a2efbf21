package config

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/liamcoop/easyrules/rules"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.Debounce != 250*time.Millisecond {
		t.Errorf("Debounce = %s, want 250ms", cfg.Debounce)
	}
	if diff := cmp.Diff(rules.DefaultParameters(), cfg.Parameters()); diff != "" {
		t.Errorf("Parameters() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("EASYRULES_RULES_DIR", "/etc/rules")
	t.Setenv("EASYRULES_WATCH", "true")
	t.Setenv("EASYRULES_PRIORITY_THRESHOLD", "10")
	t.Setenv("EASYRULES_SKIP_ON_FIRST_APPLIED_RULE", "true")
	t.Setenv("EASYRULES_SKIP_ON_FIRST_FAILED_RULE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	want := rules.Parameters{
		PriorityThreshold:      10,
		SkipOnFirstAppliedRule: true,
		SkipOnFirstFailedRule:  true,
	}
	if diff := cmp.Diff(want, cfg.Parameters()); diff != "" {
		t.Errorf("Parameters() mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Watch || cfg.RulesDir != "/etc/rules" {
		t.Errorf("unexpected watch config: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"Bad integer", map[string]string{"EASYRULES_PRIORITY_THRESHOLD": "high"}, "parse env:"},
		{"Watch without dir", map[string]string{"EASYRULES_WATCH": "true"}, "requires EASYRULES_RULES_DIR"},
		{"Zero debounce", map[string]string{"EASYRULES_WATCH_DEBOUNCE": "0s"}, "must be positive"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not contain %q", err, tc.want)
			}
		})
	}
}

func TestDefaultThresholdIsMaxInt(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.PriorityThreshold != math.MaxInt {
		t.Errorf("PriorityThreshold = %d, want math.MaxInt", cfg.PriorityThreshold)
	}
}

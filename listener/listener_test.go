package listener

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/liamcoop/easyrules/rules"
)

type zeroSource struct{}

func (zeroSource) Float64() float64 { return 0 }

func testRules() *rules.Rules {
	return rules.NewRules(
		rules.NewRule("applied", rules.WithPriority(1), rules.When(rules.True)),
		rules.NewRule("rejected", rules.WithPriority(2), rules.WithThreshold(0), rules.When(rules.True)),
		rules.NewRule("broken", rules.WithPriority(3), rules.When(rules.ConditionFunc(func(*rules.Facts) (bool, error) {
			return false, errors.New("bad condition")
		}))),
		rules.NewRule("failing", rules.WithPriority(4), rules.When(rules.True), rules.Then(rules.ActionFunc(func(*rules.Facts) error {
			return errors.New("bad action")
		}))),
		rules.NewRule("no-match", rules.WithPriority(5), rules.When(rules.False)),
	)
}

func TestMetricsListener(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics("easyrules", registry)
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	engine := rules.NewEngine(rules.DefaultParameters(),
		rules.WithRandomSource(zeroSource{}),
		rules.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
		rules.WithRuleListeners(metrics.RuleListener("shop")),
		rules.WithRulesEngineListeners(metrics.RunListener("shop")),
	)
	engine.Fire(testRules(), rules.NewFacts())
	engine.Fire(testRules(), rules.NewFacts())

	testCases := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"Runs", metrics.runsTotal.WithLabelValues("shop"), 2},
		{"Applied evaluated true", metrics.evaluationsTotal.WithLabelValues("shop", "applied", "true"), 2},
		{"Broken evaluated false", metrics.evaluationsTotal.WithLabelValues("shop", "broken", "false"), 2},
		{"No match evaluated false", metrics.evaluationsTotal.WithLabelValues("shop", "no-match", "false"), 2},
		{"Soft gate rejection", metrics.gateRejections.WithLabelValues("shop", "rejected"), 2},
		{"Evaluation errors", metrics.evaluationErrors.WithLabelValues("shop", "broken"), 2},
		{"Successes", metrics.executionsTotal.WithLabelValues("shop", "applied", "success"), 2},
		{"Failures", metrics.executionsTotal.WithLabelValues("shop", "failing", "failure"), 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tc.collector); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMetricsListenerCheckCountsRunOnly(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics("easyrules", registry)
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	engine := rules.NewEngine(rules.DefaultParameters(),
		rules.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
		rules.WithRuleListeners(metrics.RuleListener("shop")),
		rules.WithRulesEngineListeners(metrics.RunListener("shop")),
	)
	rs := rules.NewRules(rules.NewRule("applied", rules.When(rules.True)))
	if _, err := engine.Check(rs, rules.NewFacts()); err != nil {
		t.Fatalf("Check() failed: %v", err)
	}

	if got := testutil.ToFloat64(metrics.runsTotal.WithLabelValues("shop")); got != 1 {
		t.Errorf("runs_total = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(metrics.evaluationsTotal); got != 0 {
		t.Errorf("rule_evaluations_total has %d series after Check, want 0", got)
	}
}

func TestNewMetricsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	if _, err := NewMetrics("easyrules", registry); err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}
	if _, err := NewMetrics("easyrules", registry); err == nil {
		t.Error("registering the same metrics twice should fail")
	}
}

func TestLoggingListener(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	engine := rules.NewEngine(rules.DefaultParameters(),
		rules.WithRandomSource(zeroSource{}),
		rules.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
		rules.WithRuleListeners(NewLogging(logger)),
		rules.WithRulesEngineListeners(NewRunLogging(logger)),
	)
	engine.Fire(testRules(), rules.NewFacts())

	out := buf.String()
	for _, want := range []string{
		`msg="Run started" rules=5`,
		`msg="Rule applied" rule=applied`,
		`msg="Rule condition failed" rule=broken`,
		`msg="Rule action failed" rule=failing`,
		`msg="Run finished"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

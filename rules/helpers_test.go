package rules

import (
	"fmt"
	"io"
	"log/slog"
)

// fixedSource always returns the same draw
type fixedSource float64

func (s fixedSource) Float64() float64 { return float64(s) }

// sequenceSource returns the given draws in order, then repeats the last one
type sequenceSource struct {
	draws []float64
	calls int
}

func (s *sequenceSource) Float64() float64 {
	i := s.calls
	if i >= len(s.draws) {
		i = len(s.draws) - 1
	}
	s.calls++
	return s.draws[i]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects every hook call made on it, in order
type recorder struct {
	name   string
	events *[]string
	veto   map[string]bool
}

func newRecorder(name string, events *[]string) *recorder {
	return &recorder{name: name, events: events, veto: map[string]bool{}}
}

func (r *recorder) add(format string, args ...any) {
	*r.events = append(*r.events, r.name+":"+fmt.Sprintf(format, args...))
}

func (r *recorder) BeforeEvaluate(rule Rule, _ *Facts) bool {
	r.add("beforeEvaluate(%s)", rule.Name())
	return !r.veto[rule.Name()]
}

func (r *recorder) AfterEvaluate(rule Rule, _ *Facts, evaluationResult, randomResult bool) {
	r.add("afterEvaluate(%s,%t,%t)", rule.Name(), evaluationResult, randomResult)
}

func (r *recorder) BeforeExecute(rule Rule, _ *Facts) {
	r.add("beforeExecute(%s)", rule.Name())
}

func (r *recorder) OnSuccess(rule Rule, _ *Facts) {
	r.add("onSuccess(%s)", rule.Name())
}

func (r *recorder) OnFailure(rule Rule, _ *Facts, err error) {
	r.add("onFailure(%s,%v)", rule.Name(), err)
}

func (r *recorder) OnEvaluationError(rule Rule, _ *Facts, err error) {
	r.add("onEvaluationError(%s,%v)", rule.Name(), err)
}

// runRecorder records run-level hooks
type runRecorder struct {
	name   string
	events *[]string
}

func (r *runRecorder) BeforeEvaluate(rules *Rules, _ *Facts) {
	*r.events = append(*r.events, fmt.Sprintf("%s:before(%d)", r.name, rules.Len()))
}

func (r *runRecorder) AfterExecute(rules *Rules, _ *Facts) {
	*r.events = append(*r.events, fmt.Sprintf("%s:after(%d)", r.name, rules.Len()))
}

// countingCondition counts evaluations
type countingCondition struct {
	result bool
	err    error
	calls  int
}

func (c *countingCondition) Evaluate(*Facts) (bool, error) {
	c.calls++
	return c.result, c.err
}

// countingAction counts executions and records a fact
type countingAction struct {
	fact  string
	err   error
	calls int
}

func (a *countingAction) Execute(facts *Facts) error {
	a.calls++
	if a.err != nil {
		return a.err
	}
	if a.fact != "" {
		return facts.Put(a.fact, true)
	}
	return nil
}

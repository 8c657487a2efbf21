// Package celrule evaluates rule conditions and actions written in CEL.
//
// Conditions are boolean CEL expressions over the facts. Actions are
// assignments of the form `path = expression`, where path names a fact or a
// dotted path into a fact holding a map[string]any.
package celrule

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/liamcoop/easyrules/rules"
)

// costLimit bounds the work a single evaluation may do
const costLimit = 1000000

var (
	// ErrNonBoolean is returned when a condition yields something other than a bool
	ErrNonBoolean = errors.New("condition did not evaluate to a boolean")

	// ErrInvalidAssignment is returned for actions that are not `path = expression`
	ErrInvalidAssignment = errors.New("action must be an assignment of the form 'path = expression'")

	targetPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)*$`)
)

// NewEnv creates a CEL environment declaring each variable as dynamically typed
func NewEnv(variables ...string) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(variables))
	for _, name := range variables {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

func compile(env *cel.Env, expression string) (*cel.Ast, cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prog, err := env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(costLimit),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("program creation error: %w", err)
	}
	return ast, prog, nil
}

// Condition is a compiled CEL condition
type Condition struct {
	expression string
	program    cel.Program
}

// NewCondition compiles a condition. Expressions statically typed as
// anything but bool or dyn are rejected.
func NewCondition(env *cel.Env, expression string) (*Condition, error) {
	ast, prog, err := compile(env, expression)
	if err != nil {
		return nil, err
	}
	out := ast.OutputType()
	if !out.IsExactType(types.BoolType) && !out.IsExactType(types.DynType) {
		return nil, fmt.Errorf("%w: %q has type %s", ErrNonBoolean, expression, out)
	}
	return &Condition{expression: expression, program: prog}, nil
}

func (c *Condition) Evaluate(facts *rules.Facts) (bool, error) {
	out, _, err := c.program.Eval(facts.AsMap())
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", c.expression, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q returned %T", ErrNonBoolean, c.expression, out.Value())
	}
	return matched, nil
}

func (c *Condition) String() string { return c.expression }

// Action is a compiled CEL assignment
type Action struct {
	statement string
	target    []string
	program   cel.Program
}

// NewAction compiles a `path = expression` statement
func NewAction(env *cel.Env, statement string) (*Action, error) {
	target, expression, err := splitAssignment(statement)
	if err != nil {
		return nil, err
	}
	_, prog, err := compile(env, expression)
	if err != nil {
		return nil, err
	}
	return &Action{statement: statement, target: target, program: prog}, nil
}

func (a *Action) Execute(facts *rules.Facts) error {
	out, _, err := a.program.Eval(facts.AsMap())
	if err != nil {
		return fmt.Errorf("execute %q: %w", a.statement, err)
	}
	value, err := nativeValue(out)
	if err != nil {
		return fmt.Errorf("execute %q: %w", a.statement, err)
	}
	return assign(facts, a.target, value)
}

func (a *Action) String() string { return a.statement }

// Compiler builds CEL conditions and actions against one environment
type Compiler struct {
	Env *cel.Env
}

func (c Compiler) CompileCondition(expression string) (rules.Condition, error) {
	return NewCondition(c.Env, expression)
}

func (c Compiler) CompileAction(statement string) (rules.Action, error) {
	return NewAction(c.Env, statement)
}

// NewRule builds a rule whose condition and actions are CEL
func NewRule(env *cel.Env, name, condition string, actions []string, opts ...rules.RuleOption) (*rules.BasicRule, error) {
	cond, err := NewCondition(env, condition)
	if err != nil {
		return nil, fmt.Errorf("rule %q condition: %w", name, err)
	}
	all := append([]rules.RuleOption{}, opts...)
	all = append(all, rules.When(cond))
	for i, statement := range actions {
		action, err := NewAction(env, statement)
		if err != nil {
			return nil, fmt.Errorf("rule %q action %d: %w", name, i, err)
		}
		all = append(all, rules.Then(action))
	}
	return rules.NewRule(name, all...), nil
}

// splitAssignment finds the first '=' outside string literals that is not
// part of a comparison operator
func splitAssignment(statement string) ([]string, string, error) {
	var quote byte
	for i := 0; i < len(statement); i++ {
		ch := statement[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
			continue
		case ch == '"' || ch == '\'':
			quote = ch
			continue
		case ch != '=':
			continue
		}
		if i+1 < len(statement) && statement[i+1] == '=' {
			i++
			continue
		}
		if i > 0 && strings.IndexByte("=!<>", statement[i-1]) >= 0 {
			continue
		}
		target := strings.TrimSpace(statement[:i])
		expression := strings.TrimSpace(statement[i+1:])
		if !targetPattern.MatchString(target) || expression == "" {
			break
		}
		return strings.Split(target, "."), expression, nil
	}
	return nil, "", fmt.Errorf("%w: %q", ErrInvalidAssignment, statement)
}

// nativeValue converts CEL results into plain Go values. Lists become
// []any and maps become map[string]any, recursively.
func nativeValue(v ref.Val) (any, error) {
	switch val := v.(type) {
	case traits.Mapper:
		out := make(map[string]any)
		it := val.Iterator()
		for it.HasNext() == types.True {
			k := it.Next()
			key, ok := k.Value().(string)
			if !ok {
				return nil, fmt.Errorf("map key %v is %T, not a string", k.Value(), k.Value())
			}
			elem, err := nativeValue(val.Get(k))
			if err != nil {
				return nil, err
			}
			out[key] = elem
		}
		return out, nil
	case traits.Lister:
		out := []any{}
		it := val.Iterator()
		for it.HasNext() == types.True {
			elem, err := nativeValue(it.Next())
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	}
	return v.Value(), nil
}

func assign(facts *rules.Facts, target []string, value any) error {
	if len(target) == 1 {
		return facts.Put(target[0], value)
	}

	root, ok := facts.Get(target[0])
	if !ok || root == nil {
		root = map[string]any{}
		if err := facts.Put(target[0], root); err != nil {
			return err
		}
	}
	current, ok := root.(map[string]any)
	if !ok {
		return fmt.Errorf("fact %q is %T, not a map", target[0], root)
	}
	for i, key := range target[1 : len(target)-1] {
		next, exists := current[key]
		if !exists || next == nil {
			child := map[string]any{}
			current[key] = child
			current = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%s is %T, not a map", strings.Join(target[:i+2], "."), next)
		}
		current = child
	}
	current[target[len(target)-1]] = value
	return nil
}

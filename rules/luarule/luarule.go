// Package luarule evaluates rule conditions and actions written in Lua.
//
// Every evaluation runs in a fresh Lua state. Facts are exposed as globals,
// converted to Lua values, and through a `facts` table with get, put and
// remove functions. After an action runs, globals that mirror facts are
// written back when the script changed them, and new global variables
// become facts.
package luarule

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/Shopify/go-lua"

	"github.com/liamcoop/easyrules/rules"
)

// maxDepth bounds table nesting when converting between Go and Lua
const maxDepth = 32

// ErrNonBoolean is returned when a condition's first result is not a boolean
var ErrNonBoolean = errors.New("condition did not return a boolean")

// Condition is a Lua chunk whose first result decides the rule.
// A bare expression such as `event.Count > 2` is accepted and treated as
// `return event.Count > 2`.
type Condition struct {
	source string
	chunk  string
}

// NewCondition validates the syntax of a condition
func NewCondition(source string) (*Condition, error) {
	chunk := "return " + source
	if err := checkSyntax(chunk); err != nil {
		chunk = source
		if err := checkSyntax(chunk); err != nil {
			return nil, err
		}
	}
	return &Condition{source: source, chunk: chunk}, nil
}

func (c *Condition) Evaluate(facts *rules.Facts) (bool, error) {
	b, err := newBinding(facts)
	if err != nil {
		return false, err
	}
	if err := lua.LoadString(b.state, c.chunk); err != nil {
		return false, fmt.Errorf("load %q: %w", c.source, err)
	}
	if err := b.state.ProtectedCall(0, 1, 0); err != nil {
		return false, fmt.Errorf("evaluate %q: %w", c.source, err)
	}
	if b.state.TypeOf(-1) != lua.TypeBoolean {
		return false, fmt.Errorf("%w: %q returned %s", ErrNonBoolean, c.source, lua.TypeNameOf(b.state, -1))
	}
	return b.state.ToBoolean(-1), nil
}

func (c *Condition) String() string { return c.source }

// Action is a Lua chunk run for its effect on facts
type Action struct {
	source string
}

// NewAction validates the syntax of an action
func NewAction(source string) (*Action, error) {
	if err := checkSyntax(source); err != nil {
		return nil, err
	}
	return &Action{source: source}, nil
}

func (a *Action) Execute(facts *rules.Facts) error {
	b, err := newBinding(facts)
	if err != nil {
		return err
	}
	if err := lua.LoadString(b.state, a.source); err != nil {
		return fmt.Errorf("load %q: %w", a.source, err)
	}
	if err := b.state.ProtectedCall(0, 0, 0); err != nil {
		return fmt.Errorf("execute %q: %w", a.source, err)
	}
	if err := b.writeBack(); err != nil {
		return fmt.Errorf("execute %q: %w", a.source, err)
	}
	return nil
}

func (a *Action) String() string { return a.source }

// Compiler builds Lua conditions and actions
type Compiler struct{}

func (Compiler) CompileCondition(source string) (rules.Condition, error) {
	return NewCondition(source)
}

func (Compiler) CompileAction(source string) (rules.Action, error) {
	return NewAction(source)
}

// NewRule builds a rule whose condition and actions are Lua
func NewRule(name, condition string, actions []string, opts ...rules.RuleOption) (*rules.BasicRule, error) {
	cond, err := NewCondition(condition)
	if err != nil {
		return nil, fmt.Errorf("rule %q condition: %w", name, err)
	}
	all := append([]rules.RuleOption{}, opts...)
	all = append(all, rules.When(cond))
	for i, source := range actions {
		action, err := NewAction(source)
		if err != nil {
			return nil, fmt.Errorf("rule %q action %d: %w", name, i, err)
		}
		all = append(all, rules.Then(action))
	}
	return rules.NewRule(name, all...), nil
}

func checkSyntax(chunk string) error {
	state := lua.NewState()
	if err := lua.LoadString(state, chunk); err != nil {
		return fmt.Errorf("syntax error: %w", err)
	}
	return nil
}

// binding is one Lua state wired to a fact set
type binding struct {
	state    *lua.State
	facts    *rules.Facts
	baseline map[string]bool
	touched  map[string]bool
	// mirrors holds each fact global as first converted back from Lua
	mirrors map[string]any
}

func newBinding(facts *rules.Facts) (*binding, error) {
	b := &binding{
		state:   lua.NewState(),
		facts:   facts,
		touched: make(map[string]bool),
		mirrors: make(map[string]any),
	}
	lua.OpenLibraries(b.state)

	for name, value := range facts.All() {
		if err := pushValue(b.state, value, 0); err != nil {
			return nil, fmt.Errorf("fact %q: %w", name, err)
		}
		if mirror, err := toValue(b.state, -1, 0); err == nil {
			b.mirrors[name] = mirror
		}
		b.state.SetGlobal(name)
	}
	b.registerFactsTable()
	b.baseline = globalNames(b.state)
	return b, nil
}

func (b *binding) registerFactsTable() {
	b.state.NewTable()
	lua.SetFunctions(b.state, []lua.RegistryFunction{
		{Name: "get", Function: b.get},
		{Name: "put", Function: b.put},
		{Name: "remove", Function: b.remove},
	}, 0)
	b.state.SetGlobal("facts")
}

func (b *binding) get(state *lua.State) int {
	name := lua.CheckString(state, 1)
	value, ok := b.facts.Get(name)
	if !ok {
		state.PushNil()
		return 1
	}
	if err := pushValue(state, value, 0); err != nil {
		lua.Errorf(state, "facts.get(%s): %s", name, err.Error())
	}
	return 1
}

func (b *binding) put(state *lua.State) int {
	name := lua.CheckString(state, 1)
	lua.CheckAny(state, 2)
	value, err := toValue(state, 2, 0)
	if err != nil {
		lua.Errorf(state, "facts.put(%s): %s", name, err.Error())
	}
	if err := b.facts.Put(name, value); err != nil {
		lua.Errorf(state, "facts.put(%s): %s", name, err.Error())
	}
	b.touched[name] = true
	return 0
}

func (b *binding) remove(state *lua.State) int {
	name := lua.CheckString(state, 1)
	b.facts.Remove(name)
	b.touched[name] = true
	return 0
}

// writeBack copies globals into facts: mirrors of facts the chunk changed
// without going through the facts table, and globals created by the chunk.
// Untouched mirrors are skipped so facts keep their Go types.
// Functions and other values without a Go form are ignored.
func (b *binding) writeBack() error {
	for name := range globalNames(b.state) {
		if b.touched[name] || name == "facts" {
			continue
		}
		_, isFact := b.facts.Get(name)
		if b.baseline[name] && !isFact {
			continue
		}
		b.state.Global(name)
		value, err := toValue(b.state, -1, 0)
		b.state.Pop(1)
		if errors.Is(err, errUnsupported) {
			continue
		}
		if err != nil {
			return fmt.Errorf("global %q: %w", name, err)
		}
		if mirror, ok := b.mirrors[name]; ok && isFact && reflect.DeepEqual(mirror, value) {
			continue
		}
		if err := b.facts.Put(name, value); err != nil {
			return err
		}
	}
	return nil
}

func globalNames(state *lua.State) map[string]bool {
	names := make(map[string]bool)
	state.PushGlobalTable()
	state.PushNil()
	for state.Next(-2) {
		if state.TypeOf(-2) == lua.TypeString {
			name, _ := state.ToString(-2)
			names[name] = true
		}
		state.Pop(1)
	}
	state.Pop(1)
	return names
}

var errUnsupported = errors.New("value has no Go representation")

func pushValue(state *lua.State, value any, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("nesting deeper than %d", maxDepth)
	}
	switch v := value.(type) {
	case nil:
		state.PushNil()
	case bool:
		state.PushBoolean(v)
	case string:
		state.PushString(v)
	case int:
		state.PushInteger(v)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		state.PushNumber(reflect.ValueOf(v).Convert(reflect.TypeOf(float64(0))).Float())
	case float32:
		state.PushNumber(float64(v))
	case float64:
		state.PushNumber(v)
	case []any:
		state.CreateTable(len(v), 0)
		for i, elem := range v {
			state.PushInteger(i + 1)
			if err := pushValue(state, elem, depth+1); err != nil {
				state.Pop(2)
				return err
			}
			state.SetTable(-3)
		}
	case map[string]any:
		state.CreateTable(0, len(v))
		for key, elem := range v {
			if err := pushValue(state, elem, depth+1); err != nil {
				state.Pop(1)
				return err
			}
			state.SetField(-2, key)
		}
	default:
		state.PushUserData(v)
	}
	return nil
}

func toValue(state *lua.State, index, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("nesting deeper than %d", maxDepth)
	}
	index = state.AbsIndex(index)
	switch state.TypeOf(index) {
	case lua.TypeNil, lua.TypeNone:
		return nil, nil
	case lua.TypeBoolean:
		return state.ToBoolean(index), nil
	case lua.TypeNumber:
		n, _ := state.ToNumber(index)
		return number(n), nil
	case lua.TypeString:
		s, _ := state.ToString(index)
		return s, nil
	case lua.TypeTable:
		return tableValue(state, index, depth)
	case lua.TypeUserData:
		return state.ToUserData(index), nil
	}
	return nil, fmt.Errorf("%w: %s", errUnsupported, lua.TypeNameOf(state, index))
}

// number keeps integral values as int
func number(n float64) any {
	if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
		return int(n)
	}
	return n
}

// tableValue converts a sequence to []any and anything else to map[string]any
func tableValue(state *lua.State, index, depth int) (any, error) {
	entries := make(map[string]any)
	var sequence []any
	isSequence := true
	count := 0

	state.PushNil()
	for state.Next(index) {
		value, err := toValue(state, -1, depth+1)
		if err != nil {
			state.Pop(2)
			return nil, err
		}
		var key string
		switch state.TypeOf(-2) {
		case lua.TypeString:
			key, _ = state.ToString(-2)
			isSequence = false
		case lua.TypeNumber:
			n, _ := state.ToNumber(-2)
			key = strconv.FormatFloat(n, 'f', -1, 64)
		default:
			keyType := lua.TypeNameOf(state, -2)
			state.Pop(2)
			return nil, fmt.Errorf("%w: table key of type %s", errUnsupported, keyType)
		}
		entries[key] = value
		count++
		state.Pop(1)
	}

	if isSequence && count > 0 {
		sequence = make([]any, count)
		for i := range count {
			value, ok := entries[strconv.Itoa(i+1)]
			if !ok {
				isSequence = false
				break
			}
			sequence[i] = value
		}
		if isSequence {
			return sequence, nil
		}
	}
	return entries, nil
}

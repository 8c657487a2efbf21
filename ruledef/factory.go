package ruledef

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/easyrules/rules"
	"github.com/liamcoop/easyrules/rules/celrule"
	"github.com/liamcoop/easyrules/rules/luarule"
)

const (
	LanguageCEL = "cel"
	LanguageLua = "lua"
)

// ErrUnknownLanguage is returned for expression languages with no compiler
var ErrUnknownLanguage = errors.New("unknown rule language")

// Compiler turns expression text into conditions and actions
type Compiler interface {
	CompileCondition(expression string) (rules.Condition, error)
	CompileAction(expression string) (rules.Action, error)
}

// CompilerFor returns the compiler for a language. CEL is the default and
// declares celVariables as dynamically typed; Lua ignores them.
func CompilerFor(language string, celVariables ...string) (Compiler, error) {
	switch strings.ToLower(language) {
	case "", LanguageCEL:
		env, err := celrule.NewEnv(celVariables...)
		if err != nil {
			return nil, err
		}
		return celrule.Compiler{Env: env}, nil
	case LanguageLua:
		return luarule.Compiler{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, language)
}

// CELCompiler returns a compiler bound to an existing CEL environment
func CELCompiler(env *cel.Env) Compiler {
	return celrule.Compiler{Env: env}
}

// Factory creates rules from definitions
type Factory struct {
	Reader   Reader
	Compiler Compiler
}

// NewFactory creates a factory. A nil reader defaults to YAML.
func NewFactory(reader Reader, compiler Compiler) *Factory {
	if reader == nil {
		reader = YAMLReader
	}
	return &Factory{Reader: reader, Compiler: compiler}
}

// CreateRule compiles a single definition
func (f *Factory) CreateRule(def Definition) (*rules.BasicRule, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	cond, err := f.Compiler.CompileCondition(def.Condition)
	if err != nil {
		return nil, fmt.Errorf("rule %q condition: %w", def.Name, err)
	}
	opts := append(def.Options(), rules.When(cond))
	for i, expression := range def.Actions {
		action, err := f.Compiler.CompileAction(expression)
		if err != nil {
			return nil, fmt.Errorf("rule %q action %d: %w", def.Name, i, err)
		}
		opts = append(opts, rules.Then(action))
	}
	return rules.NewRule(def.Name, opts...), nil
}

// CreateRulesFromDefinitions compiles every definition into one rule set
func (f *Factory) CreateRulesFromDefinitions(defs []Definition) (*rules.Rules, error) {
	rs := rules.NewRules()
	for _, def := range defs {
		rule, err := f.CreateRule(def)
		if err != nil {
			return nil, err
		}
		rs.Register(rule)
	}
	return rs, nil
}

// CreateRules reads definitions and compiles them into one rule set
func (f *Factory) CreateRules(r io.Reader) (*rules.Rules, error) {
	defs, err := f.Reader.Read(r)
	if err != nil {
		return nil, err
	}
	return f.CreateRulesFromDefinitions(defs)
}

// ReaderForPath picks a reader by file extension: .json reads JSON,
// anything else YAML
func ReaderForPath(path string) Reader {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return JSONReader
	}
	return YAMLReader
}

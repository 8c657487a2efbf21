// Package ruledef reads rule definitions from YAML or JSON and turns them
// into rules through an expression Compiler.
package ruledef

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/easyrules/rules"
)

// Definition describes one rule before its expressions are compiled
type Definition struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Priority    *int     `json:"priority,omitempty" yaml:"priority,omitempty"`
	Threshold   *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Condition   string   `json:"condition" yaml:"condition"`
	Actions     []string `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// Options converts the optional fields into rule options, filling defaults
func (d Definition) Options() []rules.RuleOption {
	var opts []rules.RuleOption
	if d.Description != "" {
		opts = append(opts, rules.WithDescription(d.Description))
	}
	if d.Priority != nil {
		opts = append(opts, rules.WithPriority(*d.Priority))
	}
	if d.Threshold != nil {
		opts = append(opts, rules.WithThreshold(*d.Threshold))
	}
	return opts
}

// Validate checks the fields every definition needs
func (d Definition) Validate() error {
	if d.Name == "" {
		return errors.New("rule definition has no name")
	}
	if d.Condition == "" {
		return fmt.Errorf("rule %q has no condition", d.Name)
	}
	return nil
}

// Reader decodes a stream of rule definitions
type Reader interface {
	Read(r io.Reader) ([]Definition, error)
}

type yamlReader struct{}

func (yamlReader) Read(r io.Reader) ([]Definition, error) { return ReadYAML(r) }

type jsonReader struct{}

func (jsonReader) Read(r io.Reader) ([]Definition, error) { return ReadJSON(r) }

var (
	// YAMLReader reads one definition per YAML document
	YAMLReader Reader = yamlReader{}

	// JSONReader reads a JSON array of definitions
	JSONReader Reader = jsonReader{}
)

// ReadYAML decodes a multi-document YAML stream, one rule per document.
// A document holding a sequence contributes every definition in it.
func ReadYAML(r io.Reader) ([]Definition, error) {
	dec := yaml.NewDecoder(r)
	var defs []Definition
	for i := 0; ; i++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode yaml document %d: %w", i, err)
		}
		if len(node.Content) == 0 {
			continue
		}
		if node.Content[0].Kind == yaml.SequenceNode {
			var batch []Definition
			if err := node.Decode(&batch); err != nil {
				return nil, fmt.Errorf("decode yaml document %d: %w", i, err)
			}
			defs = append(defs, batch...)
			continue
		}
		var def Definition
		if err := node.Decode(&def); err != nil {
			return nil, fmt.Errorf("decode yaml document %d: %w", i, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ReadJSON decodes a JSON array of definitions
func ReadJSON(r io.Reader) ([]Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return defs, nil
}

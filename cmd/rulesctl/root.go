package main

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/easyrules/internal/config"
	"github.com/liamcoop/easyrules/listener"
	"github.com/liamcoop/easyrules/ruledef"
	"github.com/liamcoop/easyrules/rules"
)

// runFlags are shared by fire and check
type runFlags struct {
	rulesFile string
	factsFile string
	lang      string
	vars      []string
	verbose   bool
	seed      uint64
	params    rules.Parameters
}

func newRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "rulesctl",
		Short:        "Fire, check and validate rule files",
		SilenceUsage: true,
	}

	root.AddCommand(
		newFireCmd(cfg),
		newCheckCmd(cfg),
		newValidateCmd(),
	)
	return root
}

func (f *runFlags) register(cmd *cobra.Command, defaults rules.Parameters) {
	f.params = defaults

	flags := cmd.Flags()
	flags.StringVar(&f.rulesFile, "rules", "", "rule definitions file (YAML, or JSON by .json extension)")
	flags.StringVar(&f.factsFile, "facts", "", "facts file (YAML or JSON object)")
	flags.StringVar(&f.lang, "lang", ruledef.LanguageCEL, "expression language: cel, lua")
	flags.StringSliceVar(&f.vars, "var", nil, "extra CEL variable to declare, repeatable")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "log every rule hook to stderr")
	flags.Uint64Var(&f.seed, "seed", 0, "seed for the soft gate (0 draws from the global source)")
	flags.IntVar(&f.params.PriorityThreshold, "priority-threshold", defaults.PriorityThreshold, "skip rules with a higher priority")
	flags.BoolVar(&f.params.SkipOnFirstAppliedRule, "skip-on-first-applied", defaults.SkipOnFirstAppliedRule, "stop after the first applied rule")
	flags.BoolVar(&f.params.SkipOnFirstNonTriggeredRule, "skip-on-first-non-triggered", defaults.SkipOnFirstNonTriggeredRule, "log that rules are skipped after a condition error")
	flags.BoolVar(&f.params.SkipOnFirstFailedRule, "skip-on-first-failed", defaults.SkipOnFirstFailedRule, "log that the run moves on after an action failure")

	_ = cmd.MarkFlagRequired("rules")
	_ = cmd.MarkFlagRequired("facts")
}

// load reads facts and compiles rules. CEL variables are the fact names plus --var.
func (f *runFlags) load() (*rules.Rules, *rules.Facts, error) {
	facts, err := readFacts(f.factsFile)
	if err != nil {
		return nil, nil, err
	}

	vars := slices.Clone(f.vars)
	for name := range facts.All() {
		vars = append(vars, name)
	}
	slices.Sort(vars)
	vars = slices.Compact(vars)

	rs, err := compileRules(f.rulesFile, f.lang, vars)
	if err != nil {
		return nil, nil, err
	}
	return rs, facts, nil
}

// engine builds an engine for one run, logging to stderr
func (f *runFlags) engine(stderr io.Writer) *rules.Engine {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	opts := []rules.Option{rules.WithLogger(log)}
	if f.verbose {
		opts = append(opts,
			rules.WithRuleListeners(listener.NewLogging(log)),
			rules.WithRulesEngineListeners(listener.NewRunLogging(log)),
		)
	}
	if f.seed != 0 {
		opts = append(opts, rules.WithRandomSource(rand.New(rand.NewPCG(f.seed, f.seed))))
	}
	return rules.NewEngine(f.params, opts...)
}

func compileRules(path, lang string, vars []string) (*rules.Rules, error) {
	compiler, err := ruledef.CompilerFor(lang, vars...)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules: %w", err)
	}
	defer file.Close()

	rs, err := ruledef.NewFactory(ruledef.ReaderForPath(path), compiler).CreateRules(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// readFacts decodes a YAML or JSON object into facts
func readFacts(path string) (*rules.Facts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facts: %w", err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%s: decode facts: %w", path, err)
	}

	facts := rules.NewFacts()
	for name, value := range values {
		if err := facts.Put(name, value); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return facts, nil
}

// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/liamcoop/easyrules/rules"
)

// Config is shared by the server and the CLI
type Config struct {
	Addr             string        `env:"EASYRULES_ADDR"              envDefault:":8080"`
	RulesDir         string        `env:"EASYRULES_RULES_DIR"`
	Watch            bool          `env:"EASYRULES_WATCH"             envDefault:"false"`
	Debounce         time.Duration `env:"EASYRULES_WATCH_DEBOUNCE"    envDefault:"250ms"`
	MetricsNamespace string        `env:"EASYRULES_METRICS_NAMESPACE" envDefault:"easyrules"`
	ShutdownTimeout  time.Duration `env:"EASYRULES_SHUTDOWN_TIMEOUT"  envDefault:"10s"`

	// Engine defaults applied to tenants that do not set their own parameters.
	PriorityThreshold           int  `env:"EASYRULES_PRIORITY_THRESHOLD"              envDefault:"9223372036854775807"`
	SkipOnFirstAppliedRule      bool `env:"EASYRULES_SKIP_ON_FIRST_APPLIED_RULE"`
	SkipOnFirstNonTriggeredRule bool `env:"EASYRULES_SKIP_ON_FIRST_NON_TRIGGERED_RULE"`
	SkipOnFirstFailedRule       bool `env:"EASYRULES_SKIP_ON_FIRST_FAILED_RULE"`
}

// Load parses the environment into a Config
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Watch && cfg.RulesDir == "" {
		return Config{}, fmt.Errorf("EASYRULES_WATCH requires EASYRULES_RULES_DIR")
	}
	if cfg.Debounce <= 0 {
		return Config{}, fmt.Errorf("EASYRULES_WATCH_DEBOUNCE must be positive, got %s", cfg.Debounce)
	}
	return cfg, nil
}

// Parameters returns the engine defaults
func (c Config) Parameters() rules.Parameters {
	return rules.Parameters{
		PriorityThreshold:           c.PriorityThreshold,
		SkipOnFirstAppliedRule:      c.SkipOnFirstAppliedRule,
		SkipOnFirstNonTriggeredRule: c.SkipOnFirstNonTriggeredRule,
		SkipOnFirstFailedRule:       c.SkipOnFirstFailedRule,
	}
}

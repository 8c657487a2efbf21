// Command rulesctl fires, checks and validates rule files from the command line.
//
// Usage:
//
//	# Fire rules against facts and print the resulting facts
//	rulesctl fire --rules rules.yaml --facts facts.yaml
//
//	# Show which conditions hold without running actions
//	rulesctl check --rules rules.yaml --facts facts.json
//
//	# Compile a Lua rule file without running it
//	rulesctl validate --rules rules.yaml --lang lua
package main

import (
	"os"

	"github.com/liamcoop/easyrules/internal/config"
	"github.com/liamcoop/easyrules/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}
	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

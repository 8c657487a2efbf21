package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/easyrules/internal/config"
)

func newFireCmd(cfg config.Config) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "fire",
		Short: "Fire rules against facts",
		Long: `Fire evaluates every rule in priority order and runs the actions of the
rules whose condition holds and whose soft gate passes. The facts as the
actions left them are printed as YAML.

Examples:
  rulesctl fire --rules discounts.yaml --facts order.yaml
  rulesctl fire --rules fraud.yaml --facts tx.json --lang lua --skip-on-first-applied`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, facts, err := flags.load()
			if err != nil {
				return err
			}

			result := flags.engine(cmd.ErrOrStderr()).Fire(rs, facts)

			out, err := yaml.Marshal(map[string]any{
				"result": result,
				"facts":  facts.AsMap(),
			})
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	flags.register(cmd, cfg.Parameters())
	return cmd
}

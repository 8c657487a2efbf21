package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/liamcoop/easyrules/internal/config"
	"github.com/liamcoop/easyrules/rules"
)

func newCheckCmd(cfg config.Config) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Show which rule conditions hold, without running actions",
		Long: `Check evaluates every rule condition against the facts and prints one line
per rule in priority order. No action runs and the soft gate is not drawn.
The first condition error aborts the check.

Example:
  rulesctl check --rules discounts.yaml --facts order.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, facts, err := flags.load()
			if err != nil {
				return err
			}

			outcomes, err := flags.engine(cmd.ErrOrStderr()).Check(rs, facts)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RULE\tPRIORITY\tMATCHED")
			for rule := range rs.All() {
				matched, ok := outcomes[rules.KeyOf(rule)]
				if !ok {
					continue
				}
				fmt.Fprintf(w, "%s\t%d\t%t\n", rule.Name(), rule.Priority(), matched)
			}
			return w.Flush()
		},
	}

	flags.register(cmd, cfg.Parameters())
	return cmd
}

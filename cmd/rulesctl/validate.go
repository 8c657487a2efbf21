package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/easyrules/ruledef"
)

func newValidateCmd() *cobra.Command {
	var (
		rulesFile string
		lang      string
		vars      []string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compile a rule file without running it",
		Long: `Validate reads a rule file and compiles every condition and action.
CEL rules need every fact they reference declared with --var.

Examples:
  rulesctl validate --rules discounts.yaml --var order --var customer
  rulesctl validate --rules fraud.yaml --lang lua`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := compileRules(rulesFile, lang, vars)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules OK\n", rulesFile, rs.Len())
			return nil
		},
	}

	cmd.Flags().StringVar(&rulesFile, "rules", "", "rule definitions file")
	cmd.Flags().StringVar(&lang, "lang", ruledef.LanguageCEL, "expression language: cel, lua")
	cmd.Flags().StringSliceVar(&vars, "var", nil, "CEL variable to declare, repeatable")
	_ = cmd.MarkFlagRequired("rules")
	return cmd
}

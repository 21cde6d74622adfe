package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/erc"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/erc/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the effective rule checks",
	Long: `List the rule checks after the configured rules file and disabled
keys are applied.

Examples:
  otn rules
  otn rules lint house.rules`,
	Args: cobra.NoArgs,
	RunE: runRules,
}

var rulesLintCmd = &cobra.Command{
	Use:   "lint <rules-file>",
	Short: "Validate a rules file against the built-in checks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := rules.LoadRegistry(erc.Builtins(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d checks\n", args[0], reg.Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesLintCmd)
}

func runRules(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, c := range reg.Checks() {
		state := "on"
		if !reg.Enabled(c.Key) {
			state = "off"
		}
		fmt.Fprintf(out, "%-32s %-3s %-7s %-8s %s\n", c.Key, state, c.Scope, c.Severity, c.Description)
	}
	return nil
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/reshapehq/reshape/internal/rules"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Statically validate a rule file",
	RunE:  runValidate,
}

var (
	validateRules       string
	validateRuleset     string
	validateErrorFormat string
)

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateRules, "rules", "r", "", "rule file path")
	validateCmd.Flags().StringVar(&validateRuleset, "ruleset", "", "catalog ruleset name")
	validateCmd.Flags().StringVarP(&validateErrorFormat, "error-format", "e", "text", "error format (text, json)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	errorFormat := effectiveErrorFormat(cmd, validateErrorFormat)
	rule, source, err := parseRules(validateRules, validateRuleset, "")
	if err != nil {
		return err
	}

	if diagnostics := rules.ValidateWithSource(rule, source); len(diagnostics) > 0 {
		emitValidationErrors(diagnostics, errorFormat)
		return exitWith(2, "")
	}
	return nil
}

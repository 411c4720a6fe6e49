package cmd

import (
	"github.com/spf13/cobra"

	"github.com/reshapehq/reshape/internal/rules"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Exercise the transform against real input without emitting output",
	RunE:  runPreflight,
}

var (
	preflightRules       string
	preflightRuleset     string
	preflightInput       string
	preflightFormat      string
	preflightContext     string
	preflightErrorFormat string
)

func init() {
	rootCmd.AddCommand(preflightCmd)
	preflightCmd.Flags().StringVarP(&preflightRules, "rules", "r", "", "rule file path")
	preflightCmd.Flags().StringVar(&preflightRuleset, "ruleset", "", "catalog ruleset name")
	preflightCmd.Flags().StringVarP(&preflightInput, "input", "i", "", "input file path")
	preflightCmd.Flags().StringVarP(&preflightFormat, "format", "f", "", "input format override (csv, json)")
	preflightCmd.Flags().StringVarP(&preflightContext, "context", "c", "", "context JSON file path")
	preflightCmd.Flags().StringVarP(&preflightErrorFormat, "error-format", "e", "text", "error format (text, json)")
	preflightCmd.MarkFlagRequired("input")
}

func runPreflight(cmd *cobra.Command, args []string) error {
	errorFormat := effectiveErrorFormat(cmd, preflightErrorFormat)
	rule, _, err := parseRules(preflightRules, preflightRuleset, preflightFormat)
	if err != nil {
		return err
	}

	input, err := loadInput(preflightInput)
	if err != nil {
		return err
	}

	contextValue, err := loadContext(preflightContext)
	if err != nil {
		return err
	}

	warnings, diagnostics, terr := rules.Preflight(rule, input, contextValue)
	if terr != nil {
		emitTransformErrors([]*rules.TransformError{terr}, errorFormat)
		return exitWith(3, "")
	}

	emitTransformWarnings(warnings, errorFormat)

	if len(diagnostics) > 0 {
		emitTransformErrors(diagnostics, errorFormat)
		return exitWith(3, "")
	}
	return nil
}

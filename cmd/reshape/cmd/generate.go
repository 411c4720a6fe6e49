package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reshapehq/reshape/internal/dto"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a typed record declaration from a rule file",
	RunE:  runGenerate,
}

var (
	generateRules   string
	generateRuleset string
	generateLang    string
	generateName    string
	generateOutput  string
)

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVarP(&generateRules, "rules", "r", "", "rule file path")
	generateCmd.Flags().StringVar(&generateRuleset, "ruleset", "", "catalog ruleset name")
	generateCmd.Flags().StringVarP(&generateLang, "lang", "l", "", "target language (go, typescript, python)")
	generateCmd.Flags().StringVarP(&generateName, "name", "n", "", "root type name (default: output.name or Record)")
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "output file path (default: stdout)")
	generateCmd.MarkFlagRequired("lang")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	rule, _, err := parseRules(generateRules, generateRuleset, "")
	if err != nil {
		return err
	}

	lang, lerr := dto.ParseLanguage(generateLang)
	if lerr != nil {
		fmt.Fprintln(os.Stderr, lerr)
		return exitWith(1, "")
	}

	output, gerr := dto.Generate(rule, lang, generateName)
	if gerr != nil {
		fmt.Fprintf(os.Stderr, "failed to generate dto: %v\n", gerr)
		return exitWith(1, "")
	}

	return writeOutput(generateOutput, output)
}

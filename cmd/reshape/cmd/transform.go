package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reshapehq/reshape/internal/rules"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Transform input records using a rule file",
	RunE:  runTransform,
}

var (
	transformRules       string
	transformRuleset     string
	transformInput       string
	transformFormat      string
	transformContext     string
	transformOutput      string
	transformNDJSON      bool
	transformValidate    bool
	transformErrorFormat string
)

func init() {
	rootCmd.AddCommand(transformCmd)
	transformCmd.Flags().StringVarP(&transformRules, "rules", "r", "", "rule file path")
	transformCmd.Flags().StringVar(&transformRuleset, "ruleset", "", "catalog ruleset name")
	transformCmd.Flags().StringVarP(&transformInput, "input", "i", "", "input file path")
	transformCmd.Flags().StringVarP(&transformFormat, "format", "f", "", "input format override (csv, json)")
	transformCmd.Flags().StringVarP(&transformContext, "context", "c", "", "context JSON file path")
	transformCmd.Flags().StringVarP(&transformOutput, "output", "o", "", "output file path (default: stdout)")
	transformCmd.Flags().BoolVar(&transformNDJSON, "ndjson", false, "emit newline-delimited JSON")
	transformCmd.Flags().BoolVarP(&transformValidate, "validate", "v", false, "validate the rule file before transforming")
	transformCmd.Flags().StringVarP(&transformErrorFormat, "error-format", "e", "text", "error format (text, json)")
	transformCmd.MarkFlagRequired("input")
}

func runTransform(cmd *cobra.Command, args []string) error {
	errorFormat := effectiveErrorFormat(cmd, transformErrorFormat)
	ndjson := transformNDJSON
	if !cmd.Flags().Changed("ndjson") && cliConfig != nil && cliConfig.NDJSON {
		ndjson = true
	}
	rule, source, err := parseRules(transformRules, transformRuleset, transformFormat)
	if err != nil {
		return err
	}

	if transformValidate {
		if diagnostics := rules.ValidateWithSource(rule, source); len(diagnostics) > 0 {
			emitValidationErrors(diagnostics, errorFormat)
			return exitWith(2, "")
		}
	}

	input, err := loadInput(transformInput)
	if err != nil {
		return err
	}

	contextValue, err := loadContext(transformContext)
	if err != nil {
		return err
	}

	if ndjson {
		return runTransformNDJSON(rule, input, contextValue, errorFormat)
	}

	outputs, warnings, terr := rules.Transform(rule, input, contextValue)
	if terr != nil {
		emitTransformErrors([]*rules.TransformError{terr}, errorFormat)
		return exitWith(3, "")
	}

	emitTransformWarnings(warnings, errorFormat)
	return writeOutput(transformOutput, rules.EncodeRecord(outputs))
}

// runTransformNDJSON streams records so the whole output never needs to
// sit in memory; the writer flushes per record.
func runTransformNDJSON(rule *rules.RuleFile, input string, contextValue any, errorFormat string) error {
	stream, terr := rules.NewStream(rule, input, contextValue)
	if terr != nil {
		emitTransformErrors([]*rules.TransformError{terr}, errorFormat)
		return exitWith(3, "")
	}

	var sink *os.File
	if transformOutput == "" {
		sink = os.Stdout
	} else {
		file, err := createOutputFile(transformOutput)
		if err != nil {
			return err
		}
		defer file.Close()
		sink = file
	}

	buffered := bufio.NewWriter(sink)
	writer := rules.NewNDJSONWriter(buffered)

	for {
		item, terr := stream.Next()
		if terr != nil {
			emitTransformErrors([]*rules.TransformError{terr}, errorFormat)
			return exitWith(3, "")
		}
		if item == nil {
			break
		}

		emitTransformWarnings(item.Warnings, errorFormat)
		if !item.HasOutput {
			continue
		}
		if err := writer.Write(item.Output); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write output: %v\n", err)
			return exitWith(1, "")
		}
	}

	if err := buffered.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write output: %v\n", err)
		return exitWith(1, "")
	}
	return nil
}

func createOutputFile(path string) (*os.File, error) {
	if err := writeOutputDir(path); err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write output: %v\n", err)
		return nil, exitWith(1, "")
	}
	return file, nil
}

func writeOutputDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output directory: %v\n", err)
		return exitWith(1, "")
	}
	return nil
}

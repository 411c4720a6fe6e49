package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/reshapehq/reshape/internal/rules"
)

/*
 * Diagnostic emission.
 *
 * Text format is one diagnostic per line on stderr:
 *   code=DuplicateTarget path=mappings[1].target line=9 col=5 msg="..."
 * JSON format is a single array of objects with a type tag of
 * validation|runtime|warning. Warnings use the same shapes but never
 * change the exit code.
 */

func emitValidationErrors(errors []*rules.RuleError, format string) {
	if format == "json" {
		values := make([]any, 0, len(errors))
		for _, err := range errors {
			value := map[string]any{
				"type":    "validation",
				"code":    string(err.Code),
				"message": err.Message,
			}
			if err.Path != "" {
				value["path"] = err.Path
			}
			if err.Location != nil {
				value["line"] = int64(err.Location.Line)
				value["column"] = int64(err.Location.Column)
			}
			values = append(values, value)
		}
		fmt.Fprintln(os.Stderr, rules.EncodeRecord(values))
		return
	}

	for _, err := range errors {
		var parts []string
		parts = append(parts, "code="+string(err.Code))
		if err.Path != "" {
			parts = append(parts, "path="+err.Path)
		}
		if err.Location != nil {
			parts = append(parts, fmt.Sprintf("line=%d", err.Location.Line))
			parts = append(parts, fmt.Sprintf("col=%d", err.Location.Column))
		}
		parts = append(parts, fmt.Sprintf("msg=%q", err.Message))
		fmt.Fprintln(os.Stderr, strings.Join(parts, " "))
	}
}

func emitTransformErrors(errs []*rules.TransformError, format string) {
	if format == "json" {
		values := make([]any, 0, len(errs))
		for _, err := range errs {
			value := map[string]any{
				"type":    "runtime",
				"code":    string(err.Kind),
				"message": err.Message,
			}
			if err.Path != "" {
				value["path"] = err.Path
			}
			values = append(values, value)
		}
		fmt.Fprintln(os.Stderr, rules.EncodeRecord(values))
		return
	}

	for _, err := range errs {
		var parts []string
		parts = append(parts, "code="+string(err.Kind))
		if err.Path != "" {
			parts = append(parts, "path="+err.Path)
		}
		parts = append(parts, fmt.Sprintf("msg=%q", err.Message))
		fmt.Fprintln(os.Stderr, strings.Join(parts, " "))
	}
}

func emitTransformWarnings(warnings []rules.TransformWarning, format string) {
	if len(warnings) == 0 {
		return
	}

	if format == "json" {
		values := make([]any, 0, len(warnings))
		for _, warning := range warnings {
			value := map[string]any{
				"type":    "warning",
				"code":    string(warning.Kind),
				"message": warning.Message,
			}
			if warning.Path != "" {
				value["path"] = warning.Path
			}
			values = append(values, value)
		}
		fmt.Fprintln(os.Stderr, rules.EncodeRecord(values))
		return
	}

	for _, warning := range warnings {
		var parts []string
		parts = append(parts, "code="+string(warning.Kind))
		if warning.Path != "" {
			parts = append(parts, "path="+warning.Path)
		}
		parts = append(parts, fmt.Sprintf("msg=%q", warning.Message))
		fmt.Fprintln(os.Stderr, strings.Join(parts, " "))
	}
}

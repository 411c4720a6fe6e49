// internal/rules/writer.go
package rules

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
)

/*
 * Output encoding: a JSON array (default) or newline-delimited JSON with
 * one record per line and a trailing newline.
 *
 * Encoding goes through ojg with sorted object keys so outputs are
 * deterministic regardless of map iteration order; golden tests and the
 * ndjson/array equivalence depend on byte-stable record bodies.
 *
 * Floats and integers render distinctly: an integral float (a float cast
 * of 100, an average that lands on a whole number) emits as 100.0, never
 * 100. The engine keeps int64 and float64 apart all the way from input
 * parsing, so encodeValue only has to pin the literal form: floats are
 * pre-rendered to a raw number literal (json.Number) that ojg writes
 * verbatim.
 *
 * The NDJSON writer flushes every record so a slow consumer applies
 * backpressure naturally.
 */

var encodeOptions = ojg.Options{Sort: true}

// EncodeRecord renders one value as compact JSON with sorted keys.
func EncodeRecord(value any) string {
	return oj.JSON(encodeValue(value), &encodeOptions)
}

// encodeValue pre-renders float64 values as raw number literals carrying a
// decimal point (or exponent), recursing through containers. All other
// shapes pass through to ojg untouched.
func encodeValue(value any) any {
	switch v := value.(type) {
	case float64:
		return json.Number(formatFloatLiteral(v))
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = encodeValue(item)
		}
		return items
	case map[string]any:
		obj := make(map[string]any, len(v))
		for key, item := range v {
			obj[key] = encodeValue(item)
		}
		return obj
	default:
		return v
	}
}

// formatFloatLiteral renders a float64 in shortest form, forcing a ".0"
// suffix when the shortest form looks like an integer so the float/integer
// distinction survives the output.
func formatFloatLiteral(value float64) string {
	s := strconv.FormatFloat(value, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// WriteArray writes records as one JSON array followed by a newline.
func WriteArray(w io.Writer, records []any) error {
	if _, err := io.WriteString(w, EncodeRecord(records)); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// NDJSONWriter emits one record per line, flushing after each record.
type NDJSONWriter struct {
	w io.Writer
}

// NewNDJSONWriter wraps w for streaming output.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{w: w}
}

// Write emits one record and its newline, then flushes when the underlying
// writer supports it.
func (n *NDJSONWriter) Write(record any) error {
	if _, err := io.WriteString(n.w, EncodeRecord(record)); err != nil {
		return err
	}
	if _, err := io.WriteString(n.w, "\n"); err != nil {
		return err
	}
	if flusher, ok := n.w.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

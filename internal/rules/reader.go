// internal/rules/reader.go
package rules

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
)

/*
 * Input reader adapters: CSV rows and JSON documents as record sequences.
 *
 * CSV rows become flat objects keyed by the header row or, for headerless
 * input, by the declared column names in order; every cell is a string and
 * type coercion stays a mapping-level concern. Rows shorter than the name
 * list simply omit the trailing keys.
 *
 * JSON input decodes with number preservation (integral numbers stay
 * integers) and resolves records_path when configured: an array yields a
 * record sequence, an object a single record, anything else is invalid.
 *
 * Both readers yield records one at a time through recordIterator so the
 * transformer streams without materialising outputs.
 */

type recordIterator interface {
	// next returns (record, true, nil), (nil, false, nil) at end, or an error.
	next() (any, bool, *TransformError)
}

func newRecordIterator(rule *RuleFile, input string) (recordIterator, *TransformError) {
	switch rule.Input.Format {
	case FormatCSV:
		return newCSVIterator(rule, input)
	case FormatJSON:
		records, err := parseJSONRecords(rule, input)
		if err != nil {
			return nil, err
		}
		return &jsonIterator{records: records}, nil
	default:
		return nil, newTransformError(KindInvalidInput, "input.format must be csv or json", "input.format")
	}
}

type csvIterator struct {
	reader  *csv.Reader
	headers []string
	done    bool
}

func newCSVIterator(rule *RuleFile, input string) (*csvIterator, *TransformError) {
	spec := rule.Input.CSV
	if spec == nil {
		return nil, newTransformError(KindInvalidInput, "input.csv is required when format=csv", "input.csv")
	}

	delimiter := []rune(spec.Delimiter)
	if len(delimiter) != 1 {
		return nil, newTransformError(KindInvalidInput, "csv.delimiter must be a single character", "input.csv.delimiter")
	}

	reader := csv.NewReader(strings.NewReader(input))
	reader.Comma = delimiter[0]
	reader.FieldsPerRecord = -1

	var headers []string
	if spec.HasHeader {
		record, err := reader.Read()
		if err == io.EOF {
			headers = nil
		} else if err != nil {
			return nil, newTransformError(KindInvalidInput, "failed to read csv header: "+err.Error(), "")
		} else {
			headers = record
		}
	} else {
		if len(spec.Columns) == 0 {
			return nil, newTransformError(KindInvalidInput, "csv.columns is required when has_header=false", "input.csv.columns")
		}
		headers = make([]string, len(spec.Columns))
		for i, column := range spec.Columns {
			headers[i] = column.Name
		}
	}

	return &csvIterator{reader: reader, headers: headers}, nil
}

func (it *csvIterator) next() (any, bool, *TransformError) {
	if it.done {
		return nil, false, nil
	}

	record, err := it.reader.Read()
	if err == io.EOF {
		it.done = true
		return nil, false, nil
	}
	if err != nil {
		it.done = true
		return nil, false, newTransformError(KindInvalidInput, "failed to read csv record: "+err.Error(), "")
	}

	obj := make(map[string]any, len(it.headers))
	for i, name := range it.headers {
		if i < len(record) {
			obj[name] = record[i]
		}
	}
	return obj, true, nil
}

type jsonIterator struct {
	records []any
	index   int
}

func (it *jsonIterator) next() (any, bool, *TransformError) {
	if it.index >= len(it.records) {
		return nil, false, nil
	}
	record := it.records[it.index]
	it.index++
	return record, true, nil
}

func parseJSONRecords(rule *RuleFile, input string) ([]any, *TransformError) {
	value, err := decodeJSON(input)
	if err != nil {
		return nil, newTransformError(KindInvalidInput, "failed to parse JSON input: "+err.Error(), "")
	}

	recordsValue := value
	if rule.Input.JSON != nil && rule.Input.JSON.RecordsPath != "" {
		tokens, perr := ParsePath(rule.Input.JSON.RecordsPath)
		if perr != nil {
			return nil, newTransformError(KindInvalidRecordsPath, perr.Error(), "input.json.records_path")
		}
		found, ok := GetPath(value, tokens)
		if !ok {
			return nil, newTransformError(KindInvalidRecordsPath, "records_path does not exist", "input.json.records_path")
		}
		recordsValue = found
	}

	switch v := recordsValue.(type) {
	case []any:
		return v, nil
	case map[string]any:
		return []any{v}, nil
	default:
		return nil, newTransformError(KindInvalidInput, "records_path must point to an array or object", "")
	}
}

// decodeJSON parses with number preservation: integral numbers decode to
// int64, other numbers to float64, and numbers outside the float64 range
// keep their literal text as a string.
func decodeJSON(input string) (any, error) {
	decoder := json.NewDecoder(strings.NewReader(input))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	return normalizeNumbers(value), nil
}

func normalizeNumbers(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case []any:
		for i, item := range v {
			v[i] = normalizeNumbers(item)
		}
		return v
	case map[string]any:
		for key, item := range v {
			v[key] = normalizeNumbers(item)
		}
		return v
	default:
		return v
	}
}

// DecodeJSONValue parses a standalone JSON document (CLI context files,
// MCP tool payloads) with the engine's number conventions.
func DecodeJSONValue(input string) (any, error) {
	return decodeJSON(input)
}

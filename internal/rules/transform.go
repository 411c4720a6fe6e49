// internal/rules/transform.go
package rules

import "strconv"

/*
 * Record transformation orchestration.
 *
 * Per record: evaluate record_when (false/missing/null/error skips the
 * record, errors demoted to warnings), then apply mappings in declared
 * order. Per mapping: `when` gates (same demotion rule), the value comes
 * from exactly one of source/value/expr, missing resolves through
 * default/required/skip, null through required/keep, the optional type
 * cast runs last, and the result lands at the target path with
 * intermediate objects created on demand.
 *
 * Transform streams records so the whole input never needs to fit the
 * output buffer; the array-mode entry point just drains the stream.
 * Preflight runs the identical pipeline but discards outputs and collects
 * per-record errors instead of aborting on the first one; only input-level
 * failures (unreadable input, bad records_path) abort it.
 */

// StreamItem is one transformed record with the warnings its evaluation
// produced. Output is nil for records skipped by record_when with warnings.
type StreamItem struct {
	Output    map[string]any
	HasOutput bool
	Warnings  []TransformWarning
}

// Stream lazily transforms records. Create with NewStream, drain with Next.
type Stream struct {
	rule    *RuleFile
	context any
	records recordIterator
	done    bool
}

// NewStream prepares a record stream over input. Input-shape problems
// (missing csv section, unparsable JSON, dead records_path) surface here.
func NewStream(rule *RuleFile, input string, context any) (*Stream, *TransformError) {
	records, err := newRecordIterator(rule, input)
	if err != nil {
		return nil, err
	}
	return &Stream{rule: rule, context: context, records: records}, nil
}

// Next produces the next stream item, or (nil, nil) at end of input.
// A record-level error terminates the stream.
func (s *Stream) Next() (*StreamItem, *TransformError) {
	if s.done {
		return nil, nil
	}

	for {
		record, ok, err := s.records.next()
		if err != nil {
			s.done = true
			return nil, err
		}
		if !ok {
			s.done = true
			return nil, nil
		}

		var warnings []TransformWarning
		if !evalRecordWhen(s.rule, record, s.context, &warnings) {
			if len(warnings) == 0 {
				continue
			}
			return &StreamItem{Warnings: warnings}, nil
		}

		out, aerr := applyMappings(s.rule, record, s.context, &warnings)
		if aerr != nil {
			s.done = true
			return nil, aerr
		}
		return &StreamItem{Output: out, HasOutput: true, Warnings: warnings}, nil
	}
}

// Transform runs the full input and returns the output records.
func Transform(rule *RuleFile, input string, context any) ([]any, []TransformWarning, *TransformError) {
	stream, err := NewStream(rule, input, context)
	if err != nil {
		return nil, nil, err
	}

	outputs := []any{}
	var warnings []TransformWarning
	for {
		item, err := stream.Next()
		if err != nil {
			return nil, nil, err
		}
		if item == nil {
			return outputs, warnings, nil
		}
		warnings = append(warnings, item.Warnings...)
		if item.HasOutput {
			outputs = append(outputs, item.Output)
		}
	}
}

// Preflight exercises the evaluator against real input without emitting
// output. Record-level errors are collected across all records; only
// input-level failures abort.
func Preflight(rule *RuleFile, input string, context any) ([]TransformWarning, []*TransformError, *TransformError) {
	records, err := newRecordIterator(rule, input)
	if err != nil {
		return nil, nil, err
	}

	var warnings []TransformWarning
	var diagnostics []*TransformError
	for {
		record, ok, rerr := records.next()
		if rerr != nil {
			return warnings, diagnostics, rerr
		}
		if !ok {
			return warnings, diagnostics, nil
		}

		if !evalRecordWhen(rule, record, context, &warnings) {
			continue
		}
		if _, aerr := applyMappings(rule, record, context, &warnings); aerr != nil {
			diagnostics = append(diagnostics, aerr)
		}
	}
}

func applyMappings(rule *RuleFile, record, context any, warnings *[]TransformWarning) (map[string]any, *TransformError) {
	out := map[string]any{}
	eval := &evaluator{record: record, context: context, out: out}

	for index, mapping := range rule.Mappings {
		mappingPath := "mappings[" + strconv.Itoa(index) + "]"
		if !evalWhen(eval, mapping, mappingPath, warnings) {
			continue
		}
		value, ok, err := evalMapping(eval, mapping, mappingPath)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := setTargetPath(out, mapping.Target, value, mappingPath); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// evalMapping resolves one mapping's value and applies the missing/null/
// type policies. ok=false means the mapping writes nothing.
func evalMapping(eval *evaluator, mapping Mapping, mappingPath string) (any, bool, *TransformError) {
	var result EvalResult
	var err *TransformError

	switch {
	case mapping.Source != "":
		result, err = resolveSource(eval, mapping.Source, mappingPath)
	case mapping.HasValue:
		result = present(mapping.Value)
	case mapping.Expr != nil:
		result, err = eval.eval(mapping.Expr, mappingPath+".expr", nil)
	default:
		return nil, false, newTransformError(KindInvalidInput, "mapping must define source, value, or expr", mappingPath)
	}
	if err != nil {
		return nil, false, err
	}

	var value any
	if result.Missing {
		switch {
		case mapping.HasDefault:
			value = mapping.Default
		case mapping.Required:
			return nil, false, newTransformError(KindMissingRequired, "required value is missing", mappingPath)
		default:
			return nil, false, nil
		}
	} else {
		value = result.Value
	}

	if value == nil {
		if mapping.Required {
			return nil, false, newTransformError(KindMissingRequired, "required value is null", mappingPath)
		}
		return nil, true, nil
	}

	if mapping.Type != "" {
		cast, cerr := castValue(value, mapping.Type, mappingPath+".type")
		if cerr != nil {
			return nil, false, cerr
		}
		value = cast
	}

	return value, true, nil
}

func resolveSource(eval *evaluator, source, mappingPath string) (EvalResult, *TransformError) {
	sourcePath := mappingPath + ".source"
	ns, path, ok := parseSourceRef(source)
	if !ok {
		return missingResult(), newTransformError(KindInvalidRef, "ref namespace must be input|context|out", sourcePath)
	}
	tokens, perr := ParsePath(path)
	if perr != nil {
		return missingResult(), newTransformError(KindInvalidRef, perr.Error(), sourcePath)
	}

	switch ns {
	case nsInput:
		return resolveResult(eval.record, tokens), nil
	case nsContext:
		if eval.context == nil {
			return missingResult(), nil
		}
		return resolveResult(eval.context, tokens), nil
	case nsOut:
		return resolveResult(eval.out, tokens), nil
	default:
		return missingResult(), newTransformError(KindInvalidRef, "ref namespace must be input|context|out", sourcePath)
	}
}

// evalWhen gates a mapping. Evaluation failures are warnings, not errors:
// a broken condition means the condition did not hold.
func evalWhen(eval *evaluator, mapping Mapping, mappingPath string, warnings *[]TransformWarning) bool {
	if mapping.When == nil {
		return true
	}
	flag, err := eval.evalBool(mapping.When, mappingPath+".when")
	if err != nil {
		*warnings = append(*warnings, warningFromError(err))
		return false
	}
	return flag
}

// evalRecordWhen gates a whole record before any mapping runs; out is
// empty at that point.
func evalRecordWhen(rule *RuleFile, record, context any, warnings *[]TransformWarning) bool {
	if rule.RecordWhen == nil {
		return true
	}
	eval := &evaluator{record: record, context: context, out: map[string]any{}}
	flag, err := eval.evalBool(rule.RecordWhen, "record_when")
	if err != nil {
		*warnings = append(*warnings, warningFromError(err))
		return false
	}
	return flag
}

// setTargetPath writes value into out at the mapping target, creating
// intermediate objects. Targets are key-only; collisions with non-object
// values are InvalidTarget.
func setTargetPath(out map[string]any, target string, value any, mappingPath string) *TransformError {
	targetPath := mappingPath + ".target"
	tokens, perr := ParsePath(target)
	if perr != nil {
		return newTransformError(KindInvalidTarget, perr.Error(), targetPath)
	}
	if len(tokens) == 0 {
		return newTransformError(KindInvalidTarget, "target path is invalid", targetPath)
	}

	current := out
	for i, token := range tokens {
		if token.IsIndex {
			return newTransformError(KindInvalidTarget, "target path must not include indexes", targetPath)
		}
		if i == len(tokens)-1 {
			current[token.Key] = value
			return nil
		}

		entry, exists := current[token.Key]
		if !exists {
			child := map[string]any{}
			current[token.Key] = child
			current = child
			continue
		}
		child, isObject := entry.(map[string]any)
		if !isObject {
			return newTransformError(KindInvalidTarget, "target path conflicts with non-object value", targetPath)
		}
		current = child
	}
	return nil
}

// internal/rules/eval_string.go
package rules

import "strings"

/*
 * String and selection operators: concat, coalesce, to_string, trim,
 * lowercase, uppercase, replace, split, pad_start/pad_end, lookup and
 * lookup_first.
 *
 * Missing/null policy per operator follows the operation table: string ops
 * propagate a missing argument as missing and reject null; coalesce skips
 * both missing and null and yields missing when nothing survives; lookup
 * propagates a missing collection or match value, rejects a null collection
 * or match value, and yields missing for an empty result set.
 *
 * lookup compares canonical string forms on both sides, so numeric keys
 * match their string spellings ("10" matches 10 and 10.0). key_path and
 * output_path must be non-empty string literals; they are paths into the
 * collection elements, not expressions.
 */

func opConcat(e *evaluator, c opCall) (EvalResult, *TransformError) {
	var parts strings.Builder
	for i := 0; i < c.totalLen(); i++ {
		value, ok, err := e.argValueAt(c, i)
		if err != nil {
			return missingResult(), err
		}
		if !ok {
			return missingResult(), nil
		}
		if value == nil {
			return missingResult(), exprError("concat does not accept null", c.argPath(i))
		}
		part, serr := valueToString(value, c.argPath(i))
		if serr != nil {
			return missingResult(), serr
		}
		parts.WriteString(part)
	}
	return present(parts.String()), nil
}

func opCoalesce(e *evaluator, c opCall) (EvalResult, *TransformError) {
	for i := 0; i < c.totalLen(); i++ {
		result, err := e.evalArgAt(c, i)
		if err != nil {
			return missingResult(), err
		}
		if result.Missing || result.Value == nil {
			continue
		}
		return result, nil
	}
	return missingResult(), nil
}

// unaryStringOp factors the shared shape of to_string/trim/lowercase/
// uppercase: one argument, missing propagates, null errors.
func unaryStringOp(e *evaluator, c opCall, op func(value any, path string) (any, *TransformError)) (EvalResult, *TransformError) {
	value, ok, err := e.argNonNullAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	if !ok {
		return missingResult(), nil
	}
	result, oerr := op(value, c.argPath(0))
	if oerr != nil {
		return missingResult(), oerr
	}
	return present(result), nil
}

func opToString(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return unaryStringOp(e, c, func(value any, path string) (any, *TransformError) {
		s, err := valueToString(value, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

func opTrim(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return unaryStringOp(e, c, func(value any, path string) (any, *TransformError) {
		s, err := valueAsString(value, path)
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(s), nil
	})
}

func opLowercase(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return unaryStringOp(e, c, func(value any, path string) (any, *TransformError) {
		s, err := valueAsString(value, path)
		if err != nil {
			return nil, err
		}
		return strings.ToLower(s), nil
	})
}

func opUppercase(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return unaryStringOp(e, c, func(value any, path string) (any, *TransformError) {
		s, err := valueAsString(value, path)
		if err != nil {
			return nil, err
		}
		return strings.ToUpper(s), nil
	})
}

type replaceMode int

const (
	replaceLiteralFirst replaceMode = iota
	replaceLiteralAll
	replaceRegexFirst
	replaceRegexAll
)

func parseReplaceMode(value, path string) (replaceMode, *TransformError) {
	switch value {
	case "all":
		return replaceLiteralAll, nil
	case "regex":
		return replaceRegexFirst, nil
	case "regex_all":
		return replaceRegexAll, nil
	default:
		return 0, exprError("replace mode must be all|regex|regex_all", path)
	}
}

func opReplace(e *evaluator, c opCall) (EvalResult, *TransformError) {
	value, ok, err := e.argStringAt(c, 0)
	if err != nil || !ok {
		return missingResult(), err
	}
	pattern, ok, err := e.argStringAt(c, 1)
	if err != nil || !ok {
		return missingResult(), err
	}
	replacement, ok, err := e.argStringAt(c, 2)
	if err != nil || !ok {
		return missingResult(), err
	}

	mode := replaceLiteralFirst
	if c.totalLen() == 4 {
		modeValue, ok, err := e.argStringAt(c, 3)
		if err != nil || !ok {
			return missingResult(), err
		}
		mode, err = parseReplaceMode(modeValue, c.argPath(3))
		if err != nil {
			return missingResult(), err
		}
	}

	var replaced string
	switch mode {
	case replaceLiteralFirst:
		replaced = strings.Replace(value, pattern, replacement, 1)
	case replaceLiteralAll:
		replaced = strings.ReplaceAll(value, pattern, replacement)
	case replaceRegexFirst:
		re, rerr := cachedRegex(pattern, c.argPath(1))
		if rerr != nil {
			return missingResult(), rerr
		}
		done := false
		replaced = re.ReplaceAllStringFunc(value, func(match string) string {
			if done {
				return match
			}
			done = true
			return re.ReplaceAllString(match, replacement)
		})
	case replaceRegexAll:
		re, rerr := cachedRegex(pattern, c.argPath(1))
		if rerr != nil {
			return missingResult(), rerr
		}
		replaced = re.ReplaceAllString(value, replacement)
	}

	return present(replaced), nil
}

func opSplit(e *evaluator, c opCall) (EvalResult, *TransformError) {
	value, ok, err := e.argStringAt(c, 0)
	if err != nil || !ok {
		return missingResult(), err
	}
	delimiter, ok, err := e.argStringAt(c, 1)
	if err != nil || !ok {
		return missingResult(), err
	}
	if delimiter == "" {
		return missingResult(), exprError("split delimiter must not be empty", c.argPath(1))
	}

	segments := strings.Split(value, delimiter)
	parts := make([]any, len(segments))
	for i, segment := range segments {
		parts[i] = segment
	}
	return present(parts), nil
}

func opPadStart(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return evalPad(e, c, true)
}

func opPadEnd(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return evalPad(e, c, false)
}

func evalPad(e *evaluator, c opCall, padStart bool) (EvalResult, *TransformError) {
	value, ok, err := e.argStringAt(c, 0)
	if err != nil || !ok {
		return missingResult(), err
	}

	lengthValue, ok, err := e.argNonNullAt(c, 1)
	if err != nil || !ok {
		return missingResult(), err
	}
	length, ierr := valueToInt64(lengthValue, c.argPath(1), "pad length must be a non-negative integer")
	if ierr != nil {
		return missingResult(), ierr
	}
	if length < 0 {
		return missingResult(), exprError("pad length must be a non-negative integer", c.argPath(1))
	}

	pad := " "
	if c.totalLen() == 3 {
		pad, ok, err = e.argStringAt(c, 2)
		if err != nil || !ok {
			return missingResult(), err
		}
	}

	return present(padString(value, int(length), pad, padStart)), nil
}

// padString pads by rune count; an empty pad string leaves value unchanged.
func padString(value string, targetLen int, pad string, padStart bool) string {
	valueLen := len([]rune(value))
	if valueLen >= targetLen || pad == "" {
		return value
	}

	needed := targetLen - valueLen
	padRunes := []rune(pad)
	filler := make([]rune, needed)
	for i := range filler {
		filler[i] = padRunes[i%len(padRunes)]
	}

	if padStart {
		return string(filler) + value
	}
	return value + string(filler)
}

func opLookup(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return evalLookup(e, c, false)
}

func opLookupFirst(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return evalLookup(e, c, true)
}

func evalLookup(e *evaluator, c opCall, firstOnly bool) (EvalResult, *TransformError) {
	collection, ok, err := e.argValueAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	if !ok {
		return missingResult(), nil
	}
	items, isArray := collection.([]any)
	if !isArray {
		return missingResult(), exprError("lookup collection must be an array", c.argPath(0))
	}

	keyTokens, kerr := lookupPathLiteral(c, 1, "key_path")
	if kerr != nil {
		return missingResult(), kerr
	}

	var outputTokens []PathToken
	if c.totalLen() == 4 {
		outputTokens, kerr = lookupPathLiteral(c, 3, "output_path")
		if kerr != nil {
			return missingResult(), kerr
		}
	}

	matchValue, ok, err := e.argValueAt(c, 2)
	if err != nil {
		return missingResult(), err
	}
	if !ok {
		return missingResult(), nil
	}
	if matchValue == nil {
		return missingResult(), exprError("lookup match_value must not be null", c.argPath(2))
	}
	matchKey, serr := valueToString(matchValue, c.argPath(2))
	if serr != nil {
		return missingResult(), serr
	}

	var results []any
	for _, item := range items {
		keyValue, found := GetPath(item, keyTokens)
		if !found {
			continue
		}
		itemKey, ok := valueToStringOptional(keyValue)
		if !ok || itemKey != matchKey {
			continue
		}

		selected := item
		if outputTokens != nil {
			selected, found = GetPath(item, outputTokens)
			if !found {
				continue
			}
		}

		if firstOnly {
			return present(selected), nil
		}
		results = append(results, selected)
	}

	if len(results) == 0 {
		return missingResult(), nil
	}
	return present(results), nil
}

// lookupPathLiteral extracts and parses a lookup path argument, which must
// be a non-empty string literal in the rule source.
func lookupPathLiteral(c opCall, index int, name string) ([]PathToken, *TransformError) {
	expr := c.argExprAt(index)
	if expr == nil {
		return nil, exprError("lookup "+name+" must be a non-empty string literal", c.argPath(index))
	}
	path, ok := literalString(expr)
	if !ok || path == "" {
		return nil, exprError("lookup "+name+" must be a non-empty string literal", c.argPath(index))
	}
	tokens, err := ParsePath(path)
	if err != nil {
		return nil, exprError("lookup "+name+" is invalid", c.argPath(index))
	}
	return tokens, nil
}

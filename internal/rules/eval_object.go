// internal/rules/eval_object.go
package rules

import (
	"sort"
	"strconv"
	"strings"
)

/*
 * Object operators: merge/deep_merge, get, pick/omit, keys/values/entries,
 * object_flatten/object_unflatten.
 *
 * merge skips missing arguments entirely (all-missing yields missing) and
 * rejects null and non-objects. deep merge recurses only where both sides
 * hold objects; otherwise the incoming value wins.
 *
 * pick rebuilds a fresh tree from the selected paths (terminal indexes
 * allowed, so picked array elements keep their positions); omit removes
 * paths in place on a copy. Both reject overlapping path sets: a path that
 * prefixes another makes the selection ambiguous. object_flatten renders
 * nested keys in path syntax (bracket-quoting dotted keys) and
 * object_unflatten inverts it, rejecting index tokens and conflicts.
 *
 * Key enumeration (keys/values/entries/flatten) sorts keys so results are
 * deterministic across runs; Go map iteration order would otherwise leak
 * into outputs.
 */

func opMerge(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return evalMerge(e, c, false)
}

func opDeepMerge(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return evalMerge(e, c, true)
}

func evalMerge(e *evaluator, c opCall, deep bool) (EvalResult, *TransformError) {
	var result map[string]any
	for i := 0; i < c.totalLen(); i++ {
		value, ok, err := e.argValueAt(c, i)
		if err != nil {
			return missingResult(), err
		}
		if !ok {
			continue
		}
		if value == nil {
			return missingResult(), exprError("expr arg must not be null", c.argPath(i))
		}
		obj, isObject := value.(map[string]any)
		if !isObject {
			return missingResult(), exprError("expr arg must be object", c.argPath(i))
		}

		if result == nil {
			result = copyObject(obj)
		} else {
			mergeObject(result, obj, deep)
		}
	}

	if result == nil {
		return missingResult(), nil
	}
	return present(result), nil
}

func copyObject(obj map[string]any) map[string]any {
	copied := make(map[string]any, len(obj))
	for key, value := range obj {
		copied[key] = value
	}
	return copied
}

func mergeObject(target map[string]any, incoming map[string]any, deep bool) {
	for key, value := range incoming {
		if deep {
			targetObj, targetIsObj := target[key].(map[string]any)
			incomingObj, incomingIsObj := value.(map[string]any)
			if targetIsObj && incomingIsObj {
				merged := copyObject(targetObj)
				mergeObject(merged, incomingObj, true)
				target[key] = merged
				continue
			}
		}
		target[key] = value
	}
}

func opGet(e *evaluator, c opCall) (EvalResult, *TransformError) {
	base, ok, err := e.argValueAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	if !ok || base == nil {
		return missingResult(), nil
	}

	pathValue, ok, err := e.argNonNullAt(c, 1)
	if err != nil || !ok {
		return missingResult(), err
	}
	path, serr := valueAsString(pathValue, c.argPath(1))
	if serr != nil {
		return missingResult(), serr
	}
	if path == "" {
		return missingResult(), exprError("path must be a non-empty string", c.argPath(1))
	}
	tokens, perr := ParsePath(path)
	if perr != nil {
		return missingResult(), exprError(perr.Error(), c.argPath(1))
	}

	return resolveResult(base, tokens), nil
}

func opPick(e *evaluator, c opCall) (EvalResult, *TransformError) {
	base, ok, err := e.argValueAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	if !ok {
		return missingResult(), nil
	}
	if base == nil {
		return missingResult(), exprError("expr arg must not be null", c.argPath(0))
	}
	if _, isObject := base.(map[string]any); !isObject {
		return missingResult(), exprError("expr arg must be object", c.argPath(0))
	}

	paths, ok, perr := evalPathsArg(e, c, 1, true)
	if perr != nil || !ok {
		return missingResult(), perr
	}

	output := any(map[string]any{})
	for _, tokens := range paths {
		if value, found := GetPath(base, tokens); found {
			updated, serr := setPathWithIndexes(output, tokens, value, c.argPath(1))
			if serr != nil {
				return missingResult(), serr
			}
			output = updated
		}
	}
	return present(output), nil
}

func opOmit(e *evaluator, c opCall) (EvalResult, *TransformError) {
	base, ok, err := e.argValueAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	if !ok {
		return missingResult(), nil
	}
	if base == nil {
		return missingResult(), exprError("expr arg must not be null", c.argPath(0))
	}
	obj, isObject := base.(map[string]any)
	if !isObject {
		return missingResult(), exprError("expr arg must be object", c.argPath(0))
	}

	paths, ok, perr := evalPathsArg(e, c, 1, false)
	if perr != nil || !ok {
		return missingResult(), perr
	}

	result := deepCopyValue(obj)
	for _, tokens := range paths {
		result = removePath(result, tokens)
	}
	return present(result), nil
}

// objectUnary factors the single-object-argument operators.
func objectUnary(e *evaluator, c opCall, op func(obj map[string]any, path string) (any, *TransformError)) (EvalResult, *TransformError) {
	value, ok, err := e.argValueAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	if !ok {
		return missingResult(), nil
	}
	if value == nil {
		return missingResult(), exprError("expr arg must not be null", c.argPath(0))
	}
	obj, isObject := value.(map[string]any)
	if !isObject {
		return missingResult(), exprError("expr arg must be object", c.argPath(0))
	}

	result, oerr := op(obj, c.argPath(0))
	if oerr != nil {
		return missingResult(), oerr
	}
	return present(result), nil
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func opKeys(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return objectUnary(e, c, func(obj map[string]any, _ string) (any, *TransformError) {
		keys := sortedKeys(obj)
		result := make([]any, len(keys))
		for i, key := range keys {
			result[i] = key
		}
		return result, nil
	})
}

func opValues(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return objectUnary(e, c, func(obj map[string]any, _ string) (any, *TransformError) {
		keys := sortedKeys(obj)
		result := make([]any, len(keys))
		for i, key := range keys {
			result[i] = obj[key]
		}
		return result, nil
	})
}

func opEntries(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return objectUnary(e, c, func(obj map[string]any, _ string) (any, *TransformError) {
		keys := sortedKeys(obj)
		result := make([]any, len(keys))
		for i, key := range keys {
			result[i] = map[string]any{"key": key, "value": obj[key]}
		}
		return result, nil
	})
}

func opObjectFlatten(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return objectUnary(e, c, func(obj map[string]any, path string) (any, *TransformError) {
		output := make(map[string]any)
		if err := flattenObject(obj, nil, output, path); err != nil {
			return nil, err
		}
		return output, nil
	})
}

func flattenObject(obj map[string]any, tokens []PathToken, output map[string]any, path string) *TransformError {
	for _, key := range sortedKeys(obj) {
		if key == "" {
			return exprError("object_flatten does not support empty keys", path)
		}
		if strings.ContainsAny(key, "[]") {
			return exprError("object_flatten does not support keys with '[' or ']'", path)
		}
		value := obj[key]
		tokens = append(tokens, KeyToken(key))
		if child, isObject := value.(map[string]any); isObject && len(child) > 0 {
			if err := flattenObject(child, tokens, output, path); err != nil {
				return err
			}
		} else if isObject {
			output[FormatPathTokens(tokens)] = map[string]any{}
		} else {
			output[FormatPathTokens(tokens)] = value
		}
		tokens = tokens[:len(tokens)-1]
	}
	return nil
}

func opObjectUnflatten(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return objectUnary(e, c, func(obj map[string]any, path string) (any, *TransformError) {
		keys := sortedKeys(obj)
		paths := make([][]PathToken, 0, len(keys))
		for _, key := range keys {
			tokens, err := ParsePath(key)
			if err != nil {
				return nil, exprError(err.Error(), path)
			}
			for _, token := range tokens {
				if token.IsIndex {
					return nil, exprError("array indexes are not allowed in path", path)
				}
			}
			if hasPathConflict(paths, tokens) {
				return nil, exprError("path conflicts with another path", path)
			}
			paths = append(paths, tokens)
		}

		root := any(map[string]any{})
		for i, tokens := range paths {
			if err := setPathObjectOnly(&root, tokens, obj[keys[i]], path); err != nil {
				return nil, err
			}
		}
		return root, nil
	})
}

// evalPathsArg reads a path-or-path-array argument for pick/omit.
// Duplicates are dropped; overlapping paths and (for omit) terminal index
// tokens are errors. Returns ok=false when the argument is missing.
func evalPathsArg(e *evaluator, c opCall, index int, allowTerminalIndex bool) ([][]PathToken, bool, *TransformError) {
	value, ok, err := e.argValueAt(c, index)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	if value == nil {
		return nil, false, exprError("expr arg must not be null", c.argPath(index))
	}

	type pathItem struct {
		path    string
		display string
	}
	var items []pathItem
	switch v := value.(type) {
	case string:
		items = []pathItem{{path: v, display: c.argPath(index)}}
	case []any:
		for i, item := range v {
			display := c.argPath(index) + "[" + strconv.Itoa(i) + "]"
			s, isString := item.(string)
			if !isString {
				return nil, false, exprError("paths must be a string or array of strings", display)
			}
			items = append(items, pathItem{path: s, display: display})
		}
	default:
		return nil, false, exprError("paths must be a string or array of strings", c.argPath(index))
	}

	var paths [][]PathToken
	for _, item := range items {
		tokens, perr := ParsePath(item.path)
		if perr != nil {
			return nil, false, exprError(perr.Error(), item.display)
		}
		if !allowTerminalIndex && len(tokens) > 0 && tokens[len(tokens)-1].IsIndex {
			return nil, false, exprError("path must not end with array index", item.display)
		}
		if hasDuplicatePath(paths, tokens) {
			continue
		}
		if hasPathConflict(paths, tokens) {
			return nil, false, exprError("path conflicts with another path", item.display)
		}
		paths = append(paths, tokens)
	}
	return paths, true, nil
}

// setPathObjectOnly writes value at a key-only path, creating intermediate
// objects. Existing terminal values and non-object intermediates conflict.
func setPathObjectOnly(root *any, tokens []PathToken, value any, path string) *TransformError {
	if len(tokens) == 0 {
		return exprError("path is empty", path)
	}

	current := root
	for i, token := range tokens {
		if token.IsIndex {
			return exprError("array indexes are not allowed in path", path)
		}
		obj, isObject := (*current).(map[string]any)
		if !isObject {
			return exprError("path conflicts with non-object value", path)
		}

		if i == len(tokens)-1 {
			if _, exists := obj[token.Key]; exists {
				return exprError("path conflicts with existing value", path)
			}
			obj[token.Key] = value
			return nil
		}

		entry, exists := obj[token.Key]
		if !exists {
			entry = map[string]any{}
			obj[token.Key] = entry
		}
		if _, isObject := entry.(map[string]any); !isObject {
			return exprError("path conflicts with non-object value", path)
		}
		obj[token.Key] = entry
		current = &entry
	}
	return nil
}

// setPathWithIndexes writes value at a path that may traverse arrays,
// growing arrays with nulls as needed, and returns the updated container.
// Shape mismatches along the way conflict.
func setPathWithIndexes(root any, tokens []PathToken, value any, path string) (any, *TransformError) {
	if len(tokens) == 0 {
		return nil, exprError("path is empty", path)
	}
	token, rest := tokens[0], tokens[1:]

	if token.IsIndex {
		items, isArray := root.([]any)
		if !isArray {
			return nil, exprError("path conflicts with non-object value", path)
		}
		for len(items) <= token.Index {
			items = append(items, nil)
		}
		if len(rest) == 0 {
			items[token.Index] = value
			return items, nil
		}
		child := items[token.Index]
		if child == nil {
			child = emptyContainer(rest[0].IsIndex)
		}
		if err := checkContainerShape(child, rest[0].IsIndex, path); err != nil {
			return nil, err
		}
		updated, err := setPathWithIndexes(child, rest, value, path)
		if err != nil {
			return nil, err
		}
		items[token.Index] = updated
		return items, nil
	}

	obj, isObject := root.(map[string]any)
	if !isObject {
		return nil, exprError("path conflicts with non-object value", path)
	}
	if len(rest) == 0 {
		obj[token.Key] = value
		return obj, nil
	}
	child, exists := obj[token.Key]
	if !exists {
		child = emptyContainer(rest[0].IsIndex)
	}
	if err := checkContainerShape(child, rest[0].IsIndex, path); err != nil {
		return nil, err
	}
	updated, err := setPathWithIndexes(child, rest, value, path)
	if err != nil {
		return nil, err
	}
	obj[token.Key] = updated
	return obj, nil
}

func emptyContainer(isIndex bool) any {
	if isIndex {
		return []any{}
	}
	return map[string]any{}
}

func checkContainerShape(entry any, expectIndex bool, path string) *TransformError {
	_, isArray := entry.([]any)
	_, isObject := entry.(map[string]any)
	if (expectIndex && isArray) || (!expectIndex && isObject) {
		return nil
	}
	return exprError("path conflicts with non-object value", path)
}

// removePath deletes the value at tokens, if present, returning the updated
// container. Missing segments are a no-op.
func removePath(root any, tokens []PathToken) any {
	if len(tokens) == 0 {
		return root
	}
	first, rest := tokens[0], tokens[1:]

	if first.IsIndex {
		if items, isArray := root.([]any); isArray {
			if first.Index >= 0 && first.Index < len(items) && len(rest) > 0 {
				items[first.Index] = removePath(items[first.Index], rest)
			}
		}
		return root
	}

	if obj, isObject := root.(map[string]any); isObject {
		if len(rest) == 0 {
			delete(obj, first.Key)
			return obj
		}
		if next, exists := obj[first.Key]; exists {
			obj[first.Key] = removePath(next, rest)
		}
	}
	return root
}

// deepCopyValue clones a value tree so in-place edits cannot alias the
// input record or context.
func deepCopyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		copied := make(map[string]any, len(v))
		for key, item := range v {
			copied[key] = deepCopyValue(item)
		}
		return copied
	case []any:
		copied := make([]any, len(v))
		for i, item := range v {
			copied[i] = deepCopyValue(item)
		}
		return copied
	default:
		return v
	}
}

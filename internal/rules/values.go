// internal/rules/values.go
package rules

import (
	"math"
	"strconv"
	"strings"
)

/*
 * Value coercion helpers shared by the evaluator, the transformer's type
 * casts, and lookup key comparison.
 *
 * One canonical string form for numbers backs to_string, concat, ==, lookup
 * comparison, and the string cast: integers render without a decimal point
 * and floats render shortest-form, so 10.0 and 10 stringify identically.
 * Splitting that helper would silently fork golden outputs.
 *
 * Numeric parsing accepts numbers and numeric strings (finite 64-bit float
 * after parsing). Integer-only parameters additionally require a zero
 * fractional part.
 */

// numberToString renders a number in canonical form.
// Trailing zeros and a bare trailing point are stripped: 10.0 -> "10",
// 10.50 -> "10.5".
func numberToString(value any) string {
	switch n := value.(type) {
	case int64:
		return strconv.FormatInt(n, 10)
	case int:
		return strconv.Itoa(n)
	case float64:
		s := strconv.FormatFloat(n, 'f', -1, 64)
		if strings.Contains(s, ".") {
			s = strings.TrimRight(s, "0")
			s = strings.TrimSuffix(s, ".")
		}
		return s
	default:
		return ""
	}
}

// isNumber reports whether value is one of the engine's number shapes.
func isNumber(value any) bool {
	switch value.(type) {
	case int64, int, float64:
		return true
	default:
		return false
	}
}

// valueToString stringifies scalars: strings pass through, numbers use the
// canonical form, booleans render true/false. Everything else errors.
func valueToString(value any, path string) (string, *TransformError) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int64, int, float64:
		return numberToString(v), nil
	default:
		return "", exprError("value must be string/number/bool", path)
	}
}

// valueToStringOptional is valueToString without the error channel; used by
// lookup to skip non-stringifiable element keys.
func valueToStringOptional(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int64, int, float64:
		return numberToString(v), true
	default:
		return "", false
	}
}

// valueAsString requires value to already be a string.
func valueAsString(value any, path string) (string, *TransformError) {
	s, ok := value.(string)
	if !ok {
		return "", exprError("value must be a string", path)
	}
	return s, nil
}

// valueAsBool requires value to be a boolean.
func valueAsBool(value any, path string) (bool, *TransformError) {
	b, ok := value.(bool)
	if !ok {
		return false, exprError("value must be a boolean", path)
	}
	return b, nil
}

// valueToNumber converts a number or numeric string to a finite float64.
func valueToNumber(value any, path, message string) (float64, *TransformError) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, exprError(message, path)
		}
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, exprError(message, path)
		}
		return f, nil
	default:
		return 0, exprError(message, path)
	}
}

// valueToInt64 converts a number with zero fractional part, or a numeric
// string whose value has a zero fractional part, to int64.
func valueToInt64(value any, path, message string) (int64, *TransformError) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, exprError(message, path)
		}
		if v > math.MaxInt64 || v < math.MinInt64 {
			return 0, exprError(message, path)
		}
		return int64(v), nil
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, exprError(message, path)
		}
		return valueToInt64(f, path, message)
	default:
		return 0, exprError(message, path)
	}
}

// numberFromFloat materialises an arithmetic result.
// Integral values within int64 range become int64 so they render without a
// decimal point; non-finite results error.
func numberFromFloat(value float64, path string) (any, *TransformError) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, exprError("number result is not finite", path)
	}
	if value == math.Trunc(value) && value >= math.MinInt64 && value <= math.MaxInt64 {
		return int64(value), nil
	}
	return value, nil
}

// toRadixString renders an integer in the given base with lowercase digits.
func toRadixString(value int64, base int) string {
	return strconv.FormatInt(value, base)
}

// ensureEqCompatible rejects arrays and objects where stringified equality
// is required. Null is allowed; the comparison handles it separately.
func ensureEqCompatible(value any, path string) *TransformError {
	if value == nil {
		return nil
	}
	if _, ok := valueToStringOptional(value); ok {
		return nil
	}
	return exprError("value must be string/number/bool or null", path)
}

// castValue applies a mapping-level type cast.
func castValue(value any, typeName, path string) (any, *TransformError) {
	switch typeName {
	case "string":
		s, err := valueToString(value, path)
		if err != nil {
			return nil, typeCastError("string", path)
		}
		return s, nil
	case "int":
		return castToInt(value, path)
	case "float":
		return castToFloat(value, path)
	case "bool":
		return castToBool(value, path)
	default:
		return nil, newTransformError(KindTypeCastFailed, "type must be string|int|float|bool", path)
	}
}

func castToInt(value any, path string) (any, *TransformError) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, typeCastError("int", path)
		}
		return int64(v), nil
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, typeCastError("int", path)
		}
		return i, nil
	default:
		return nil, typeCastError("int", path)
	}
}

func castToFloat(value any, path string) (any, *TransformError) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, typeCastError("float", path)
		}
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, typeCastError("float", path)
		}
		return f, nil
	default:
		return nil, typeCastError("float", path)
	}
}

func castToBool(value any, path string) (any, *TransformError) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return nil, typeCastError("bool", path)
		}
	default:
		return nil, typeCastError("bool", path)
	}
}

func typeCastError(typeName, path string) *TransformError {
	return newTransformError(KindTypeCastFailed, "failed to cast to "+typeName, path)
}

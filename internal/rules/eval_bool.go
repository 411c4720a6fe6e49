// internal/rules/eval_bool.go
package rules

/*
 * Boolean and comparison operators.
 *
 * and/or short-circuit on the first decisive operand evaluated left to
 * right; missing operands are skipped but remembered, and a run that ends
 * without a decision while any operand was missing yields missing. not
 * propagates missing.
 *
 * == and != coerce missing to null; only null equals null, and otherwise
 * both sides compare by canonical string form (arrays and objects are
 * errors). The numeric comparisons also coerce missing to null, which then
 * fails numeric conversion, so a missing side is an error by construction.
 * ~= matches a string against a regex pattern; a missing operand
 * propagates missing (no null coercion), null and invalid patterns error.
 */

func opAnd(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return evalAndOr(e, c, true)
}

func opOr(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return evalAndOr(e, c, false)
}

func evalAndOr(e *evaluator, c opCall, isAnd bool) (EvalResult, *TransformError) {
	sawMissing := false
	for i := 0; i < c.totalLen(); i++ {
		result, err := e.evalArgAt(c, i)
		if err != nil {
			return missingResult(), err
		}
		if result.Missing {
			sawMissing = true
			continue
		}
		flag, berr := valueAsBool(result.Value, c.argPath(i))
		if berr != nil {
			return missingResult(), berr
		}
		if isAnd && !flag {
			return present(false), nil
		}
		if !isAnd && flag {
			return present(true), nil
		}
	}

	if sawMissing {
		return missingResult(), nil
	}
	return present(isAnd), nil
}

func opNot(e *evaluator, c opCall) (EvalResult, *TransformError) {
	result, err := e.evalArgAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	if result.Missing {
		return missingResult(), nil
	}
	flag, berr := valueAsBool(result.Value, c.argPath(0))
	if berr != nil {
		return missingResult(), berr
	}
	return present(!flag), nil
}

func opCompare(e *evaluator, c opCall) (EvalResult, *TransformError) {
	left, err := e.argValueOrNullAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	right, err := e.argValueOrNullAt(c, 1)
	if err != nil {
		return missingResult(), err
	}

	leftPath := c.argPath(0)
	rightPath := c.argPath(1)

	var result bool
	var cerr *TransformError
	switch c.op {
	case "==":
		result, cerr = compareEq(left, right, leftPath, rightPath)
	case "!=":
		result, cerr = compareEq(left, right, leftPath, rightPath)
		result = !result
	case "<":
		result, cerr = compareNumbers(left, right, leftPath, rightPath, func(l, r float64) bool { return l < r })
	case "<=":
		result, cerr = compareNumbers(left, right, leftPath, rightPath, func(l, r float64) bool { return l <= r })
	case ">":
		result, cerr = compareNumbers(left, right, leftPath, rightPath, func(l, r float64) bool { return l > r })
	case ">=":
		result, cerr = compareNumbers(left, right, leftPath, rightPath, func(l, r float64) bool { return l >= r })
	default:
		return missingResult(), exprError("expr.op is not supported", c.path+".op")
	}
	if cerr != nil {
		return missingResult(), cerr
	}
	return present(result), nil
}

// opRegexMatch implements ~=. Unlike the other comparisons it does not
// coerce missing to null: a missing operand propagates missing.
func opRegexMatch(e *evaluator, c opCall) (EvalResult, *TransformError) {
	left, ok, err := e.argValueAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	if !ok {
		return missingResult(), nil
	}
	right, ok, err := e.argValueAt(c, 1)
	if err != nil {
		return missingResult(), err
	}
	if !ok {
		return missingResult(), nil
	}

	result, merr := matchRegex(left, right, c.argPath(0), c.argPath(1))
	if merr != nil {
		return missingResult(), merr
	}
	return present(result), nil
}

// compareEq implements stringified equality with null handling: only
// null==null holds when either side is null.
func compareEq(left, right any, leftPath, rightPath string) (bool, *TransformError) {
	if left == nil || right == nil {
		return left == nil && right == nil, nil
	}
	leftValue, err := valueToString(left, leftPath)
	if err != nil {
		return false, err
	}
	rightValue, err := valueToString(right, rightPath)
	if err != nil {
		return false, err
	}
	return leftValue == rightValue, nil
}

func compareNumbers(left, right any, leftPath, rightPath string, compare func(l, r float64) bool) (bool, *TransformError) {
	leftValue, err := valueToNumber(left, leftPath, "comparison operand must be a number")
	if err != nil {
		return false, err
	}
	rightValue, err := valueToNumber(right, rightPath, "comparison operand must be a number")
	if err != nil {
		return false, err
	}
	return compare(leftValue, rightValue), nil
}

func matchRegex(left, right any, leftPath, rightPath string) (bool, *TransformError) {
	value, err := valueAsString(left, leftPath)
	if err != nil {
		return false, err
	}
	pattern, err := valueAsString(right, rightPath)
	if err != nil {
		return false, err
	}
	re, rerr := cachedRegex(pattern, rightPath)
	if rerr != nil {
		return false, rerr
	}
	return re.MatchString(value), nil
}

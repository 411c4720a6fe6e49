// internal/rules/eval_numeric.go
package rules

import "math"

/*
 * Arithmetic operators: + - * /, round, to_base.
 *
 * Operands are numbers or numeric strings; any missing operand propagates
 * missing, null is an error. Arithmetic runs in float64 and materialises
 * integral results as int64 so they render without a decimal point.
 * Division yielding a non-finite value (zero divisor included) is an
 * ExprError rather than Infinity in the output.
 *
 * round is half-away-from-zero with an optional non-negative scale capped
 * at 308 (beyond that the factor itself overflows). to_base renders
 * integers in bases 2-36 with lowercase digits.
 */

func opNumericAdd(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return evalNumeric(e, c, func(acc, operand float64) float64 { return acc + operand })
}

func opNumericSub(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return evalNumeric(e, c, func(acc, operand float64) float64 { return acc - operand })
}

func opNumericMul(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return evalNumeric(e, c, func(acc, operand float64) float64 { return acc * operand })
}

func opNumericDiv(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return evalNumeric(e, c, func(acc, operand float64) float64 { return acc / operand })
}

func evalNumeric(e *evaluator, c opCall, apply func(acc, operand float64) float64) (EvalResult, *TransformError) {
	var result float64
	for i := 0; i < c.totalLen(); i++ {
		value, ok, err := e.argNonNullAt(c, i)
		if err != nil || !ok {
			return missingResult(), err
		}
		number, nerr := valueToNumber(value, c.argPath(i), "operand must be a number")
		if nerr != nil {
			return missingResult(), nerr
		}
		if i == 0 {
			result = number
		} else {
			result = apply(result, number)
		}
	}

	materialised, merr := numberFromFloat(result, c.path)
	if merr != nil {
		return missingResult(), merr
	}
	return present(materialised), nil
}

func opRound(e *evaluator, c opCall) (EvalResult, *TransformError) {
	value, ok, err := e.argNonNullAt(c, 0)
	if err != nil || !ok {
		return missingResult(), err
	}
	number, nerr := valueToNumber(value, c.argPath(0), "operand must be a number")
	if nerr != nil {
		return missingResult(), nerr
	}

	var scale int64
	if c.totalLen() == 2 {
		scaleValue, ok, err := e.argNonNullAt(c, 1)
		if err != nil || !ok {
			return missingResult(), err
		}
		scale, nerr = valueToInt64(scaleValue, c.argPath(1), "scale must be a non-negative integer")
		if nerr != nil {
			return missingResult(), nerr
		}
		if scale < 0 {
			return missingResult(), exprError("scale must be a non-negative integer", c.argPath(1))
		}
		if scale > 308 {
			return missingResult(), exprError("scale is too large", c.argPath(1))
		}
	}

	var rounded float64
	if scale == 0 {
		rounded = math.Round(number)
	} else {
		factor := math.Pow(10, float64(scale))
		rounded = math.Round(number*factor) / factor
	}

	materialised, merr := numberFromFloat(rounded, c.path)
	if merr != nil {
		return missingResult(), merr
	}
	return present(materialised), nil
}

func opToBase(e *evaluator, c opCall) (EvalResult, *TransformError) {
	value, ok, err := e.argNonNullAt(c, 0)
	if err != nil || !ok {
		return missingResult(), err
	}
	baseValue, ok, err := e.argNonNullAt(c, 1)
	if err != nil || !ok {
		return missingResult(), err
	}

	number, nerr := valueToInt64(value, c.argPath(0), "value must be an integer")
	if nerr != nil {
		return missingResult(), nerr
	}
	base, nerr := valueToInt64(baseValue, c.argPath(1), "base must be an integer")
	if nerr != nil {
		return missingResult(), nerr
	}
	if base < 2 || base > 36 {
		return missingResult(), exprError("base must be between 2 and 36", c.argPath(1))
	}

	return present(toRadixString(number, int(base))), nil
}

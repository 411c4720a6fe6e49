// internal/rules/eval.go
package rules

import "strconv"

/*
 * Expression evaluator core.
 *
 * Evaluates expression trees against {input, context, out} with three-valued
 * results: a present value (which may be null), or missing. Missing never
 * reaches the output; the transformer turns it into default/required/skip.
 *
 * Operator dispatch goes through opTable, one entry per operator carrying
 * the total-arity range, the result-type classification and element-scope
 * metadata for the validator, and the eval function. The table is the
 * single source of truth for UnknownOp on both the static and runtime side.
 *
 * Chains inject the previous step's result as an implicit argument 0 of the
 * next op; all argument helpers below address arguments by *total* index so
 * op implementations are oblivious to whether they run chained. Arguments
 * evaluate left to right; and/or stop at the first decisive operand and
 * coalesce at the first non-missing, non-null one.
 *
 * item/acc refs resolve through evalLocals, populated only by array ops and
 * reduce/fold respectively; use outside those scopes is an ExprError (and a
 * static diagnostic).
 */

// EvalResult is the evaluator's three-valued outcome: a present value
// (possibly nil for JSON null) or missing.
type EvalResult struct {
	Value   any
	Missing bool
}

func present(value any) EvalResult {
	return EvalResult{Value: value}
}

func missingResult() EvalResult {
	return EvalResult{Missing: true}
}

// evalItem is the current element inside an array op.
type evalItem struct {
	value any
	index int
}

// evalLocals carries scoped bindings for item and acc refs.
type evalLocals struct {
	item *evalItem
	acc  *any
}

func localsWithItem(locals *evalLocals, item evalItem) *evalLocals {
	next := &evalLocals{item: &item}
	if locals != nil {
		next.acc = locals.acc
	}
	return next
}

// evaluator binds one record's evaluation environment.
// record and context are read-only; out is the under-construction output.
type evaluator struct {
	record  any
	context any
	out     map[string]any
}

// eval evaluates one expression node.
func (e *evaluator) eval(expr Expr, path string, locals *evalLocals) (EvalResult, *TransformError) {
	switch node := expr.(type) {
	case LitExpr:
		return present(node.Value), nil
	case RefExpr:
		return e.evalRef(node, path, locals)
	case OpExpr:
		return e.evalOp(node, path, nil, locals)
	case ChainExpr:
		return e.evalChain(node, path, locals)
	default:
		return missingResult(), exprError("expression node has unknown shape", path)
	}
}

// evalBool evaluates a when/record_when expression to a boolean.
// Missing coerces to null first, so a missing condition is a type error
// (which the caller demotes to a warning).
func (e *evaluator) evalBool(expr Expr, path string) (bool, *TransformError) {
	result, err := e.eval(expr, path, nil)
	if err != nil {
		return false, err
	}
	value := result.Value
	if result.Missing {
		value = nil
	}
	flag, ok := value.(bool)
	if !ok {
		return false, exprError("when/record_when must evaluate to boolean", path)
	}
	return flag, nil
}

func (e *evaluator) evalRef(ref RefExpr, path string, locals *evalLocals) (EvalResult, *TransformError) {
	ns, refPath, ok := parseExprRef(ref.Ref)
	if !ok {
		return missingResult(), newTransformError(KindInvalidRef, "ref namespace must be input|context|out|item|acc", path)
	}
	tokens, perr := ParsePath(refPath)
	if perr != nil {
		return missingResult(), newTransformError(KindInvalidRef, perr.Error(), path)
	}

	switch ns {
	case nsInput:
		return resolveResult(e.record, tokens), nil
	case nsContext:
		if e.context == nil {
			return missingResult(), nil
		}
		return resolveResult(e.context, tokens), nil
	case nsOut:
		return resolveResult(e.out, tokens), nil
	case nsItem:
		if locals == nil || locals.item == nil {
			return missingResult(), exprError("item is only available within array ops", path)
		}
		if len(tokens) == 0 || tokens[0].IsIndex {
			return missingResult(), exprError("item ref must start with value or index", path)
		}
		switch tokens[0].Key {
		case "value":
			return resolveResult(locals.item.value, tokens[1:]), nil
		case "index":
			if len(tokens) > 1 {
				return missingResult(), nil
			}
			return present(int64(locals.item.index)), nil
		default:
			return missingResult(), exprError("item ref must start with value or index", path)
		}
	case nsAcc:
		if locals == nil || locals.acc == nil {
			return missingResult(), exprError("acc is only available within reduce/fold ops", path)
		}
		if len(tokens) == 0 || tokens[0].IsIndex || tokens[0].Key != "value" {
			return missingResult(), exprError("acc ref must start with value", path)
		}
		return resolveResult(*locals.acc, tokens[1:]), nil
	}
	return missingResult(), nil
}

func resolveResult(root any, tokens []PathToken) EvalResult {
	value, found := GetPath(root, tokens)
	if !found {
		return missingResult()
	}
	return present(value)
}

func (e *evaluator) evalChain(chain ChainExpr, path string, locals *evalLocals) (EvalResult, *TransformError) {
	if len(chain.Chain) == 0 {
		return missingResult(), exprError("expr.chain must be a non-empty array", path+".chain")
	}

	current, err := e.eval(chain.Chain[0], path+".chain[0]", locals)
	if err != nil {
		return missingResult(), err
	}

	for i := 1; i < len(chain.Chain); i++ {
		stepPath := path + ".chain[" + strconv.Itoa(i) + "]"
		op, ok := chain.Chain[i].(OpExpr)
		if !ok {
			return missingResult(), exprError("expr.chain items after first must be op", stepPath)
		}
		injected := current
		current, err = e.evalOp(op, stepPath, &injected, locals)
		if err != nil {
			return missingResult(), err
		}
	}

	return current, nil
}

func (e *evaluator) evalOp(op OpExpr, path string, injected *EvalResult, locals *evalLocals) (EvalResult, *TransformError) {
	call := opCall{
		op:       op.Op,
		args:     op.Args,
		injected: injected,
		locals:   locals,
		path:     path,
	}

	if call.totalLen() == 0 {
		return missingResult(), exprError("expr.args must be a non-empty array", path+".args")
	}

	spec, ok := opTable[op.Op]
	if !ok {
		return missingResult(), exprError("expr.op is not supported", path+".op")
	}

	if err := spec.checkArity(call.totalLen(), path); err != nil {
		return missingResult(), err
	}

	return spec.fn(e, call)
}

// opCall packages one operator invocation. Argument helpers address by
// total index: index 0 is the injected chain value when present.
type opCall struct {
	op       string
	args     []Expr
	injected *EvalResult
	locals   *evalLocals
	path     string
}

func (c opCall) totalLen() int {
	if c.injected != nil {
		return len(c.args) + 1
	}
	return len(c.args)
}

func (c opCall) argPath(index int) string {
	return c.path + ".args[" + strconv.Itoa(index) + "]"
}

// argExprAt returns the expression at a total index, or nil for the
// injected slot (which has no syntax).
func (c opCall) argExprAt(index int) Expr {
	if c.injected != nil {
		if index == 0 {
			return nil
		}
		index--
	}
	if index < 0 || index >= len(c.args) {
		return nil
	}
	return c.args[index]
}

// evalArgAt evaluates the argument at a total index.
func (e *evaluator) evalArgAt(c opCall, index int) (EvalResult, *TransformError) {
	if c.injected != nil && index == 0 {
		return *c.injected, nil
	}
	expr := c.argExprAt(index)
	if expr == nil {
		return missingResult(), exprError("expr.args index is out of bounds", c.argPath(index))
	}
	return e.eval(expr, c.argPath(index), c.locals)
}

// argValueAt evaluates an argument; missing maps to (nil, false, nil).
func (e *evaluator) argValueAt(c opCall, index int) (any, bool, *TransformError) {
	result, err := e.evalArgAt(c, index)
	if err != nil {
		return nil, false, err
	}
	if result.Missing {
		return nil, false, nil
	}
	return result.Value, true, nil
}

// argStringAt evaluates an argument to a string; missing maps to
// ("", false, nil) and null is an error.
func (e *evaluator) argStringAt(c opCall, index int) (string, bool, *TransformError) {
	value, ok, err := e.argValueAt(c, index)
	if err != nil || !ok {
		return "", ok, err
	}
	if value == nil {
		return "", false, exprError("expr arg must not be null", c.argPath(index))
	}
	s, serr := valueAsString(value, c.argPath(index))
	if serr != nil {
		return "", false, serr
	}
	return s, true, nil
}

// argValueOrNullAt evaluates an argument, coercing missing to null.
// Equality and numeric comparison use this coercion.
func (e *evaluator) argValueOrNullAt(c opCall, index int) (any, *TransformError) {
	result, err := e.evalArgAt(c, index)
	if err != nil {
		return nil, err
	}
	if result.Missing {
		return nil, nil
	}
	return result.Value, nil
}

// argNonNullAt evaluates an argument; missing maps to (nil, false, nil) and
// null is an error. The common shape for scalar op parameters.
func (e *evaluator) argNonNullAt(c opCall, index int) (any, bool, *TransformError) {
	value, ok, err := e.argValueAt(c, index)
	if err != nil || !ok {
		return nil, ok, err
	}
	if value == nil {
		return nil, false, exprError("expr arg must not be null", c.argPath(index))
	}
	return value, true, nil
}

// argArrayAt evaluates an argument as an array collection.
// Missing and null behave as the empty array; other non-arrays error.
func (e *evaluator) argArrayAt(c opCall, index int) ([]any, *TransformError) {
	value, ok, err := e.argValueAt(c, index)
	if err != nil {
		return nil, err
	}
	if !ok || value == nil {
		return nil, nil
	}
	items, isArray := value.([]any)
	if !isArray {
		return nil, exprError("expr arg must be an array", c.argPath(index))
	}
	return items, nil
}

// evalExprOrNull evaluates an element expression, coercing missing to null.
// Array-op element results always materialise.
func (e *evaluator) evalExprOrNull(expr Expr, path string, locals *evalLocals) (any, *TransformError) {
	result, err := e.eval(expr, path, locals)
	if err != nil {
		return nil, err
	}
	if result.Missing {
		return nil, nil
	}
	return result.Value, nil
}

// evalPredicate evaluates an element predicate.
// Missing and null count as false; other non-booleans error.
func (e *evaluator) evalPredicate(expr Expr, path string, locals *evalLocals) (bool, *TransformError) {
	result, err := e.eval(expr, path, locals)
	if err != nil {
		return false, err
	}
	if result.Missing || result.Value == nil {
		return false, nil
	}
	return valueAsBool(result.Value, path)
}

// evalKeyString evaluates a grouping/dedup key expression to the canonical
// string form. Missing and null keys are errors.
func (e *evaluator) evalKeyString(expr Expr, path string, locals *evalLocals) (string, *TransformError) {
	result, err := e.eval(expr, path, locals)
	if err != nil {
		return "", err
	}
	if result.Missing {
		return "", exprError("expr arg must not be missing", path)
	}
	if result.Value == nil {
		return "", exprError("expr arg must not be null", path)
	}
	return valueToString(result.Value, path)
}

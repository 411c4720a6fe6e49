// internal/rules/eval_array.go
package rules

import (
	"sort"
	"strconv"
)

/*
 * Array operators.
 *
 * Collections arrive through argArrayAt: a missing or null collection
 * behaves as the empty array, so chained pipelines degrade gracefully when
 * an upstream step found nothing. Element expressions run with item bound
 * (value + index); reduce/fold additionally bind acc. Element results
 * materialise (missing coerces to null); element predicates treat missing
 * and null as false and reject other non-booleans.
 *
 * Aggregations over the empty array (sum/avg/min/max/reduce) yield null,
 * not missing: the collection was present, it just had nothing in it.
 * find yields null on no match; find_index and index_of yield -1.
 *
 * sort_by requires keys of one scalar type per call and sorts stably, with
 * the original position breaking ties, so equal-keyed elements keep their
 * input order.
 */

// elementExpr returns the element expression at a total index together with
// its diagnostic path, which points at the syntactic argument position.
func (c opCall) elementExpr(totalIndex int) (Expr, string, *TransformError) {
	expr := c.argExprAt(totalIndex)
	if expr == nil {
		return nil, "", exprError("expr.args index is out of bounds", c.argPath(totalIndex))
	}
	syntactic := totalIndex
	if c.injected != nil {
		syntactic--
	}
	return expr, c.path + ".args[" + strconv.Itoa(syntactic) + "]", nil
}

func opArrayMap(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	expr, exprPath, err := c.elementExpr(1)
	if err != nil {
		return missingResult(), err
	}

	results := make([]any, 0, len(items))
	for index, item := range items {
		locals := localsWithItem(c.locals, evalItem{value: item, index: index})
		value, verr := e.evalExprOrNull(expr, exprPath, locals)
		if verr != nil {
			return missingResult(), verr
		}
		results = append(results, value)
	}
	return present(results), nil
}

func opArrayFilter(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	expr, exprPath, err := c.elementExpr(1)
	if err != nil {
		return missingResult(), err
	}

	results := make([]any, 0, len(items))
	for index, item := range items {
		locals := localsWithItem(c.locals, evalItem{value: item, index: index})
		matched, perr := e.evalPredicate(expr, exprPath, locals)
		if perr != nil {
			return missingResult(), perr
		}
		if matched {
			results = append(results, item)
		}
	}
	return present(results), nil
}

func opArrayFlatMap(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	expr, exprPath, err := c.elementExpr(1)
	if err != nil {
		return missingResult(), err
	}

	results := make([]any, 0, len(items))
	for index, item := range items {
		locals := localsWithItem(c.locals, evalItem{value: item, index: index})
		value, verr := e.evalExprOrNull(expr, exprPath, locals)
		if verr != nil {
			return missingResult(), verr
		}
		if nested, ok := value.([]any); ok {
			results = append(results, nested...)
		} else {
			results = append(results, value)
		}
	}
	return present(results), nil
}

func flattenValue(value any, depth int, out *[]any) {
	if depth == 0 {
		*out = append(*out, value)
		return
	}
	if items, ok := value.([]any); ok {
		for _, item := range items {
			flattenValue(item, depth-1, out)
		}
		return
	}
	*out = append(*out, value)
}

func opArrayFlatten(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}

	depth := int64(1)
	if c.totalLen() == 2 {
		depthValue, ok, verr := e.argNonNullAt(c, 1)
		if verr != nil || !ok {
			return missingResult(), verr
		}
		depth, verr = valueToInt64(depthValue, c.argPath(1), "depth must be a non-negative integer")
		if verr != nil {
			return missingResult(), verr
		}
		if depth < 0 {
			return missingResult(), exprError("depth must be a non-negative integer", c.argPath(1))
		}
	}

	results := make([]any, 0, len(items))
	for _, item := range items {
		flattenValue(item, int(depth), &results)
	}
	return present(results), nil
}

// arrayCountArg reads an integer count/size argument with the shared
// missing/null policy.
func (e *evaluator) arrayCountArg(c opCall, index int, message string) (int64, bool, *TransformError) {
	value, ok, err := e.argNonNullAt(c, index)
	if err != nil || !ok {
		return 0, ok, err
	}
	count, cerr := valueToInt64(value, c.argPath(index), message)
	if cerr != nil {
		return 0, false, cerr
	}
	return count, true, nil
}

func opArrayTake(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	count, ok, err := e.arrayCountArg(c, 1, "count must be an integer")
	if err != nil || !ok {
		return missingResult(), err
	}

	length := int64(len(items))
	var results []any
	if count >= 0 {
		take := min64(count, length)
		results = append([]any{}, items[:take]...)
	} else {
		take := min64(-count, length)
		results = append([]any{}, items[length-take:]...)
	}
	return present(results), nil
}

func opArrayDrop(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	count, ok, err := e.arrayCountArg(c, 1, "count must be an integer")
	if err != nil || !ok {
		return missingResult(), err
	}

	length := int64(len(items))
	var results []any
	if count >= 0 {
		drop := min64(count, length)
		results = append([]any{}, items[drop:]...)
	} else {
		drop := min64(-count, length)
		results = append([]any{}, items[:length-drop]...)
	}
	return present(results), nil
}

func opArraySlice(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	length := int64(len(items))

	start, ok, err := e.arrayCountArg(c, 1, "start must be an integer")
	if err != nil || !ok {
		return missingResult(), err
	}

	end := length
	if c.totalLen() == 3 {
		end, ok, err = e.arrayCountArg(c, 2, "end must be an integer")
		if err != nil || !ok {
			return missingResult(), err
		}
	}

	if start < 0 {
		start += length
	}
	if end < 0 {
		end += length
	}
	start = clamp64(start, 0, length)
	end = clamp64(end, 0, length)

	results := []any{}
	if end > start {
		results = append(results, items[start:end]...)
	}
	return present(results), nil
}

func opArrayChunk(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	size, ok, err := e.arrayCountArg(c, 1, "size must be a positive integer")
	if err != nil || !ok {
		return missingResult(), err
	}
	if size <= 0 {
		return missingResult(), exprError("size must be a positive integer", c.argPath(1))
	}

	chunks := []any{}
	for start := 0; start < len(items); start += int(size) {
		end := start + int(size)
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, append([]any{}, items[start:end]...))
	}
	return present(chunks), nil
}

func opArrayZip(e *evaluator, c opCall) (EvalResult, *TransformError) {
	arrays := make([][]any, 0, c.totalLen())
	for i := 0; i < c.totalLen(); i++ {
		items, err := e.argArrayAt(c, i)
		if err != nil {
			return missingResult(), err
		}
		arrays = append(arrays, items)
	}

	minLen := len(arrays[0])
	for _, items := range arrays[1:] {
		if len(items) < minLen {
			minLen = len(items)
		}
	}

	results := make([]any, 0, minLen)
	for i := 0; i < minLen; i++ {
		row := make([]any, len(arrays))
		for j, items := range arrays {
			row[j] = items[i]
		}
		results = append(results, row)
	}
	return present(results), nil
}

func opArrayZipWith(e *evaluator, c opCall) (EvalResult, *TransformError) {
	exprIndex := c.totalLen() - 1
	expr, exprPath, err := c.elementExpr(exprIndex)
	if err != nil {
		return missingResult(), err
	}

	arrays := make([][]any, 0, exprIndex)
	for i := 0; i < exprIndex; i++ {
		items, aerr := e.argArrayAt(c, i)
		if aerr != nil {
			return missingResult(), aerr
		}
		arrays = append(arrays, items)
	}

	minLen := len(arrays[0])
	for _, items := range arrays[1:] {
		if len(items) < minLen {
			minLen = len(items)
		}
	}

	results := make([]any, 0, minLen)
	for i := 0; i < minLen; i++ {
		row := make([]any, len(arrays))
		for j, items := range arrays {
			row[j] = items[i]
		}
		locals := localsWithItem(c.locals, evalItem{value: row, index: i})
		value, verr := e.evalExprOrNull(expr, exprPath, locals)
		if verr != nil {
			return missingResult(), verr
		}
		results = append(results, value)
	}
	return present(results), nil
}

func opArrayUnzip(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	if len(items) == 0 {
		return present([]any{}), nil
	}

	var columns [][]any
	expectedLen := -1
	for _, item := range items {
		row, ok := item.([]any)
		if !ok {
			return missingResult(), exprError("unzip items must be arrays", c.argPath(0))
		}
		if expectedLen < 0 {
			expectedLen = len(row)
			columns = make([][]any, len(row))
		} else if len(row) != expectedLen {
			return missingResult(), exprError("unzip items must have the same length", c.argPath(0))
		}
		for i, value := range row {
			columns[i] = append(columns[i], value)
		}
	}

	output := make([]any, len(columns))
	for i, column := range columns {
		output[i] = column
	}
	return present(output), nil
}

func opArrayGroupBy(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	expr, exprPath, err := c.elementExpr(1)
	if err != nil {
		return missingResult(), err
	}

	results := make(map[string]any)
	for index, item := range items {
		locals := localsWithItem(c.locals, evalItem{value: item, index: index})
		key, kerr := e.evalKeyString(expr, exprPath, locals)
		if kerr != nil {
			return missingResult(), kerr
		}
		group, _ := results[key].([]any)
		results[key] = append(group, item)
	}
	return present(results), nil
}

func opArrayKeyBy(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	expr, exprPath, err := c.elementExpr(1)
	if err != nil {
		return missingResult(), err
	}

	results := make(map[string]any)
	for index, item := range items {
		locals := localsWithItem(c.locals, evalItem{value: item, index: index})
		key, kerr := e.evalKeyString(expr, exprPath, locals)
		if kerr != nil {
			return missingResult(), kerr
		}
		results[key] = item
	}
	return present(results), nil
}

func opArrayPartition(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	expr, exprPath, err := c.elementExpr(1)
	if err != nil {
		return missingResult(), err
	}

	matched := []any{}
	unmatched := []any{}
	for index, item := range items {
		locals := localsWithItem(c.locals, evalItem{value: item, index: index})
		flag, perr := e.evalPredicate(expr, exprPath, locals)
		if perr != nil {
			return missingResult(), perr
		}
		if flag {
			matched = append(matched, item)
		} else {
			unmatched = append(unmatched, item)
		}
	}
	return present([]any{matched, unmatched}), nil
}

func opArrayUnique(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	itemPath := c.argPath(0)

	results := []any{}
	for _, item := range items {
		if eerr := ensureEqCompatible(item, itemPath); eerr != nil {
			return missingResult(), eerr
		}
		exists := false
		for _, existing := range results {
			equal, cerr := compareEq(item, existing, itemPath, itemPath)
			if cerr != nil {
				return missingResult(), cerr
			}
			if equal {
				exists = true
				break
			}
		}
		if !exists {
			results = append(results, item)
		}
	}
	return present(results), nil
}

func opArrayDistinctBy(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	expr, exprPath, err := c.elementExpr(1)
	if err != nil {
		return missingResult(), err
	}

	results := []any{}
	seen := make(map[string]bool)
	for index, item := range items {
		locals := localsWithItem(c.locals, evalItem{value: item, index: index})
		key, kerr := e.evalKeyString(expr, exprPath, locals)
		if kerr != nil {
			return missingResult(), kerr
		}
		if !seen[key] {
			seen[key] = true
			results = append(results, item)
		}
	}
	return present(results), nil
}

// sortKey is a typed sort_by key; all keys in one call must share a kind.
type sortKey struct {
	kind   int // 0 number, 1 string, 2 bool
	number float64
	str    string
	flag   bool
}

func evalSortKey(e *evaluator, expr Expr, path string, locals *evalLocals) (sortKey, *TransformError) {
	result, err := e.eval(expr, path, locals)
	if err != nil {
		return sortKey{}, err
	}
	if result.Missing {
		return sortKey{}, exprError("expr arg must not be missing", path)
	}
	if result.Value == nil {
		return sortKey{}, exprError("expr arg must not be null", path)
	}

	switch v := result.Value.(type) {
	case float64, int64, int:
		number, nerr := valueToNumber(v, path, "sort_by key must be a finite number")
		if nerr != nil {
			return sortKey{}, nerr
		}
		return sortKey{kind: 0, number: number}, nil
	case string:
		return sortKey{kind: 1, str: v}, nil
	case bool:
		return sortKey{kind: 2, flag: v}, nil
	default:
		return sortKey{}, exprError("sort_by key must be string/number/bool", path)
	}
}

func compareSortKeys(left, right sortKey) int {
	switch left.kind {
	case 0:
		switch {
		case left.number < right.number:
			return -1
		case left.number > right.number:
			return 1
		}
	case 1:
		switch {
		case left.str < right.str:
			return -1
		case left.str > right.str:
			return 1
		}
	case 2:
		switch {
		case !left.flag && right.flag:
			return -1
		case left.flag && !right.flag:
			return 1
		}
	}
	return 0
}

func opArraySortBy(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	if len(items) == 0 {
		return present([]any{}), nil
	}

	expr, exprPath, err := c.elementExpr(1)
	if err != nil {
		return missingResult(), err
	}

	order := "asc"
	if c.totalLen() == 3 {
		value, ok, serr := e.argStringAt(c, 2)
		if serr != nil || !ok {
			return missingResult(), serr
		}
		if value != "asc" && value != "desc" {
			return missingResult(), exprError("order must be asc or desc", c.argPath(2))
		}
		order = value
	}

	type sortItem struct {
		key   sortKey
		index int
		value any
	}

	sortItems := make([]sortItem, 0, len(items))
	keyKind := -1
	for index, item := range items {
		locals := localsWithItem(c.locals, evalItem{value: item, index: index})
		key, kerr := evalSortKey(e, expr, exprPath, locals)
		if kerr != nil {
			return missingResult(), kerr
		}
		if keyKind < 0 {
			keyKind = key.kind
		} else if keyKind != key.kind {
			return missingResult(), exprError("sort_by keys must be all the same type", exprPath)
		}
		sortItems = append(sortItems, sortItem{key: key, index: index, value: item})
	}

	sort.SliceStable(sortItems, func(i, j int) bool {
		ordering := compareSortKeys(sortItems[i].key, sortItems[j].key)
		if order == "desc" {
			ordering = -ordering
		}
		if ordering == 0 {
			return sortItems[i].index < sortItems[j].index
		}
		return ordering < 0
	})

	results := make([]any, len(sortItems))
	for i, item := range sortItems {
		results[i] = item.value
	}
	return present(results), nil
}

func opArrayFind(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	expr, exprPath, err := c.elementExpr(1)
	if err != nil {
		return missingResult(), err
	}

	for index, item := range items {
		locals := localsWithItem(c.locals, evalItem{value: item, index: index})
		matched, perr := e.evalPredicate(expr, exprPath, locals)
		if perr != nil {
			return missingResult(), perr
		}
		if matched {
			return present(item), nil
		}
	}
	return present(nil), nil
}

func opArrayFindIndex(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	expr, exprPath, err := c.elementExpr(1)
	if err != nil {
		return missingResult(), err
	}

	for index, item := range items {
		locals := localsWithItem(c.locals, evalItem{value: item, index: index})
		matched, perr := e.evalPredicate(expr, exprPath, locals)
		if perr != nil {
			return missingResult(), perr
		}
		if matched {
			return present(int64(index)), nil
		}
	}
	return present(int64(-1)), nil
}

func opArrayIndexOf(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	value, err := e.argValueOrNullAt(c, 1)
	if err != nil {
		return missingResult(), err
	}
	if eerr := ensureEqCompatible(value, c.argPath(1)); eerr != nil {
		return missingResult(), eerr
	}

	for index, item := range items {
		if eerr := ensureEqCompatible(item, c.argPath(0)); eerr != nil {
			return missingResult(), eerr
		}
		equal, cerr := compareEq(item, value, c.argPath(0), c.argPath(1))
		if cerr != nil {
			return missingResult(), cerr
		}
		if equal {
			return present(int64(index)), nil
		}
	}
	return present(int64(-1)), nil
}

func opArrayContains(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	value, err := e.argValueOrNullAt(c, 1)
	if err != nil {
		return missingResult(), err
	}
	if eerr := ensureEqCompatible(value, c.argPath(1)); eerr != nil {
		return missingResult(), eerr
	}

	for _, item := range items {
		if eerr := ensureEqCompatible(item, c.argPath(0)); eerr != nil {
			return missingResult(), eerr
		}
		equal, cerr := compareEq(item, value, c.argPath(0), c.argPath(1))
		if cerr != nil {
			return missingResult(), cerr
		}
		if equal {
			return present(true), nil
		}
	}
	return present(false), nil
}

// arrayNumericAgg factors sum/avg/min/max: every element must be numeric
// and the empty array yields null.
func arrayNumericAgg(e *evaluator, c opCall, agg func(values []float64) float64) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	if len(items) == 0 {
		return present(nil), nil
	}

	values := make([]float64, 0, len(items))
	for _, item := range items {
		value, nerr := valueToNumber(item, c.argPath(0), "array item must be a number")
		if nerr != nil {
			return missingResult(), nerr
		}
		values = append(values, value)
	}

	materialised, merr := numberFromFloat(agg(values), c.path)
	if merr != nil {
		return missingResult(), merr
	}
	return present(materialised), nil
}

func opArraySum(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return arrayNumericAgg(e, c, func(values []float64) float64 {
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum
	})
}

func opArrayAvg(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return arrayNumericAgg(e, c, func(values []float64) float64 {
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	})
}

func opArrayMin(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return arrayNumericAgg(e, c, func(values []float64) float64 {
		result := values[0]
		for _, v := range values[1:] {
			if v < result {
				result = v
			}
		}
		return result
	})
}

func opArrayMax(e *evaluator, c opCall) (EvalResult, *TransformError) {
	return arrayNumericAgg(e, c, func(values []float64) float64 {
		result := values[0]
		for _, v := range values[1:] {
			if v > result {
				result = v
			}
		}
		return result
	})
}

func opArrayReduce(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}
	if len(items) == 0 {
		return present(nil), nil
	}

	expr, exprPath, err := c.elementExpr(1)
	if err != nil {
		return missingResult(), err
	}

	acc := items[0]
	for index := 1; index < len(items); index++ {
		item := evalItem{value: items[index], index: index}
		locals := &evalLocals{item: &item, acc: &acc}
		value, verr := e.evalExprOrNull(expr, exprPath, locals)
		if verr != nil {
			return missingResult(), verr
		}
		acc = value
	}
	return present(acc), nil
}

func opArrayFold(e *evaluator, c opCall) (EvalResult, *TransformError) {
	items, err := e.argArrayAt(c, 0)
	if err != nil {
		return missingResult(), err
	}

	initial, ok, err := e.argValueAt(c, 1)
	if err != nil {
		return missingResult(), err
	}
	if !ok {
		return missingResult(), nil
	}

	expr, exprPath, err := c.elementExpr(2)
	if err != nil {
		return missingResult(), err
	}

	acc := initial
	for index, item := range items {
		element := evalItem{value: item, index: index}
		locals := &evalLocals{item: &element, acc: &acc}
		value, verr := e.evalExprOrNull(expr, exprPath, locals)
		if verr != nil {
			return missingResult(), verr
		}
		acc = value
	}
	return present(acc), nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func clamp64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

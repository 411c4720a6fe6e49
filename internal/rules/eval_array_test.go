package rules

import (
	"reflect"
	"testing"
)

// Test element expressions with item bindings
func TestEval_ArrayMapFilter(t *testing.T) {
	record := map[string]any{
		"nums": []any{int64(1), int64(2), int64(3), int64(4)},
		"rows": []any{
			map[string]any{"id": "a", "qty": int64(2)},
			map[string]any{"id": "b", "qty": int64(5)},
		},
	}
	e := newTestEvaluator(record, nil)

	t.Run("map over item values", func(t *testing.T) {
		result := evalExpr(t, e, op("map", ref("input.nums"), op("*", ref("item.value"), lit(int64(10)))))
		expected := []any{int64(10), int64(20), int64(30), int64(40)}
		if !reflect.DeepEqual(result.Value, expected) {
			t.Errorf("map = %v, want %v", result.Value, expected)
		}
	})

	t.Run("map exposes item index", func(t *testing.T) {
		result := evalExpr(t, e, op("map", ref("input.rows"), ref("item.index")))
		expected := []any{int64(0), int64(1)}
		if !reflect.DeepEqual(result.Value, expected) {
			t.Errorf("map index = %v, want %v", result.Value, expected)
		}
	})

	t.Run("map item path projection", func(t *testing.T) {
		result := evalExpr(t, e, op("map", ref("input.rows"), ref("item.value.id")))
		expected := []any{"a", "b"}
		if !reflect.DeepEqual(result.Value, expected) {
			t.Errorf("map projection = %v, want %v", result.Value, expected)
		}
	})

	t.Run("map missing element becomes null", func(t *testing.T) {
		result := evalExpr(t, e, op("map", ref("input.rows"), ref("item.value.ghost")))
		expected := []any{nil, nil}
		if !reflect.DeepEqual(result.Value, expected) {
			t.Errorf("map = %v, want %v", result.Value, expected)
		}
	})

	t.Run("filter with predicate", func(t *testing.T) {
		result := evalExpr(t, e, op("filter", ref("input.nums"), op(">", ref("item.value"), lit(int64(2)))))
		expected := []any{int64(3), int64(4)}
		if !reflect.DeepEqual(result.Value, expected) {
			t.Errorf("filter = %v, want %v", result.Value, expected)
		}
	})

	t.Run("missing collection behaves as empty", func(t *testing.T) {
		result := evalExpr(t, e, op("map", ref("input.ghost"), ref("item.value")))
		if !reflect.DeepEqual(result.Value, []any{}) {
			t.Errorf("map = %v, want []", result.Value)
		}
	})

	t.Run("non-array collection errors", func(t *testing.T) {
		evalExprErr(t, e, op("map", lit("nope"), ref("item.value")))
	})

	t.Run("flat_map splices arrays", func(t *testing.T) {
		result := evalExpr(t, e, op("flat_map", ref("input.nums"), op("split", op("concat", ref("item.value"), lit(",x")), lit(","))))
		if values := result.Value.([]any); len(values) != 8 || values[0] != "1" || values[1] != "x" {
			t.Errorf("flat_map = %v", result.Value)
		}
	})
}

// Test shaping operators
func TestEval_ArrayShaping(t *testing.T) {
	record := map[string]any{
		"nums":   []any{int64(1), int64(2), int64(3), int64(4), int64(5)},
		"nested": []any{[]any{int64(1), []any{int64(2)}}, int64(3)},
		"pairs":  []any{[]any{int64(1), "a"}, []any{int64(2), "b"}},
	}
	e := newTestEvaluator(record, nil)

	tests := []struct {
		name     string
		expr     Expr
		expected any
	}{
		{name: "take positive", expr: op("take", ref("input.nums"), lit(int64(2))), expected: []any{int64(1), int64(2)}},
		{name: "take negative takes tail", expr: op("take", ref("input.nums"), lit(int64(-2))), expected: []any{int64(4), int64(5)}},
		{name: "take beyond length", expr: op("take", ref("input.nums"), lit(int64(99))), expected: []any{int64(1), int64(2), int64(3), int64(4), int64(5)}},
		{name: "drop positive", expr: op("drop", ref("input.nums"), lit(int64(3))), expected: []any{int64(4), int64(5)}},
		{name: "drop negative drops tail", expr: op("drop", ref("input.nums"), lit(int64(-2))), expected: []any{int64(1), int64(2), int64(3)}},
		{name: "slice basic", expr: op("slice", ref("input.nums"), lit(int64(1)), lit(int64(3))), expected: []any{int64(2), int64(3)}},
		{name: "slice negative indexes", expr: op("slice", ref("input.nums"), lit(int64(-3)), lit(int64(-1))), expected: []any{int64(3), int64(4)}},
		{name: "slice open end", expr: op("slice", ref("input.nums"), lit(int64(3))), expected: []any{int64(4), int64(5)}},
		{name: "slice inverted is empty", expr: op("slice", ref("input.nums"), lit(int64(4)), lit(int64(1))), expected: []any{}},
		{name: "flatten default depth", expr: op("flatten", ref("input.nested")), expected: []any{int64(1), []any{int64(2)}, int64(3)}},
		{name: "flatten depth two", expr: op("flatten", ref("input.nested"), lit(int64(2))), expected: []any{int64(1), int64(2), int64(3)}},
		{name: "chunk", expr: op("chunk", ref("input.nums"), lit(int64(2))), expected: []any{[]any{int64(1), int64(2)}, []any{int64(3), int64(4)}, []any{int64(5)}}},
		{name: "zip truncates to shortest", expr: op("zip", ref("input.nums"), lit([]any{"a", "b"})), expected: []any{[]any{int64(1), "a"}, []any{int64(2), "b"}}},
		{name: "unzip", expr: op("unzip", ref("input.pairs")), expected: []any{[]any{int64(1), int64(2)}, []any{"a", "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evalExpr(t, e, tt.expr)
			if !reflect.DeepEqual(result.Value, tt.expected) {
				t.Errorf("eval = %v, want %v", result.Value, tt.expected)
			}
		})
	}

	t.Run("chunk size zero errors", func(t *testing.T) {
		evalExprErr(t, e, op("chunk", ref("input.nums"), lit(int64(0))))
	})

	t.Run("unzip ragged rows error", func(t *testing.T) {
		evalExprErr(t, e, op("unzip", lit([]any{[]any{int64(1)}, []any{int64(1), int64(2)}})))
	})

	t.Run("zip_with combines rows", func(t *testing.T) {
		result := evalExpr(t, e, op("zip_with",
			lit([]any{int64(1), int64(2)}),
			lit([]any{int64(10), int64(20)}),
			op("+", ref("item.value[0]"), ref("item.value[1]")),
		))
		expected := []any{int64(11), int64(22)}
		if !reflect.DeepEqual(result.Value, expected) {
			t.Errorf("zip_with = %v, want %v", result.Value, expected)
		}
	})
}

// Test grouping, dedup and ordering
func TestEval_ArrayGrouping(t *testing.T) {
	record := map[string]any{
		"rows": []any{
			map[string]any{"cat": "a", "n": int64(3)},
			map[string]any{"cat": "b", "n": int64(1)},
			map[string]any{"cat": "a", "n": int64(2)},
		},
		"dupes": []any{int64(1), "1", int64(2), int64(1)},
	}
	e := newTestEvaluator(record, nil)

	t.Run("group_by collects per key", func(t *testing.T) {
		result := evalExpr(t, e, op("group_by", ref("input.rows"), ref("item.value.cat")))
		groups := result.Value.(map[string]any)
		if len(groups) != 2 {
			t.Fatalf("group_by produced %d groups, want 2", len(groups))
		}
		if a := groups["a"].([]any); len(a) != 2 {
			t.Errorf("group a has %d items, want 2", len(a))
		}
	})

	t.Run("key_by keeps the last element per key", func(t *testing.T) {
		result := evalExpr(t, e, op("key_by", ref("input.rows"), ref("item.value.cat")))
		keyed := result.Value.(map[string]any)
		a := keyed["a"].(map[string]any)
		if a["n"] != int64(2) {
			t.Errorf("key_by a.n = %v, want 2 (last wins)", a["n"])
		}
	})

	t.Run("partition splits on predicate", func(t *testing.T) {
		result := evalExpr(t, e, op("partition", ref("input.rows"), op("==", ref("item.value.cat"), lit("a"))))
		parts := result.Value.([]any)
		if len(parts[0].([]any)) != 2 || len(parts[1].([]any)) != 1 {
			t.Errorf("partition = %v", result.Value)
		}
	})

	t.Run("unique uses stringified equality", func(t *testing.T) {
		result := evalExpr(t, e, op("unique", ref("input.dupes")))
		expected := []any{int64(1), int64(2)}
		if !reflect.DeepEqual(result.Value, expected) {
			t.Errorf("unique = %v, want %v", result.Value, expected)
		}
	})

	t.Run("distinct_by keeps first per key", func(t *testing.T) {
		result := evalExpr(t, e, op("distinct_by", ref("input.rows"), ref("item.value.cat")))
		rows := result.Value.([]any)
		if len(rows) != 2 || rows[0].(map[string]any)["n"] != int64(3) {
			t.Errorf("distinct_by = %v", result.Value)
		}
	})

	t.Run("sort_by ascending stable", func(t *testing.T) {
		result := evalExpr(t, e, op("sort_by", ref("input.rows"), ref("item.value.n")))
		rows := result.Value.([]any)
		if rows[0].(map[string]any)["n"] != int64(1) || rows[2].(map[string]any)["n"] != int64(3) {
			t.Errorf("sort_by = %v", result.Value)
		}
	})

	t.Run("sort_by descending", func(t *testing.T) {
		result := evalExpr(t, e, op("sort_by", ref("input.rows"), ref("item.value.n"), lit("desc")))
		rows := result.Value.([]any)
		if rows[0].(map[string]any)["n"] != int64(3) {
			t.Errorf("sort_by desc = %v", result.Value)
		}
	})

	t.Run("sort_by mixed key types error", func(t *testing.T) {
		evalExprErr(t, e, op("sort_by", lit([]any{int64(1), "x"}), ref("item.value")))
	})

	t.Run("sort_by bad order errors", func(t *testing.T) {
		evalExprErr(t, e, op("sort_by", ref("input.rows"), ref("item.value.n"), lit("up")))
	})
}

// Test searching and aggregation
func TestEval_ArraySearchAggregate(t *testing.T) {
	record := map[string]any{
		"nums":  []any{int64(4), int64(1), int64(3)},
		"empty": []any{},
		"rows": []any{
			map[string]any{"id": "a"},
			map[string]any{"id": "b"},
		},
	}
	e := newTestEvaluator(record, nil)

	tests := []struct {
		name     string
		expr     Expr
		expected any
	}{
		{name: "find match", expr: op("find", ref("input.rows"), op("==", ref("item.value.id"), lit("b"))), expected: map[string]any{"id": "b"}},
		{name: "find no match yields null", expr: op("find", ref("input.rows"), op("==", ref("item.value.id"), lit("z"))), expected: nil},
		{name: "find_index", expr: op("find_index", ref("input.nums"), op("==", ref("item.value"), lit(int64(3)))), expected: int64(2)},
		{name: "find_index no match", expr: op("find_index", ref("input.nums"), op("==", ref("item.value"), lit(int64(9)))), expected: int64(-1)},
		{name: "index_of stringified", expr: op("index_of", ref("input.nums"), lit("3")), expected: int64(2)},
		{name: "contains true", expr: op("contains", ref("input.nums"), lit(int64(1))), expected: true},
		{name: "contains false", expr: op("contains", ref("input.nums"), lit(int64(9))), expected: false},
		{name: "sum", expr: op("sum", ref("input.nums")), expected: int64(8)},
		{name: "avg fractional", expr: op("avg", lit([]any{int64(1), int64(2)})), expected: float64(1.5)},
		{name: "min", expr: op("min", ref("input.nums")), expected: int64(1)},
		{name: "max", expr: op("max", ref("input.nums")), expected: int64(4)},
		{name: "sum of empty is null", expr: op("sum", ref("input.empty")), expected: nil},
		{name: "avg of empty is null", expr: op("avg", ref("input.empty")), expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evalExpr(t, e, tt.expr)
			if !reflect.DeepEqual(result.Value, tt.expected) {
				t.Errorf("eval = %v, want %v", result.Value, tt.expected)
			}
		})
	}

	t.Run("sum rejects non-numeric items", func(t *testing.T) {
		evalExprErr(t, e, op("sum", ref("input.rows")))
	})
}

// Test reduce and fold with acc bindings
func TestEval_ArrayReduceFold(t *testing.T) {
	record := map[string]any{"nums": []any{int64(1), int64(2), int64(3)}}
	e := newTestEvaluator(record, nil)

	t.Run("reduce seeds with first element", func(t *testing.T) {
		result := evalExpr(t, e, op("reduce", ref("input.nums"), op("+", ref("acc.value"), ref("item.value"))))
		if result.Value != int64(6) {
			t.Errorf("reduce = %v, want 6", result.Value)
		}
	})

	t.Run("reduce of empty is null", func(t *testing.T) {
		result := evalExpr(t, e, op("reduce", lit([]any{}), op("+", ref("acc.value"), ref("item.value"))))
		if result.Value != nil {
			t.Errorf("reduce = %v, want null", result.Value)
		}
	})

	t.Run("fold uses initial value", func(t *testing.T) {
		result := evalExpr(t, e, op("fold", ref("input.nums"), lit(int64(10)), op("+", ref("acc.value"), ref("item.value"))))
		if result.Value != int64(16) {
			t.Errorf("fold = %v, want 16", result.Value)
		}
	})

	t.Run("fold over empty returns initial", func(t *testing.T) {
		result := evalExpr(t, e, op("fold", lit([]any{}), lit("seed"), op("concat", ref("acc.value"), ref("item.value"))))
		if result.Value != "seed" {
			t.Errorf("fold = %v, want seed", result.Value)
		}
	})

	t.Run("chained collection feeds array op", func(t *testing.T) {
		result := evalExpr(t, e, chain(
			ref("input.nums"),
			op("filter", op(">", ref("item.value"), lit(int64(1)))),
			op("sum"),
		))
		if result.Value != int64(5) {
			t.Errorf("chained sum = %v, want 5", result.Value)
		}
	})
}

package rules

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func lit(v any) Expr { return LitExpr{Value: v} }

func ref(path string) Expr { return RefExpr{Ref: path} }

func op(name string, args ...Expr) Expr { return OpExpr{Op: name, Args: args} }

func chain(steps ...Expr) Expr { return ChainExpr{Chain: steps} }

func newTestEvaluator(record, context any) *evaluator {
	return &evaluator{record: record, context: context, out: map[string]any{}}
}

func evalExpr(t *testing.T, e *evaluator, expr Expr) EvalResult {
	t.Helper()
	result, err := e.eval(expr, "expr", nil)
	if err != nil {
		t.Fatalf("eval() error = %v, want nil", err)
	}
	return result
}

func evalExprErr(t *testing.T, e *evaluator, expr Expr) *TransformError {
	t.Helper()
	_, err := e.eval(expr, "expr", nil)
	if err == nil {
		t.Fatalf("eval() error = nil, want error")
	}
	return err
}

// Test ref resolution and the missing/null distinction
func TestEval_Refs(t *testing.T) {
	record := map[string]any{
		"name":  "Apple",
		"price": int64(100),
		"null":  nil,
		"items": []any{map[string]any{"id": "a"}},
	}
	context := map[string]any{"tenant": "t-001"}
	e := newTestEvaluator(record, context)

	tests := []struct {
		name        string
		expr        Expr
		expected    any
		wantMissing bool
	}{
		{name: "input key", expr: ref("input.name"), expected: "Apple"},
		{name: "input index", expr: ref("input.items[0].id"), expected: "a"},
		{name: "context key", expr: ref("context.tenant"), expected: "t-001"},
		{name: "null is present", expr: ref("input.null"), expected: nil},
		{name: "absent key is missing", expr: ref("input.ghost"), wantMissing: true},
		{name: "index out of range is missing", expr: ref("input.items[9]"), wantMissing: true},
		{name: "out before production is missing", expr: ref("out.anything"), wantMissing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evalExpr(t, e, tt.expr)
			if result.Missing != tt.wantMissing {
				t.Fatalf("eval(%v) missing = %v, want %v", tt.expr, result.Missing, tt.wantMissing)
			}
			if !tt.wantMissing && result.Value != tt.expected {
				t.Errorf("eval(%v) = %v, want %v", tt.expr, result.Value, tt.expected)
			}
		})
	}
}

func TestEval_RefErrors(t *testing.T) {
	e := newTestEvaluator(map[string]any{}, nil)

	tests := []struct {
		name string
		expr Expr
	}{
		{name: "bare namespace", expr: ref("input")},
		{name: "unknown namespace", expr: ref("env.HOME")},
		{name: "item outside array op", expr: ref("item.value")},
		{name: "acc outside reduce", expr: ref("acc.value")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evalExprErr(t, e, tt.expr)
		})
	}
}

// Test concat and coalesce missing/null policy
func TestEval_ConcatCoalesce(t *testing.T) {
	record := map[string]any{"a": "x", "n": int64(10), "f": float64(10.0), "null": nil}
	e := newTestEvaluator(record, nil)

	t.Run("concat stringifies numbers canonically", func(t *testing.T) {
		result := evalExpr(t, e, op("concat", ref("input.a"), lit("-"), ref("input.f")))
		if result.Value != "x-10" {
			t.Errorf("concat = %v, want x-10", result.Value)
		}
	})

	t.Run("concat with missing arg is missing", func(t *testing.T) {
		result := evalExpr(t, e, op("concat", ref("input.ghost"), lit("x")))
		if !result.Missing {
			t.Errorf("concat missing = false, want true")
		}
	})

	t.Run("concat with null arg errors", func(t *testing.T) {
		err := evalExprErr(t, e, op("concat", ref("input.null")))
		if err.Kind != KindExprError {
			t.Errorf("concat error kind = %s, want ExprError", err.Kind)
		}
	})

	t.Run("coalesce skips missing and null", func(t *testing.T) {
		result := evalExpr(t, e, op("coalesce", ref("input.ghost"), ref("input.null"), lit("fallback")))
		if result.Value != "fallback" {
			t.Errorf("coalesce = %v, want fallback", result.Value)
		}
	})

	t.Run("coalesce of nothing is missing", func(t *testing.T) {
		result := evalExpr(t, e, op("coalesce", ref("input.ghost"), ref("input.null")))
		if !result.Missing {
			t.Errorf("coalesce missing = false, want true")
		}
	})
}

// Test string operators
func TestEval_StringOps(t *testing.T) {
	record := map[string]any{"s": "  Hello World  ", "csv": "a,b,c"}
	e := newTestEvaluator(record, nil)

	tests := []struct {
		name     string
		expr     Expr
		expected any
	}{
		{name: "trim", expr: op("trim", ref("input.s")), expected: "Hello World"},
		{name: "lowercase", expr: op("lowercase", lit("AbC")), expected: "abc"},
		{name: "uppercase", expr: op("uppercase", lit("AbC")), expected: "ABC"},
		{name: "to_string integral float", expr: op("to_string", lit(float64(10.0))), expected: "10"},
		{name: "to_string bool", expr: op("to_string", lit(true)), expected: "true"},
		{name: "replace first literal", expr: op("replace", lit("aaa"), lit("a"), lit("b")), expected: "baa"},
		{name: "replace all", expr: op("replace", lit("aaa"), lit("a"), lit("b"), lit("all")), expected: "bbb"},
		{name: "replace regex first", expr: op("replace", lit("a1b2"), lit(`\d`), lit("#"), lit("regex")), expected: "a#b2"},
		{name: "replace regex all", expr: op("replace", lit("a1b2"), lit(`\d`), lit("#"), lit("regex_all")), expected: "a#b#"},
		{name: "pad_start default space", expr: op("pad_start", lit("7"), lit(int64(3))), expected: "  7"},
		{name: "pad_start with char", expr: op("pad_start", lit("7"), lit(int64(3)), lit("0")), expected: "007"},
		{name: "pad_end", expr: op("pad_end", lit("7"), lit(int64(3)), lit("0")), expected: "700"},
		{name: "pad shorter than value", expr: op("pad_start", lit("1234"), lit(int64(2))), expected: "1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evalExpr(t, e, tt.expr)
			if result.Value != tt.expected {
				t.Errorf("eval = %v, want %v", result.Value, tt.expected)
			}
		})
	}

	t.Run("split", func(t *testing.T) {
		result := evalExpr(t, e, op("split", ref("input.csv"), lit(",")))
		parts, ok := result.Value.([]any)
		if !ok || len(parts) != 3 || parts[0] != "a" || parts[2] != "c" {
			t.Errorf("split = %v, want [a b c]", result.Value)
		}
	})

	t.Run("split empty delimiter errors", func(t *testing.T) {
		evalExprErr(t, e, op("split", lit("abc"), lit("")))
	})

	t.Run("replace bad mode errors", func(t *testing.T) {
		evalExprErr(t, e, op("replace", lit("a"), lit("a"), lit("b"), lit("everywhere")))
	})
}

// Test arithmetic and numeric helpers
func TestEval_Numeric(t *testing.T) {
	record := map[string]any{"n": "4", "f": float64(2.5)}
	e := newTestEvaluator(record, nil)

	tests := []struct {
		name     string
		expr     Expr
		expected any
	}{
		{name: "sum of numeric strings", expr: op("+", ref("input.n"), lit(int64(6))), expected: int64(10)},
		{name: "sum variadic", expr: op("+", lit(int64(1)), lit(int64(2)), lit(int64(3))), expected: int64(6)},
		{name: "difference", expr: op("-", lit(int64(5)), lit(int64(7))), expected: int64(-2)},
		{name: "product", expr: op("*", lit(int64(3)), lit(float64(2.5))), expected: float64(7.5)},
		{name: "quotient fractional", expr: op("/", lit(int64(10)), lit(int64(4))), expected: float64(2.5)},
		{name: "round default scale", expr: op("round", lit(float64(2.5))), expected: int64(3)},
		{name: "round half away from zero negative", expr: op("round", lit(float64(-2.5))), expected: int64(-3)},
		{name: "round with scale", expr: op("round", lit(float64(1.25)), lit(int64(1))), expected: float64(1.3)},
		{name: "to_base hex", expr: op("to_base", lit(int64(255)), lit(int64(16))), expected: "ff"},
		{name: "to_base binary", expr: op("to_base", lit(int64(5)), lit(int64(2))), expected: "101"},
		{name: "to_base negative", expr: op("to_base", lit(int64(-255)), lit(int64(16))), expected: "-ff"},
		{name: "to_base zero", expr: op("to_base", lit(int64(0)), lit(int64(36))), expected: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evalExpr(t, e, tt.expr)
			if result.Value != tt.expected {
				t.Errorf("eval = %v (%T), want %v (%T)", result.Value, result.Value, tt.expected, tt.expected)
			}
		})
	}

	t.Run("division by zero errors", func(t *testing.T) {
		evalExprErr(t, e, op("/", lit(int64(1)), lit(int64(0))))
	})

	t.Run("missing operand propagates", func(t *testing.T) {
		result := evalExpr(t, e, op("+", ref("input.ghost"), lit(int64(1))))
		if !result.Missing {
			t.Errorf("missing = false, want true")
		}
	})

	t.Run("non-numeric operand errors", func(t *testing.T) {
		evalExprErr(t, e, op("+", lit("abc"), lit(int64(1))))
	})

	t.Run("base out of range errors", func(t *testing.T) {
		evalExprErr(t, e, op("to_base", lit(int64(5)), lit(int64(37))))
	})

	t.Run("negative scale errors", func(t *testing.T) {
		evalExprErr(t, e, op("round", lit(float64(1.5)), lit(int64(-1))))
	})
}

// Test boolean operators
func TestEval_BoolOps(t *testing.T) {
	record := map[string]any{"t": true, "f": false, "s": "x"}
	e := newTestEvaluator(record, nil)

	tests := []struct {
		name        string
		expr        Expr
		expected    any
		wantMissing bool
	}{
		{name: "and true", expr: op("and", ref("input.t"), lit(true)), expected: true},
		{name: "and short-circuit false", expr: op("and", ref("input.f"), ref("input.s")), expected: false},
		{name: "or short-circuit true", expr: op("or", ref("input.t"), ref("input.s")), expected: true},
		{name: "and with undecided missing", expr: op("and", ref("input.t"), ref("input.ghost")), wantMissing: true},
		{name: "or with undecided missing", expr: op("or", ref("input.f"), ref("input.ghost")), wantMissing: true},
		{name: "not", expr: op("not", ref("input.f")), expected: true},
		{name: "not missing propagates", expr: op("not", ref("input.ghost")), wantMissing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evalExpr(t, e, tt.expr)
			if result.Missing != tt.wantMissing {
				t.Fatalf("missing = %v, want %v", result.Missing, tt.wantMissing)
			}
			if !tt.wantMissing && result.Value != tt.expected {
				t.Errorf("eval = %v, want %v", result.Value, tt.expected)
			}
		})
	}

	t.Run("and with non-bool errors", func(t *testing.T) {
		evalExprErr(t, e, op("and", ref("input.t"), ref("input.s")))
	})
}

// Test comparison operators
func TestEval_Compare(t *testing.T) {
	record := map[string]any{"n": int64(10), "s": "10", "f": float64(10.0), "null": nil}
	e := newTestEvaluator(record, nil)

	tests := []struct {
		name     string
		expr     Expr
		expected bool
	}{
		{name: "number equals numeric string", expr: op("==", ref("input.n"), ref("input.s")), expected: true},
		{name: "integral float equals int", expr: op("==", ref("input.f"), ref("input.n")), expected: true},
		{name: "null equals null", expr: op("==", ref("input.null"), lit(nil)), expected: true},
		{name: "missing coerces to null", expr: op("==", ref("input.ghost"), ref("input.null")), expected: true},
		{name: "null not equal to value", expr: op("==", ref("input.null"), lit("x")), expected: false},
		{name: "not equal", expr: op("!=", lit("a"), lit("b")), expected: true},
		{name: "less than numeric strings", expr: op("<", lit("9"), lit("10")), expected: true},
		{name: "greater or equal", expr: op(">=", lit(int64(10)), ref("input.s")), expected: true},
		{name: "regex match", expr: op("~=", lit("abc-123"), lit(`^[a-z]+-\d+$`)), expected: true},
		{name: "regex no match", expr: op("~=", lit("abc"), lit(`^\d+$`)), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evalExpr(t, e, tt.expr)
			if result.Value != tt.expected {
				t.Errorf("eval = %v, want %v", result.Value, tt.expected)
			}
		})
	}

	t.Run("numeric comparison with missing errors", func(t *testing.T) {
		evalExprErr(t, e, op("<", ref("input.ghost"), lit(int64(1))))
	})

	t.Run("regex with missing value is missing", func(t *testing.T) {
		result := evalExpr(t, e, op("~=", ref("input.ghost"), lit("x")))
		if !result.Missing {
			t.Errorf("missing = false, want true")
		}
	})

	t.Run("regex with missing pattern is missing", func(t *testing.T) {
		result := evalExpr(t, e, op("~=", lit("x"), ref("input.ghost")))
		if !result.Missing {
			t.Errorf("missing = false, want true")
		}
	})

	t.Run("regex with null operand errors", func(t *testing.T) {
		evalExprErr(t, e, op("~=", ref("input.null"), lit("x")))
	})

	t.Run("equality on array errors", func(t *testing.T) {
		evalExprErr(t, e, op("==", lit([]any{}), lit("x")))
	})

	t.Run("invalid regex pattern errors", func(t *testing.T) {
		evalExprErr(t, e, op("~=", lit("x"), lit("[")))
	})
}

// Test lookup and lookup_first
func TestEval_Lookup(t *testing.T) {
	context := map[string]any{
		"tags": []any{
			map[string]any{"id": "p1", "value": "hot", "rank": int64(1)},
			map[string]any{"id": "p2", "value": "cold"},
			map[string]any{"id": "p1", "value": "warm"},
			map[string]any{"value": "orphan"},
		},
	}
	record := map[string]any{"tag": "p1", "numeric": int64(1)}
	e := newTestEvaluator(record, context)

	t.Run("lookup returns all matches projected", func(t *testing.T) {
		result := evalExpr(t, e, op("lookup", ref("context.tags"), lit("id"), ref("input.tag"), lit("value")))
		values, ok := result.Value.([]any)
		if !ok || len(values) != 2 || values[0] != "hot" || values[1] != "warm" {
			t.Errorf("lookup = %v, want [hot warm]", result.Value)
		}
	})

	t.Run("lookup without output path returns elements", func(t *testing.T) {
		result := evalExpr(t, e, op("lookup", ref("context.tags"), lit("id"), lit("p2")))
		values, ok := result.Value.([]any)
		if !ok || len(values) != 1 {
			t.Fatalf("lookup = %v, want one element", result.Value)
		}
		elem, ok := values[0].(map[string]any)
		if !ok || elem["value"] != "cold" {
			t.Errorf("lookup element = %v, want the p2 object", values[0])
		}
	})

	t.Run("lookup compares canonical strings", func(t *testing.T) {
		result := evalExpr(t, e, op("lookup_first", ref("context.tags"), lit("rank"), lit("1"), lit("value")))
		if result.Value != "hot" {
			t.Errorf("lookup_first = %v, want hot", result.Value)
		}
	})

	t.Run("no match is missing", func(t *testing.T) {
		result := evalExpr(t, e, op("lookup", ref("context.tags"), lit("id"), lit("p9")))
		if !result.Missing {
			t.Errorf("missing = false, want true")
		}
	})

	t.Run("missing match value propagates", func(t *testing.T) {
		result := evalExpr(t, e, op("lookup", ref("context.tags"), lit("id"), ref("input.ghost")))
		if !result.Missing {
			t.Errorf("missing = false, want true")
		}
	})

	t.Run("non-array collection errors", func(t *testing.T) {
		evalExprErr(t, e, op("lookup", lit("nope"), lit("id"), lit("p1")))
	})

	t.Run("null match value errors", func(t *testing.T) {
		evalExprErr(t, e, op("lookup", ref("context.tags"), lit("id"), lit(nil)))
	})

	t.Run("non-literal key path errors", func(t *testing.T) {
		evalExprErr(t, e, op("lookup", ref("context.tags"), ref("input.tag"), lit("p1")))
	})
}

// Property-based test: lookup_first equals the head of lookup (P4)
func TestEval_PropertyLookupFirstHead(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("lookup_first(c,k,v,p) is the first element of lookup(c,k,v,p)", prop.ForAll(
		func(ids []int8, match int8) bool {
			collection := make([]any, len(ids))
			for i, id := range ids {
				collection[i] = map[string]any{
					"id":    int64(id),
					"value": "v" + numberToString(int64(i)),
				}
			}
			context := map[string]any{"rows": collection}
			e := newTestEvaluator(map[string]any{}, context)

			all, err1 := e.eval(op("lookup", ref("context.rows"), lit("id"), lit(int64(match)), lit("value")), "expr", nil)
			first, err2 := e.eval(op("lookup_first", ref("context.rows"), lit("id"), lit(int64(match)), lit("value")), "expr", nil)
			if err1 != nil || err2 != nil {
				return false
			}
			if all.Missing != first.Missing {
				return false
			}
			if all.Missing {
				return true
			}
			values := all.Value.([]any)
			return len(values) > 0 && values[0] == first.Value
		},
		gen.SliceOf(gen.Int8()),
		gen.Int8(),
	))

	properties.TestingRun(t)
}

// Test chains: injected first argument threading
func TestEval_Chain(t *testing.T) {
	record := map[string]any{"name": "  ada  "}
	e := newTestEvaluator(record, nil)

	t.Run("chain pipes through ops", func(t *testing.T) {
		result := evalExpr(t, e, chain(ref("input.name"), op("trim"), op("uppercase"), op("concat", lit("!"))))
		if result.Value != "ADA!" {
			t.Errorf("chain = %v, want ADA!", result.Value)
		}
	})

	t.Run("chain step must be op", func(t *testing.T) {
		evalExprErr(t, e, chain(ref("input.name"), lit("x")))
	})

	t.Run("empty chain errors", func(t *testing.T) {
		evalExprErr(t, e, chain())
	})

	t.Run("missing propagates through chain", func(t *testing.T) {
		result := evalExpr(t, e, chain(ref("input.ghost"), op("trim")))
		if !result.Missing {
			t.Errorf("missing = false, want true")
		}
	})
}

// Test date operators
func TestEval_Dates(t *testing.T) {
	e := newTestEvaluator(map[string]any{}, nil)

	tests := []struct {
		name     string
		expr     Expr
		expected any
	}{
		{
			name:     "date_format auto-detect date only",
			expr:     op("date_format", lit("2024-03-05"), lit("%Y/%m/%d")),
			expected: "2024/03/05",
		},
		{
			name:     "date_format rfc3339 input",
			expr:     op("date_format", lit("2024-03-05T10:30:00Z"), lit("%H:%M")),
			expected: "10:30",
		},
		{
			name:     "date_format explicit input format",
			expr:     op("date_format", lit("05/03/2024"), lit("%Y-%m-%d"), lit("%d/%m/%Y")),
			expected: "2024-03-05",
		},
		{
			name:     "date_format format list tried in order",
			expr:     op("date_format", lit("2024.03.05"), lit("%Y-%m-%d"), lit([]any{"%d/%m/%Y", "%Y.%m.%d"})),
			expected: "2024-03-05",
		},
		{
			name:     "date_format timezone shift",
			expr:     op("date_format", lit("2024-03-05T00:30:00Z"), lit("%Y-%m-%d %H:%M"), lit("+09:00")),
			expected: "2024-03-05 09:30",
		},
		{
			name:     "to_unixtime seconds",
			expr:     op("to_unixtime", lit("1970-01-01T00:01:00Z")),
			expected: int64(60),
		},
		{
			name:     "to_unixtime millis",
			expr:     op("to_unixtime", lit("1970-01-01T00:00:01Z"), lit("ms")),
			expected: int64(1000),
		},
		{
			name:     "to_unixtime naive in timezone",
			expr:     op("to_unixtime", lit("1970-01-01 09:00:00"), lit("+09:00")),
			expected: int64(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evalExpr(t, e, tt.expr)
			if result.Value != tt.expected {
				t.Errorf("eval = %v (%T), want %v (%T)", result.Value, result.Value, tt.expected, tt.expected)
			}
		})
	}

	t.Run("unparsable date errors", func(t *testing.T) {
		evalExprErr(t, e, op("date_format", lit("not a date"), lit("%Y")))
	})

	t.Run("bad timezone errors", func(t *testing.T) {
		evalExprErr(t, e, op("date_format", lit("2024-03-05"), lit("%Y"), lit("+25:00")))
	})

	t.Run("bad unit errors", func(t *testing.T) {
		evalExprErr(t, e, op("to_unixtime", lit("2024-03-05"), lit("ns")))
	})
}

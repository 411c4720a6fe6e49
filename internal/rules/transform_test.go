package rules

import (
	"strings"
	"testing"
)

func mustParse(t *testing.T, yaml string) *RuleFile {
	t.Helper()
	rule, err := ParseRuleFile(yaml)
	if err != nil {
		t.Fatalf("ParseRuleFile() error = %v", err)
	}
	if errors := Validate(rule); len(errors) != 0 {
		t.Fatalf("Validate() = %v, want clean", errors)
	}
	return rule
}

func encodeOutputs(outputs []any) string {
	return EncodeRecord(outputs)
}

// CSV basic: two string sources and a float cast
func TestTransform_CSVBasic(t *testing.T) {
	rule := mustParse(t, `
version: 1
input:
  format: csv
  csv:
    has_header: true
    delimiter: ","
mappings:
  - target: id
    source: id
    type: string
  - target: name
    source: name
    type: string
  - target: price
    source: price
    type: float
`)

	outputs, warnings, err := Transform(rule, "id,name,price\n001,Apple,100\n", nil)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("Transform() warnings = %v, want none", warnings)
	}

	got := encodeOutputs(outputs)
	want := `[{"id":"001","name":"Apple","price":100.0}]`
	if got != want {
		t.Errorf("Transform() = %s, want %s", got, want)
	}
}

// Out/context references with records_path
func TestTransform_OutAndContext(t *testing.T) {
	rule := mustParse(t, `
version: 1
input:
  format: json
  json:
    records_path: items
mappings:
  - target: id
    source: id
  - target: price
    source: price
    type: float
  - target: text
    expr:
      op: concat
      args:
        - ref: out.id
        - "-"
        - ref: out.price
  - target: tenant
    source: context.tenant_id
`)

	input := `{"items":[{"id":1,"price":10}]}`
	context := map[string]any{"tenant_id": "t-001"}

	outputs, _, err := Transform(rule, input, context)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	got := encodeOutputs(outputs)
	want := `[{"id":1,"price":10.0,"tenant":"t-001","text":"1-10"}]`
	if got != want {
		t.Errorf("Transform() = %s, want %s", got, want)
	}
}

// Coalesce with default: missing vs null vs value
func TestTransform_CoalesceDefault(t *testing.T) {
	rule := mustParse(t, `
version: 1
input:
  format: json
  json: {}
mappings:
  - target: display
    expr:
      op: coalesce
      args:
        - ref: input.name
        - ref: input.nickname
        - unknown
  - target: status
    source: status
    default: NEW
`)

	input := `[
		{"name":"A","nickname":"Alpha","status":"OK"},
		{"nickname":"Beta"},
		{"name":null,"nickname":"Gamma"}
	]`

	outputs, _, err := Transform(rule, input, nil)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	got := encodeOutputs(outputs)
	want := `[{"display":"A","status":"OK"},{"display":"Beta","status":"NEW"},{"display":"Gamma","status":"NEW"}]`
	if got != want {
		t.Errorf("Transform() = %s, want %s", got, want)
	}
}

// Runtime float cast failure carries kind and path
func TestTransform_FloatCastFailure(t *testing.T) {
	rule := mustParse(t, `
version: 1
input:
  format: json
  json: {}
mappings:
  - target: price
    source: price
    type: float
`)

	_, _, err := Transform(rule, `[{"price":"NaN"}]`, nil)
	if err == nil {
		t.Fatalf("Transform() error = nil, want TypeCastFailed")
	}
	if err.Kind != KindTypeCastFailed {
		t.Errorf("error kind = %s, want TypeCastFailed", err.Kind)
	}
	if err.Path != "mappings[0].type" {
		t.Errorf("error path = %s, want mappings[0].type", err.Path)
	}
}

// Lookup miss coalesced to a fallback
func TestTransform_LookupMiss(t *testing.T) {
	rule := mustParse(t, `
version: 1
input:
  format: json
  json: {}
mappings:
  - target: primary
    expr:
      op: coalesce
      args:
        - op: lookup_first
          args:
            - ref: context.tags
            - id
            - ref: input.tag_id
            - value
        - N/A
`)

	context := map[string]any{
		"tags": []any{map[string]any{"id": "p1", "value": "hot"}},
	}

	outputs, _, err := Transform(rule, `[{"tag_id":"p2"}]`, context)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	got := encodeOutputs(outputs)
	want := `[{"primary":"N/A"}]`
	if got != want {
		t.Errorf("Transform() = %s, want %s", got, want)
	}
}

// when gating: false, missing, null and errors all skip with a warning
func TestTransform_WhenGating(t *testing.T) {
	rule := mustParse(t, `
version: 1
input:
  format: json
  json: {}
mappings:
  - target: a
    source: a
    when:
      op: "=="
      args:
        - ref: input.kind
        - keep
  - target: b
    value: seen
    when:
      ref: input.flag
`)

	input := `[
		{"kind":"keep","a":1,"flag":true},
		{"kind":"drop","a":2},
		{"kind":"keep","a":3,"flag":"not a bool"}
	]`

	outputs, warnings, err := Transform(rule, input, nil)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	got := encodeOutputs(outputs)
	want := `[{"a":1,"b":"seen"},{},{"a":3}]`
	if got != want {
		t.Errorf("Transform() = %s, want %s", got, want)
	}

	// Records 1 and 2 each produce one when warning (missing flag / non-bool flag).
	if len(warnings) != 2 {
		t.Fatalf("warnings = %v, want 2", warnings)
	}
	for _, warning := range warnings {
		if warning.Kind != KindExprError {
			t.Errorf("warning kind = %s, want ExprError", warning.Kind)
		}
		if !strings.HasSuffix(warning.Path, ".when") {
			t.Errorf("warning path = %s, want a .when path", warning.Path)
		}
	}
}

// required: missing errors even with null present policy
func TestTransform_Required(t *testing.T) {
	rule := mustParse(t, `
version: 1
input:
  format: json
  json: {}
mappings:
  - target: id
    source: id
    required: true
`)

	t.Run("missing required errors", func(t *testing.T) {
		_, _, err := Transform(rule, `[{}]`, nil)
		if err == nil || err.Kind != KindMissingRequired {
			t.Fatalf("Transform() error = %v, want MissingRequired", err)
		}
	})

	t.Run("null required errors", func(t *testing.T) {
		_, _, err := Transform(rule, `[{"id":null}]`, nil)
		if err == nil || err.Kind != KindMissingRequired {
			t.Fatalf("Transform() error = %v, want MissingRequired", err)
		}
	})

	t.Run("null without required is kept", func(t *testing.T) {
		optional := mustParse(t, `
version: 1
input:
  format: json
  json: {}
mappings:
  - target: id
    source: id
`)
		outputs, _, err := Transform(optional, `[{"id":null}]`, nil)
		if err != nil {
			t.Fatalf("Transform() error = %v", err)
		}
		if got := encodeOutputs(outputs); got != `[{"id":null}]` {
			t.Errorf("Transform() = %s, want [{\"id\":null}]", got)
		}
	})
}

// default substitutes for missing but not for null (P3)
func TestTransform_DefaultPolicy(t *testing.T) {
	rule := mustParse(t, `
version: 1
input:
  format: json
  json: {}
mappings:
  - target: v
    source: v
    default: fallback
`)

	outputs, _, err := Transform(rule, `[{},{"v":null},{"v":"x"}]`, nil)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	got := encodeOutputs(outputs)
	want := `[{"v":"fallback"},{"v":null},{"v":"x"}]`
	if got != want {
		t.Errorf("Transform() = %s, want %s", got, want)
	}
}

// Nested targets build intermediate objects; collisions are InvalidTarget
func TestTransform_NestedTargets(t *testing.T) {
	rule := mustParse(t, `
version: 1
input:
  format: json
  json: {}
mappings:
  - target: user.name
    source: name
  - target: user.contact.email
    source: email
`)

	outputs, _, err := Transform(rule, `[{"name":"Ada","email":"a@x"}]`, nil)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	got := encodeOutputs(outputs)
	want := `[{"user":{"contact":{"email":"a@x"},"name":"Ada"}}]`
	if got != want {
		t.Errorf("Transform() = %s, want %s", got, want)
	}

	t.Run("collision with scalar", func(t *testing.T) {
		bad := mustParse(t, `
version: 1
input:
  format: json
  json: {}
mappings:
  - target: user
    source: name
  - target: user.email
    source: email
`)
		_, _, err := Transform(bad, `[{"name":"Ada","email":"a@x"}]`, nil)
		if err == nil || err.Kind != KindInvalidTarget {
			t.Fatalf("Transform() error = %v, want InvalidTarget", err)
		}
	})
}

// record_when drops records before mappings run
func TestTransform_RecordWhen(t *testing.T) {
	rule := mustParse(t, `
version: 1
input:
  format: json
  json: {}
record_when:
  op: "=="
  args:
    - ref: input.kind
    - order
mappings:
  - target: id
    source: id
`)

	outputs, warnings, err := Transform(rule, `[{"kind":"order","id":1},{"kind":"noise","id":2},{"id":3}]`, nil)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	got := encodeOutputs(outputs)
	want := `[{"id":1}]`
	if got != want {
		t.Errorf("Transform() = %s, want %s", got, want)
	}
	// Third record: missing kind coerces to null, null != "order" is false, no warning.
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
}

// Input-shape failures
func TestTransform_InputErrors(t *testing.T) {
	jsonRule := mustParse(t, `
version: 1
input:
  format: json
  json:
    records_path: rows
mappings:
  - target: id
    source: id
`)

	t.Run("dead records_path", func(t *testing.T) {
		_, err := NewStream(jsonRule, `{"other":[]}`, nil)
		if err == nil || err.Kind != KindInvalidRecordsPath {
			t.Fatalf("NewStream() error = %v, want InvalidRecordsPath", err)
		}
	})

	t.Run("records_path to scalar", func(t *testing.T) {
		_, err := NewStream(jsonRule, `{"rows":42}`, nil)
		if err == nil || err.Kind != KindInvalidInput {
			t.Fatalf("NewStream() error = %v, want InvalidInput", err)
		}
	})

	t.Run("records_path to object yields one record", func(t *testing.T) {
		outputs, _, err := Transform(jsonRule, `{"rows":{"id":7}}`, nil)
		if err != nil {
			t.Fatalf("Transform() error = %v", err)
		}
		if got := encodeOutputs(outputs); got != `[{"id":7}]` {
			t.Errorf("Transform() = %s, want [{\"id\":7}]", got)
		}
	})

	t.Run("unparsable json", func(t *testing.T) {
		_, err := NewStream(jsonRule, `{"rows":`, nil)
		if err == nil || err.Kind != KindInvalidInput {
			t.Fatalf("NewStream() error = %v, want InvalidInput", err)
		}
	})
}

// Preflight collects record errors across all records without aborting
func TestPreflight_CollectsAcrossRecords(t *testing.T) {
	rule := mustParse(t, `
version: 1
input:
  format: json
  json: {}
mappings:
  - target: price
    source: price
    type: float
    required: true
`)

	input := `[{"price":"NaN"},{"price":1},{},{"price":"x"}]`
	warnings, diagnostics, err := Preflight(rule, input, nil)
	if err != nil {
		t.Fatalf("Preflight() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
	if len(diagnostics) != 3 {
		t.Fatalf("diagnostics = %v, want 3", diagnostics)
	}
	if diagnostics[0].Kind != KindTypeCastFailed {
		t.Errorf("diagnostics[0] = %v, want TypeCastFailed", diagnostics[0])
	}
	if diagnostics[1].Kind != KindMissingRequired {
		t.Errorf("diagnostics[1] = %v, want MissingRequired", diagnostics[1])
	}
}

// NDJSON output concatenated equals array mode (P6)
func TestTransform_NDJSONEquivalence(t *testing.T) {
	rule := mustParse(t, `
version: 1
input:
  format: csv
  csv:
    has_header: true
    delimiter: ";"
mappings:
  - target: id
    source: id
  - target: n
    source: n
    type: int
`)

	input := "id;n\na;1\nb;2\nc;3\n"
	outputs, _, err := Transform(rule, input, nil)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	var ndjson strings.Builder
	writer := NewNDJSONWriter(&ndjson)
	for _, record := range outputs {
		if err := writer.Write(record); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	lines := strings.Split(strings.TrimSuffix(ndjson.String(), "\n"), "\n")
	joined := "[" + strings.Join(lines, ",") + "]"
	if joined != encodeOutputs(outputs) {
		t.Errorf("ndjson-joined = %s, array = %s", joined, encodeOutputs(outputs))
	}
	if !strings.HasSuffix(ndjson.String(), "\n") {
		t.Errorf("ndjson output must end with a newline")
	}
}

// Headerless CSV uses declared column names in order
func TestTransform_CSVDeclaredColumns(t *testing.T) {
	rule := mustParse(t, `
version: 1
input:
  format: csv
  csv:
    has_header: false
    delimiter: "|"
    columns:
      - name: id
      - name: qty
        type: int
mappings:
  - target: id
    source: id
  - target: qty
    source: qty
    type: int
`)

	outputs, _, err := Transform(rule, "a|2\nb|5\n", nil)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	got := encodeOutputs(outputs)
	want := `[{"id":"a","qty":2},{"id":"b","qty":5}]`
	if got != want {
		t.Errorf("Transform() = %s, want %s", got, want)
	}
}

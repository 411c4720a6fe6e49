package rules

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Test canonical number rendering
func TestNumberToString(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{name: "integer", value: int64(10), expected: "10"},
		{name: "negative integer", value: int64(-3), expected: "-3"},
		{name: "integral float", value: float64(10.0), expected: "10"},
		{name: "float with fraction", value: float64(10.5), expected: "10.5"},
		{name: "float trailing zero trimmed", value: float64(1.50), expected: "1.5"},
		{name: "zero", value: int64(0), expected: "0"},
		{name: "negative integral float", value: float64(-2.0), expected: "-2"},
		{name: "small fraction", value: float64(0.25), expected: "0.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := numberToString(tt.value)
			if got != tt.expected {
				t.Errorf("numberToString(%v) = %q, want %q", tt.value, got, tt.expected)
			}
		})
	}
}

// Test mapping-level casts
func TestCastValue(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		typeName string
		expected any
		wantKind ErrorKind
	}{
		{name: "string from integral float", value: float64(100.0), typeName: "string", expected: "100"},
		{name: "string from bool", value: true, typeName: "string", expected: "true"},
		{name: "int from string", value: "42", typeName: "int", expected: int64(42)},
		{name: "int from integral float", value: float64(7.0), typeName: "int", expected: int64(7)},
		{name: "int rejects fraction", value: float64(7.5), typeName: "int", wantKind: KindTypeCastFailed},
		{name: "int rejects float string", value: "7.5", typeName: "int", wantKind: KindTypeCastFailed},
		{name: "float from string", value: "100", typeName: "float", expected: float64(100)},
		{name: "float rejects NaN string", value: "NaN", typeName: "float", wantKind: KindTypeCastFailed},
		{name: "float rejects Inf string", value: "Inf", typeName: "float", wantKind: KindTypeCastFailed},
		{name: "bool from mixed case", value: "TRUE", typeName: "bool", expected: true},
		{name: "bool from false string", value: "false", typeName: "bool", expected: false},
		{name: "bool rejects number", value: int64(1), typeName: "bool", wantKind: KindTypeCastFailed},
		{name: "string rejects array", value: []any{}, typeName: "string", wantKind: KindTypeCastFailed},
		{name: "unknown type name", value: "x", typeName: "decimal", wantKind: KindTypeCastFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := castValue(tt.value, tt.typeName, "mappings[0].type")
			if tt.wantKind != "" {
				if err == nil {
					t.Fatalf("castValue(%v, %q) error = nil, want kind %s", tt.value, tt.typeName, tt.wantKind)
				}
				if err.Kind != tt.wantKind {
					t.Errorf("castValue(%v, %q) kind = %s, want %s", tt.value, tt.typeName, err.Kind, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("castValue(%v, %q) error = %v, want nil", tt.value, tt.typeName, err)
			}
			if got != tt.expected {
				t.Errorf("castValue(%v, %q) = %v, want %v", tt.value, tt.typeName, got, tt.expected)
			}
		})
	}
}

// Test numeric parsing boundaries
func TestValueToNumber(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    float64
		wantErr bool
	}{
		{name: "float passthrough", value: float64(1.5), want: 1.5},
		{name: "int64", value: int64(3), want: 3},
		{name: "numeric string", value: "2.25", want: 2.25},
		{name: "whitespace string rejected", value: " 1", wantErr: true},
		{name: "empty string rejected", value: "", wantErr: true},
		{name: "bool rejected", value: true, wantErr: true},
		{name: "null rejected", value: nil, wantErr: true},
		{name: "inf string rejected", value: "Inf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := valueToNumber(tt.value, "p", "operand must be a number")
			if tt.wantErr {
				if err == nil {
					t.Errorf("valueToNumber(%v) error = nil, want error", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("valueToNumber(%v) error = %v", tt.value, err)
			}
			if got != tt.want {
				t.Errorf("valueToNumber(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

// Test integral materialisation of arithmetic results
func TestNumberFromFloat(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		expected any
		wantErr  bool
	}{
		{name: "integral becomes int64", value: 20.0, expected: int64(20)},
		{name: "fractional stays float", value: 2.5, expected: float64(2.5)},
		{name: "negative integral", value: -4.0, expected: int64(-4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := numberFromFloat(tt.value, "p")
			if tt.wantErr {
				if err == nil {
					t.Errorf("numberFromFloat(%v) error = nil, want error", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("numberFromFloat(%v) error = %v", tt.value, err)
			}
			if got != tt.expected {
				t.Errorf("numberFromFloat(%v) = %v (%T), want %v (%T)", tt.value, got, got, tt.expected, tt.expected)
			}
		})
	}
}

// Property-based test: to_string round-trips integer-valued doubles
func TestNumberToString_PropertyRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical form of an integral double re-parses to the same form", prop.ForAll(
		func(n int32) bool {
			asFloat := float64(n)
			first := numberToString(asFloat)
			parsed, err := valueToNumber(first, "p", "operand must be a number")
			if err != nil {
				return false
			}
			return numberToString(parsed) == first
		},
		gen.Int32(),
	))

	properties.TestingRun(t)
}

package rules

import "testing"

// Test key path -> position mapping over block YAML
func TestYamlLocator(t *testing.T) {
	source := `version: 1
input:
  format: csv
  csv:
    delimiter: ","
mappings:
  - target: id
    source: id
  - target: name
    expr:
      op: concat
`

	locator := newYamlLocator(source)

	tests := []struct {
		name     string
		path     string
		wantLine int
		wantCol  int
	}{
		{name: "top-level key", path: "version", wantLine: 1, wantCol: 1},
		{name: "nested key", path: "input.format", wantLine: 3, wantCol: 3},
		{name: "deeper nesting", path: "input.csv.delimiter", wantLine: 5, wantCol: 5},
		{name: "first sequence item", path: "mappings[0]", wantLine: 7, wantCol: 3},
		{name: "key on dash line", path: "mappings[0].target", wantLine: 7, wantCol: 5},
		{name: "key inside item", path: "mappings[0].source", wantLine: 8, wantCol: 5},
		{name: "second item", path: "mappings[1].target", wantLine: 9, wantCol: 5},
		{name: "nested under item key", path: "mappings[1].expr.op", wantLine: 11, wantCol: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := locator.locationFor(tt.path)
			if loc == nil {
				t.Fatalf("locationFor(%q) = nil, want line %d", tt.path, tt.wantLine)
			}
			if loc.Line != tt.wantLine || loc.Column != tt.wantCol {
				t.Errorf("locationFor(%q) = %d:%d, want %d:%d", tt.path, loc.Line, loc.Column, tt.wantLine, tt.wantCol)
			}
		})
	}

	t.Run("unknown path has no position", func(t *testing.T) {
		if loc := locator.locationFor("mappings[5].target"); loc != nil {
			t.Errorf("locationFor(unknown) = %v, want nil", loc)
		}
	})
}

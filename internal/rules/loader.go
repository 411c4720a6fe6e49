// internal/rules/loader.go
package rules

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

/*
 * YAML rule loader.
 *
 * Decodes a rule document into the model with minimal shape enforcement:
 * strong typing of the variants (source vs value vs expr, lit vs ref vs op
 * vs chain) happens here, deep validation is the validator's job. Field
 * names are strict: an unknown key anywhere is a parse diagnostic carrying
 * the YAML line/column of the offending node.
 *
 * Expression classification follows the untagged-union rule: a mapping node
 * whose keys are exactly {ref}, {op} / {op, args}, or {chain} becomes that
 * variant; any other node is a literal. Scalars decode to string, bool,
 * int64, or float64; the int/float split survives into evaluation.
 *
 * Parsed files are cached in an LRU keyed by the full source text; rule
 * files are immutable so cache hits are shared safely.
 */

const ruleCacheCapacity = 128

var ruleCache = newLRUCache[string, *RuleFile](ruleCacheCapacity)

// ParseRuleFile decodes YAML source into a RuleFile.
// Failures produce a single ParseFailed diagnostic with source position
// where one is available.
func ParseRuleFile(source string) (*RuleFile, *RuleError) {
	if cached, ok := ruleCache.get(source); ok {
		return cached, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(source), &root); err != nil {
		return nil, &RuleError{Code: CodeParseFailed, Message: err.Error()}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, &RuleError{Code: CodeParseFailed, Message: "rule file is empty"}
	}

	doc := root.Content[0]
	rule, err := decodeRuleFile(doc)
	if err != nil {
		return nil, err
	}

	ruleCache.put(source, rule)
	return rule, nil
}

func parseError(node *yaml.Node, path, format string, args ...any) *RuleError {
	err := &RuleError{
		Code:    CodeParseFailed,
		Message: fmt.Sprintf(format, args...),
		Path:    path,
	}
	if node != nil {
		err.Location = &SourceLocation{Line: node.Line, Column: node.Column}
	}
	return err
}

func decodeRuleFile(node *yaml.Node) (*RuleFile, *RuleError) {
	fields, err := mappingFields(node, "", []string{"version", "input", "output", "record_when", "mappings"})
	if err != nil {
		return nil, err
	}

	rule := &RuleFile{}

	if v, ok := fields["version"]; ok {
		version, err := decodeInt(v, "version")
		if err != nil {
			return nil, err
		}
		rule.Version = version
	}

	if v, ok := fields["input"]; ok {
		input, err := decodeInput(v)
		if err != nil {
			return nil, err
		}
		rule.Input = input
	}

	if v, ok := fields["output"]; ok {
		outFields, err := mappingFields(v, "output", []string{"name"})
		if err != nil {
			return nil, err
		}
		spec := &OutputSpec{}
		if nameNode, ok := outFields["name"]; ok {
			name, err := decodeString(nameNode, "output.name")
			if err != nil {
				return nil, err
			}
			spec.Name = name
		}
		rule.Output = spec
	}

	if v, ok := fields["record_when"]; ok {
		expr, err := decodeExpr(v, "record_when")
		if err != nil {
			return nil, err
		}
		rule.RecordWhen = expr
	}

	if v, ok := fields["mappings"]; ok {
		if v.Kind != yaml.SequenceNode {
			return nil, parseError(v, "mappings", "mappings must be a sequence")
		}
		rule.Mappings = make([]Mapping, 0, len(v.Content))
		for i, item := range v.Content {
			mapping, err := decodeMapping(item, "mappings["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			rule.Mappings = append(rule.Mappings, mapping)
		}
	}

	return rule, nil
}

func decodeInput(node *yaml.Node) (InputSpec, *RuleError) {
	fields, err := mappingFields(node, "input", []string{"format", "csv", "json"})
	if err != nil {
		return InputSpec{}, err
	}

	spec := InputSpec{}

	if v, ok := fields["format"]; ok {
		format, err := decodeString(v, "input.format")
		if err != nil {
			return InputSpec{}, err
		}
		spec.Format = InputFormat(format)
	}

	if v, ok := fields["csv"]; ok {
		csvFields, err := mappingFields(v, "input.csv", []string{"has_header", "delimiter", "columns"})
		if err != nil {
			return InputSpec{}, err
		}
		csvSpec := &CSVInput{HasHeader: true, Delimiter: ","}
		if n, ok := csvFields["has_header"]; ok {
			flag, err := decodeBool(n, "input.csv.has_header")
			if err != nil {
				return InputSpec{}, err
			}
			csvSpec.HasHeader = flag
		}
		if n, ok := csvFields["delimiter"]; ok {
			delim, err := decodeString(n, "input.csv.delimiter")
			if err != nil {
				return InputSpec{}, err
			}
			csvSpec.Delimiter = delim
		}
		if n, ok := csvFields["columns"]; ok {
			if n.Kind != yaml.SequenceNode {
				return InputSpec{}, parseError(n, "input.csv.columns", "columns must be a sequence")
			}
			for i, item := range n.Content {
				path := "input.csv.columns[" + strconv.Itoa(i) + "]"
				colFields, err := mappingFields(item, path, []string{"name", "type"})
				if err != nil {
					return InputSpec{}, err
				}
				col := Column{}
				if cn, ok := colFields["name"]; ok {
					name, err := decodeString(cn, path+".name")
					if err != nil {
						return InputSpec{}, err
					}
					col.Name = name
				}
				if ct, ok := colFields["type"]; ok {
					typeName, err := decodeString(ct, path+".type")
					if err != nil {
						return InputSpec{}, err
					}
					col.Type = typeName
				}
				csvSpec.Columns = append(csvSpec.Columns, col)
			}
		}
		spec.CSV = csvSpec
	}

	if v, ok := fields["json"]; ok {
		jsonFields, err := mappingFields(v, "input.json", []string{"records_path"})
		if err != nil {
			return InputSpec{}, err
		}
		jsonSpec := &JSONInput{}
		if n, ok := jsonFields["records_path"]; ok {
			path, err := decodeString(n, "input.json.records_path")
			if err != nil {
				return InputSpec{}, err
			}
			jsonSpec.RecordsPath = path
		}
		spec.JSON = jsonSpec
	}

	return spec, nil
}

func decodeMapping(node *yaml.Node, path string) (Mapping, *RuleError) {
	fields, err := mappingFields(node, path, []string{
		"target", "source", "value", "expr", "when", "type", "required", "default",
	})
	if err != nil {
		return Mapping{}, err
	}

	mapping := Mapping{}

	if v, ok := fields["target"]; ok {
		target, err := decodeString(v, path+".target")
		if err != nil {
			return Mapping{}, err
		}
		mapping.Target = target
	}
	if v, ok := fields["source"]; ok {
		source, err := decodeString(v, path+".source")
		if err != nil {
			return Mapping{}, err
		}
		mapping.Source = source
	}
	if v, ok := fields["value"]; ok {
		value, err := decodeValue(v, path+".value")
		if err != nil {
			return Mapping{}, err
		}
		mapping.Value = value
		mapping.HasValue = true
	}
	if v, ok := fields["expr"]; ok {
		expr, err := decodeExpr(v, path+".expr")
		if err != nil {
			return Mapping{}, err
		}
		mapping.Expr = expr
	}
	if v, ok := fields["when"]; ok {
		expr, err := decodeExpr(v, path+".when")
		if err != nil {
			return Mapping{}, err
		}
		mapping.When = expr
	}
	if v, ok := fields["type"]; ok {
		typeName, err := decodeString(v, path+".type")
		if err != nil {
			return Mapping{}, err
		}
		mapping.Type = typeName
	}
	if v, ok := fields["required"]; ok {
		required, err := decodeBool(v, path+".required")
		if err != nil {
			return Mapping{}, err
		}
		mapping.Required = required
	}
	if v, ok := fields["default"]; ok {
		value, err := decodeValue(v, path+".default")
		if err != nil {
			return Mapping{}, err
		}
		mapping.Default = value
		mapping.HasDefault = true
	}

	return mapping, nil
}

// decodeExpr classifies an expression node.
// A mapping with exactly {ref}, {op[, args]}, or {chain} becomes that
// variant; any other node is a literal value.
func decodeExpr(node *yaml.Node, path string) (Expr, *RuleError) {
	if node.Kind == yaml.AliasNode {
		return decodeExpr(node.Alias, path)
	}

	if node.Kind == yaml.MappingNode {
		keys := mappingKeys(node)

		if len(keys) == 1 && keys[0] == "ref" {
			refNode := mappingValue(node, "ref")
			ref, err := decodeString(refNode, path+".ref")
			if err != nil {
				return nil, err
			}
			return RefExpr{Ref: ref}, nil
		}

		if hasKey(keys, "op") && onlyKeys(keys, "op", "args") {
			opNode := mappingValue(node, "op")
			op, err := decodeString(opNode, path+".op")
			if err != nil {
				return nil, err
			}
			expr := OpExpr{Op: op}
			if argsNode := mappingValue(node, "args"); argsNode != nil {
				if argsNode.Kind != yaml.SequenceNode {
					return nil, parseError(argsNode, path+".args", "args must be a sequence")
				}
				expr.Args = make([]Expr, 0, len(argsNode.Content))
				for i, item := range argsNode.Content {
					arg, err := decodeExpr(item, path+".args["+strconv.Itoa(i)+"]")
					if err != nil {
						return nil, err
					}
					expr.Args = append(expr.Args, arg)
				}
			}
			return expr, nil
		}

		if len(keys) == 1 && keys[0] == "chain" {
			chainNode := mappingValue(node, "chain")
			if chainNode.Kind != yaml.SequenceNode {
				return nil, parseError(chainNode, path+".chain", "chain must be a sequence")
			}
			expr := ChainExpr{Chain: make([]Expr, 0, len(chainNode.Content))}
			for i, item := range chainNode.Content {
				step, err := decodeExpr(item, path+".chain["+strconv.Itoa(i)+"]")
				if err != nil {
					return nil, err
				}
				expr.Chain = append(expr.Chain, step)
			}
			return expr, nil
		}
	}

	value, err := decodeValue(node, path)
	if err != nil {
		return nil, err
	}
	return LitExpr{Value: value}, nil
}

// decodeValue converts a YAML node to a plain JSON shape.
// Integers decode to int64 and floats to float64; mapping keys must be
// strings.
func decodeValue(node *yaml.Node, path string) (any, *RuleError) {
	switch node.Kind {
	case yaml.AliasNode:
		return decodeValue(node.Alias, path)
	case yaml.ScalarNode:
		return decodeScalar(node, path)
	case yaml.SequenceNode:
		items := make([]any, 0, len(node.Content))
		for i, item := range node.Content {
			value, err := decodeValue(item, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			items = append(items, value)
		}
		return items, nil
	case yaml.MappingNode:
		obj := make(map[string]any, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, parseError(keyNode, path, "mapping keys must be strings")
			}
			value, err := decodeValue(node.Content[i+1], path+"."+keyNode.Value)
			if err != nil {
				return nil, err
			}
			obj[keyNode.Value] = value
		}
		return obj, nil
	default:
		return nil, parseError(node, path, "unsupported YAML node")
	}
}

func decodeScalar(node *yaml.Node, path string) (any, *RuleError) {
	switch node.Tag {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return nil, parseError(node, path, "invalid boolean: %v", err)
		}
		return b, nil
	case "!!int":
		var i int64
		if err := node.Decode(&i); err != nil {
			return nil, parseError(node, path, "invalid integer: %v", err)
		}
		return i, nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return nil, parseError(node, path, "invalid float: %v", err)
		}
		return f, nil
	case "!!str":
		return node.Value, nil
	default:
		return node.Value, nil
	}
}

func decodeString(node *yaml.Node, path string) (string, *RuleError) {
	if node == nil || node.Kind != yaml.ScalarNode || node.Tag == "!!null" {
		return "", parseError(node, path, "value must be a string")
	}
	return node.Value, nil
}

func decodeBool(node *yaml.Node, path string) (bool, *RuleError) {
	if node == nil || node.Kind != yaml.ScalarNode {
		return false, parseError(node, path, "value must be a boolean")
	}
	var b bool
	if err := node.Decode(&b); err != nil {
		return false, parseError(node, path, "value must be a boolean")
	}
	return b, nil
}

func decodeInt(node *yaml.Node, path string) (int, *RuleError) {
	if node == nil || node.Kind != yaml.ScalarNode {
		return 0, parseError(node, path, "value must be an integer")
	}
	var i int
	if err := node.Decode(&i); err != nil {
		return 0, parseError(node, path, "value must be an integer")
	}
	return i, nil
}

// mappingFields indexes a mapping node's entries and rejects unknown keys.
func mappingFields(node *yaml.Node, path string, allowed []string) (map[string]*yaml.Node, *RuleError) {
	if node.Kind == yaml.AliasNode {
		return mappingFields(node.Alias, path, allowed)
	}
	if node.Kind != yaml.MappingNode {
		return nil, parseError(node, path, "value must be a mapping")
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, key := range allowed {
		allowedSet[key] = true
	}

	fields := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		if keyNode.Kind != yaml.ScalarNode {
			return nil, parseError(keyNode, path, "mapping keys must be strings")
		}
		key := keyNode.Value
		if !allowedSet[key] {
			return nil, parseError(keyNode, joinPath(path, key), "unknown field %q", key)
		}
		fields[key] = node.Content[i+1]
	}
	return fields, nil
}

func mappingKeys(node *yaml.Node) []string {
	keys := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Kind == yaml.ScalarNode {
			keys = append(keys, node.Content[i].Value)
		}
	}
	return keys
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Kind == yaml.ScalarNode && node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func hasKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func onlyKeys(keys []string, allowed ...string) bool {
	for _, k := range keys {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

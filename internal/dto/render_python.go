// internal/dto/render_python.go
package dto

import "strings"

// renderPython emits dataclasses. Required fields precede optional ones so
// the generated __init__ stays valid; renamed fields keep their JSON key in
// field metadata.
func renderPython(schema *schemaNode, name string) string {
	registry := newNameRegistry(name)
	var defs []typeDef
	collectTypes(schema, nil, registry, &defs)

	usesAny := nodeUsesRawJSON(schema)
	usesOptional := nodeHasOptional(schema)
	usesRename := schemaHasRename(schema)

	var out strings.Builder
	out.WriteString("from dataclasses import dataclass")
	if usesRename {
		out.WriteString(", field")
	}
	out.WriteString("\n")

	if usesAny || usesOptional {
		var parts []string
		if usesOptional {
			parts = append(parts, "Optional")
		}
		if usesAny {
			parts = append(parts, "Any")
		}
		out.WriteString("from typing import " + strings.Join(parts, ", ") + "\n")
	}
	out.WriteString("\n")

	for _, def := range defs {
		out.WriteString("@dataclass\n")
		out.WriteString("class " + def.name + ":\n")
		if len(def.node.fields) == 0 {
			out.WriteString("    pass\n\n")
			continue
		}

		type renderField struct {
			key       string
			ident     string
			fieldType string
			optional  bool
			renamed   bool
		}

		used := make(map[string]int)
		var fields []renderField
		for _, field := range def.node.fields {
			ident := fieldIdentifier(LangPython, field.key, used)
			optional := fieldOptional(field)
			fields = append(fields, renderField{
				key:       field.key,
				ident:     ident,
				fieldType: pythonFieldType(field, def.path, registry, optional),
				optional:  optional,
				renamed:   ident != field.key,
			})
		}

		ordered := make([]renderField, 0, len(fields))
		for _, f := range fields {
			if !f.optional {
				ordered = append(ordered, f)
			}
		}
		for _, f := range fields {
			if f.optional {
				ordered = append(ordered, f)
			}
		}

		for _, f := range ordered {
			if f.renamed {
				out.WriteString("    # json: \"" + f.key + "\"\n")
				if f.optional {
					out.WriteString("    " + f.ident + ": " + f.fieldType + " = field(default=None, metadata={\"json_key\": \"" + f.key + "\"})\n")
				} else {
					out.WriteString("    " + f.ident + ": " + f.fieldType + " = field(metadata={\"json_key\": \"" + f.key + "\"})\n")
				}
			} else if f.optional {
				out.WriteString("    " + f.ident + ": " + f.fieldType + " = None\n")
			} else {
				out.WriteString("    " + f.ident + ": " + f.fieldType + "\n")
			}
		}
		out.WriteString("\n")
	}

	return strings.TrimRight(out.String(), "\n") + "\n"
}

func pythonFieldType(field schemaField, parentPath []string, registry *nameRegistry, optional bool) string {
	var base string
	switch {
	case field.isObject():
		base = registry.get(append(append([]string{}, parentPath...), field.key))
	case field.isPrim:
		switch field.primitive {
		case primString:
			base = "str"
		case primInt:
			base = "int"
		case primFloat:
			base = "float"
		case primBool:
			base = "bool"
		}
	default:
		base = "Any"
	}

	if optional {
		return "Optional[" + base + "]"
	}
	return base
}

// schemaHasRename reports whether any field's Python identifier differs
// from its JSON key.
func schemaHasRename(node *schemaNode) bool {
	for _, field := range node.fields {
		used := map[string]int{}
		if fieldIdentifier(LangPython, field.key, used) != field.key {
			return true
		}
		if field.isObject() && schemaHasRename(field.child) {
			return true
		}
	}
	return false
}

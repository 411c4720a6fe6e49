// internal/dto/render_go.go
package dto

import "strings"

// renderGo emits Go struct declarations with json tags.
// Untyped fields render as *json.RawMessage so absent and null survive a
// round trip; optional fields are pointers with omitempty.
func renderGo(schema *schemaNode, name string) string {
	registry := newNameRegistry(name)
	var defs []typeDef
	collectTypes(schema, nil, registry, &defs)

	var out strings.Builder
	out.WriteString("package dto\n\n")
	if nodeUsesRawJSON(schema) {
		out.WriteString("import \"encoding/json\"\n\n")
	}

	for _, def := range defs {
		out.WriteString("type " + def.name + " struct {\n")
		used := make(map[string]int)
		for _, field := range def.node.fields {
			ident := fieldIdentifier(LangGo, field.key, used)
			optional := fieldOptional(field)
			fieldType := goFieldType(field, def.path, registry, optional)
			tag := "`json:\"" + field.key + "\"`"
			if optional {
				tag = "`json:\"" + field.key + ",omitempty\"`"
			}
			out.WriteString("    " + ident + " " + fieldType + " " + tag + "\n")
		}
		out.WriteString("}\n\n")
	}

	return strings.TrimRight(out.String(), "\n") + "\n"
}

func goFieldType(field schemaField, parentPath []string, registry *nameRegistry, optional bool) string {
	var base string
	switch {
	case field.isObject():
		base = registry.get(append(append([]string{}, parentPath...), field.key))
	case field.isPrim:
		switch field.primitive {
		case primString:
			base = "string"
		case primInt:
			base = "int64"
		case primFloat:
			base = "float64"
		case primBool:
			base = "bool"
		}
	default:
		base = "json.RawMessage"
	}

	if optional {
		return "*" + base
	}
	return base
}

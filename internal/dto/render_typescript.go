// internal/dto/render_typescript.go
package dto

import "strings"

// renderTypeScript emits exported interfaces. Optional fields use `?`;
// untyped fields are unknown. Renamed fields carry their JSON key in a doc
// comment since interfaces cannot express renames.
func renderTypeScript(schema *schemaNode, name string) string {
	registry := newNameRegistry(name)
	var defs []typeDef
	collectTypes(schema, nil, registry, &defs)

	var out strings.Builder
	for _, def := range defs {
		out.WriteString("export interface " + def.name + " {\n")
		used := make(map[string]int)
		for _, field := range def.node.fields {
			ident := fieldIdentifier(LangTypeScript, field.key, used)
			optional := fieldOptional(field)
			fieldType := typescriptFieldType(field, def.path, registry)
			if ident != field.key {
				out.WriteString("  /** json: \"" + field.key + "\" */\n")
			}
			suffix := ""
			if optional {
				suffix = "?"
			}
			out.WriteString("  " + ident + suffix + ": " + fieldType + ";\n")
		}
		out.WriteString("}\n\n")
	}

	return strings.TrimRight(out.String(), "\n") + "\n"
}

func typescriptFieldType(field schemaField, parentPath []string, registry *nameRegistry) string {
	switch {
	case field.isObject():
		return registry.get(append(append([]string{}, parentPath...), field.key))
	case field.isPrim:
		switch field.primitive {
		case primString:
			return "string"
		case primInt, primFloat:
			return "number"
		case primBool:
			return "boolean"
		}
	}
	return "unknown"
}

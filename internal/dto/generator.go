// internal/dto/generator.go
package dto

import (
	"errors"
	"strconv"
	"strings"

	"github.com/reshapehq/reshape/internal/rules"
)

/*
 * Record declaration generator.
 *
 * Builds a field schema from a rule file's mapping targets and renders it
 * as a typed declaration for the requested language. Mapping `type` drives
 * the primitive; untyped mappings render as the language's raw-JSON type.
 * A field is optional unless the mapping is required, carries a literal
 * value, or has a default; those always produce something.
 *
 * Nested targets become nested types named by concatenating the base name
 * with the pascal-cased path segments (Record, RecordUser, ...); the
 * registry deduplicates collisions with numeric suffixes. Field
 * identifiers are normalised per language (snake for Python, camel for
 * TypeScript, pascal for Go) with reserved words and leading digits
 * escaped; renamed fields keep their JSON key via tag/metadata/comment.
 */

// Language selects the output renderer.
type Language string

const (
	LangGo         Language = "go"
	LangTypeScript Language = "typescript"
	LangPython     Language = "python"
)

// ParseLanguage resolves a CLI language argument, accepting common aliases.
func ParseLanguage(value string) (Language, error) {
	switch strings.ToLower(value) {
	case "go", "golang":
		return LangGo, nil
	case "typescript", "ts":
		return LangTypeScript, nil
	case "python", "py":
		return LangPython, nil
	default:
		return "", errors.New("language must be go, typescript, or python")
	}
}

// Generate renders a record declaration for a rule file.
// The name defaults to the rule's output.name and then to "Record".
func Generate(rule *rules.RuleFile, lang Language, name string) (string, error) {
	if name == "" && rule.Output != nil {
		name = rule.Output.Name
	}
	if name == "" {
		name = "Record"
	}

	schema, err := buildSchema(rule)
	if err != nil {
		return "", err
	}

	switch lang {
	case LangGo:
		return renderGo(schema, name), nil
	case LangTypeScript:
		return renderTypeScript(schema, name), nil
	case LangPython:
		return renderPython(schema, name), nil
	default:
		return "", errors.New("language must be go, typescript, or python")
	}
}

type primitiveType int

const (
	primString primitiveType = iota
	primInt
	primFloat
	primBool
)

type schemaNode struct {
	fields []schemaField
}

type schemaField struct {
	key       string
	primitive primitiveType
	isPrim    bool
	child     *schemaNode
	optional  bool
}

func (f schemaField) isObject() bool { return f.child != nil }

func buildSchema(rule *rules.RuleFile) (*schemaNode, error) {
	root := &schemaNode{}

	for _, mapping := range rule.Mappings {
		tokens, err := rules.ParsePath(mapping.Target)
		if err != nil {
			return nil, errors.New("target path is invalid")
		}

		var keys []string
		for _, token := range tokens {
			if token.IsIndex {
				return nil, errors.New("target path must not include indexes")
			}
			keys = append(keys, token.Key)
		}
		if len(keys) == 0 {
			return nil, errors.New("target path is invalid")
		}

		field := schemaField{
			optional: !(mapping.Required || mapping.HasValue || mapping.HasDefault),
		}
		switch mapping.Type {
		case "string":
			field.isPrim, field.primitive = true, primString
		case "int":
			field.isPrim, field.primitive = true, primInt
		case "float":
			field.isPrim, field.primitive = true, primFloat
		case "bool":
			field.isPrim, field.primitive = true, primBool
		case "":
		default:
			return nil, errors.New("unsupported type in mapping")
		}

		if err := insertField(root, keys, field); err != nil {
			return nil, err
		}
	}

	return root, nil
}

func insertField(node *schemaNode, keys []string, field schemaField) error {
	key := keys[0]
	if len(keys) == 1 {
		for _, existing := range node.fields {
			if existing.key == key {
				return errors.New("duplicate target in dto")
			}
		}
		field.key = key
		node.fields = append(node.fields, field)
		return nil
	}

	for i := range node.fields {
		if node.fields[i].key != key {
			continue
		}
		if !node.fields[i].isObject() {
			return errors.New("target conflicts with non-object")
		}
		return insertField(node.fields[i].child, keys[1:], field)
	}

	child := &schemaNode{}
	if err := insertField(child, keys[1:], field); err != nil {
		return err
	}
	node.fields = append(node.fields, schemaField{key: key, child: child})
	return nil
}

// nodeHasRequired reports whether any leaf below node is non-optional;
// object-typed fields inherit optionality from their contents.
func nodeHasRequired(node *schemaNode) bool {
	for _, field := range node.fields {
		if field.isObject() {
			if nodeHasRequired(field.child) {
				return true
			}
			continue
		}
		if !field.optional {
			return true
		}
	}
	return false
}

func nodeUsesRawJSON(node *schemaNode) bool {
	for _, field := range node.fields {
		if field.isObject() {
			if nodeUsesRawJSON(field.child) {
				return true
			}
			continue
		}
		if !field.isPrim {
			return true
		}
	}
	return false
}

func nodeHasOptional(node *schemaNode) bool {
	for _, field := range node.fields {
		if field.isObject() {
			if !nodeHasRequired(field.child) || nodeHasOptional(field.child) {
				return true
			}
			continue
		}
		if field.optional {
			return true
		}
	}
	return false
}

func fieldOptional(field schemaField) bool {
	if field.isObject() {
		return !nodeHasRequired(field.child)
	}
	return field.optional
}

type typeDef struct {
	name string
	node *schemaNode
	path []string
}

type nameRegistry struct {
	base  string
	used  map[string]bool
	names map[string]string
}

func newNameRegistry(base string) *nameRegistry {
	return &nameRegistry{
		base:  base,
		used:  make(map[string]bool),
		names: make(map[string]string),
	}
}

func pathKey(path []string) string {
	return strings.Join(path, "\x00")
}

func (r *nameRegistry) typeNameForPath(path []string) string {
	if name, ok := r.names[pathKey(path)]; ok {
		return name
	}

	name := r.base
	for _, segment := range path {
		name += pascalCase(wordsFromKey(segment))
	}
	if name == "" {
		name = "Record"
	}

	unique := name
	suffix := 2
	for r.used[unique] {
		unique = name + "_" + strconv.Itoa(suffix)
		suffix++
	}
	r.used[unique] = true
	r.names[pathKey(path)] = unique
	return unique
}

func (r *nameRegistry) get(path []string) string {
	if name, ok := r.names[pathKey(path)]; ok {
		return name
	}
	return "Record"
}

// collectTypes walks the schema post-order so nested types render before
// their parents and the root type comes last.
func collectTypes(node *schemaNode, path []string, registry *nameRegistry, out *[]typeDef) {
	for _, field := range node.fields {
		if field.isObject() {
			childPath := append(append([]string{}, path...), field.key)
			registry.typeNameForPath(childPath)
			collectTypes(field.child, childPath, registry, out)
		}
	}
	*out = append(*out, typeDef{name: registry.typeNameForPath(path), node: node, path: path})
}

func wordsFromKey(key string) []string {
	var words []string
	var current strings.Builder
	for _, ch := range key {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			current.WriteRune(ch)
		} else if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	if len(words) == 0 {
		words = []string{"field"}
	}
	return words
}

func capitalize(value string) string {
	if value == "" {
		return ""
	}
	return strings.ToUpper(value[:1]) + strings.ToLower(value[1:])
}

func pascalCase(words []string) string {
	var out strings.Builder
	for _, word := range words {
		out.WriteString(capitalize(word))
	}
	return out.String()
}

func snakeCase(words []string) string {
	lowered := make([]string, len(words))
	for i, word := range words {
		lowered[i] = strings.ToLower(word)
	}
	return strings.Join(lowered, "_")
}

func lowerCamel(words []string) string {
	if len(words) == 0 {
		return ""
	}
	out := strings.ToLower(words[0])
	for _, word := range words[1:] {
		out += capitalize(word)
	}
	return out
}

// fieldIdentifier normalises a JSON key to a language identifier,
// escaping leading digits and reserved words and deduplicating within one
// type.
func fieldIdentifier(lang Language, key string, used map[string]int) string {
	var ident string
	switch lang {
	case LangPython:
		ident = snakeCase(wordsFromKey(key))
	case LangTypeScript:
		ident = lowerCamel(wordsFromKey(key))
	case LangGo:
		ident = pascalCase(wordsFromKey(key))
	}

	if ident == "" {
		if lang == LangGo {
			ident = "Field"
		} else {
			ident = "field"
		}
	}

	if ident[0] >= '0' && ident[0] <= '9' {
		if lang == LangGo {
			ident = "Field" + ident
		} else {
			ident = "_" + ident
		}
	}

	if isReserved(lang, ident) {
		if lang == LangGo {
			ident += "Field"
		} else {
			ident += "_"
		}
	}

	count := used[ident]
	used[ident] = count + 1
	if count > 0 {
		return ident + "_" + strconv.Itoa(count+1)
	}
	return ident
}

func isReserved(lang Language, ident string) bool {
	switch lang {
	case LangPython:
		return pythonReserved[ident]
	case LangTypeScript:
		return typescriptReserved[ident]
	default:
		return false
	}
}

var pythonReserved = map[string]bool{
	"and": true, "as": true, "assert": true, "class": true, "def": true,
	"del": true, "elif": true, "else": true, "except": true, "for": true,
	"from": true, "global": true, "if": true, "import": true, "in": true,
	"is": true, "lambda": true, "not": true, "or": true, "pass": true,
	"raise": true, "return": true, "try": true, "while": true, "with": true,
	"yield": true, "None": true, "True": true, "False": true,
}

var typescriptReserved = map[string]bool{
	"class": true, "const": true, "delete": true, "enum": true, "export": true,
	"extends": true, "function": true, "import": true, "in": true, "new": true,
	"return": true, "super": true, "this": true, "typeof": true, "var": true,
	"void": true, "while": true, "with": true, "default": true,
}

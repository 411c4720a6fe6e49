// internal/rules/path.go
package rules

import (
	"strconv"
	"strings"

	"github.com/reshapehq/reshape/internal/types"
)

/*
 * Path parsing and resolution for record values.
 *
 * Parses dotted paths with array indexes and bracket-quoted keys
 * (`items[0].user["profile.name"]`) into token sequences, and walks value
 * trees token by token. One parser serves mapping sources, expression refs,
 * targets (which additionally reject indexes at validation time), and
 * records_path.
 *
 * Key functions:
 *   - ParsePath: string -> []PathToken or a sentinel error from types
 *   - GetPath: resolve tokens against a value; (value, true) or (nil, false)
 *   - FormatPathTokens: canonical string form, bracket-quoting dotted keys
 *
 * Resolution never fails: any mismatch (key on non-object, index on
 * non-array, index out of range) reports not-found rather than an error.
 * A found null is distinct from not-found; callers that need the
 * three-valued distinction check the boolean, not the value.
 */

// PathToken represents one component of a parsed path.
// Key for object members, Index for array elements.
type PathToken struct {
	Key     string
	Index   int
	IsIndex bool
}

// KeyToken builds a key path token.
func KeyToken(key string) PathToken {
	return PathToken{Key: key}
}

// IndexToken builds an array index path token.
func IndexToken(index int) PathToken {
	return PathToken{Index: index, IsIndex: true}
}

// ParsePath parses a dotted path string into tokens.
// Bare dots separate key segments; [N] is an array index; ["..."] or ['...']
// quote a key that may contain dots. Inside quoted keys only \\, \" and \'
// escapes are honoured and raw brackets are rejected.
func ParsePath(path string) ([]PathToken, error) {
	if path == "" {
		return nil, types.ErrEmptyPath
	}

	runes := []rune(path)
	var tokens []PathToken
	i := 0

	for i < len(runes) {
		if runes[i] == '.' {
			return nil, types.ErrEmptyPathKey
		}

		if runes[i] == '[' {
			token, next, err := parseBracket(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token)
			i = next
		} else {
			start := i
			for i < len(runes) && runes[i] != '.' && runes[i] != '[' {
				i++
			}
			if start == i {
				return nil, types.ErrEmptyPathKey
			}
			tokens = append(tokens, KeyToken(string(runes[start:i])))
		}

		for i < len(runes) && runes[i] == '[' {
			token, next, err := parseBracket(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token)
			i = next
		}

		if i < len(runes) {
			if runes[i] != '.' {
				return nil, types.ErrInvalidPathSyntax
			}
			i++
			if i == len(runes) {
				return nil, types.ErrInvalidPathSyntax
			}
		}
	}

	return tokens, nil
}

// parseBracket parses one [N], ["key"], or ['key'] group starting at an
// opening bracket. Returns the token and the position after the closing
// bracket.
func parseBracket(runes []rune, start int) (PathToken, int, error) {
	i := start + 1
	if i >= len(runes) {
		return PathToken{}, 0, types.ErrInvalidPathSyntax
	}

	switch {
	case runes[i] == '"' || runes[i] == '\'':
		return parseQuoted(runes, i)
	case runes[i] >= '0' && runes[i] <= '9':
		return parseIndex(runes, i)
	default:
		return PathToken{}, 0, types.ErrInvalidPathSyntax
	}
}

// parseIndex parses a decimal non-negative index. Leading zeros are allowed.
func parseIndex(runes []rune, start int) (PathToken, int, error) {
	i := start
	for i < len(runes) && runes[i] >= '0' && runes[i] <= '9' {
		i++
	}
	if i >= len(runes) || runes[i] != ']' {
		return PathToken{}, 0, types.ErrInvalidPathSyntax
	}

	value, err := strconv.Atoi(string(runes[start:i]))
	if err != nil {
		// Saturate oversized indexes; resolution treats them as out of range.
		value = int(^uint(0) >> 1)
	}
	return IndexToken(value), i + 1, nil
}

// parseQuoted parses a bracket-quoted key. The quote rune (single or double)
// must terminate the key, followed by the closing bracket.
func parseQuoted(runes []rune, start int) (PathToken, int, error) {
	quote := runes[start]
	i := start + 1
	var value strings.Builder
	closed := false

	for i < len(runes) {
		ch := runes[i]
		if ch == '\\' {
			i++
			if i >= len(runes) {
				return PathToken{}, 0, types.ErrInvalidPathEscape
			}
			escaped := runes[i]
			if escaped == '\\' || escaped == '"' || escaped == '\'' {
				value.WriteRune(escaped)
				i++
				continue
			}
			return PathToken{}, 0, types.ErrInvalidPathEscape
		}

		if ch == '[' || ch == ']' {
			return PathToken{}, 0, types.ErrInvalidPathSyntax
		}

		if ch == quote {
			i++
			closed = true
			break
		}

		value.WriteRune(ch)
		i++
	}

	if value.Len() == 0 {
		return PathToken{}, 0, types.ErrEmptyPathKey
	}
	if !closed {
		return PathToken{}, 0, types.ErrInvalidPathSyntax
	}
	if i >= len(runes) || runes[i] != ']' {
		return PathToken{}, 0, types.ErrInvalidPathSyntax
	}
	return KeyToken(value.String()), i + 1, nil
}

// GetPath resolves tokens against a value tree.
// Returns (value, true) when every token resolves, (nil, false) otherwise.
// A resolved null reports (nil, true); the boolean carries the distinction.
func GetPath(value any, tokens []PathToken) (any, bool) {
	current := value
	for _, token := range tokens {
		if token.IsIndex {
			items, ok := current.([]any)
			if !ok {
				return nil, false
			}
			if token.Index < 0 || token.Index >= len(items) {
				return nil, false
			}
			current = items[token.Index]
			continue
		}

		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		child, ok := obj[token.Key]
		if !ok {
			return nil, false
		}
		current = child
	}
	return current, true
}

// FormatPathTokens renders tokens back to path syntax.
// Keys containing dots are bracket-quoted with backslash escapes so the
// output round-trips through ParsePath.
func FormatPathTokens(tokens []PathToken) string {
	var path strings.Builder
	for _, token := range tokens {
		if token.IsIndex {
			path.WriteByte('[')
			path.WriteString(strconv.Itoa(token.Index))
			path.WriteByte(']')
			continue
		}
		if strings.Contains(token.Key, ".") {
			escaped := strings.ReplaceAll(token.Key, `\`, `\\`)
			escaped = strings.ReplaceAll(escaped, `"`, `\"`)
			path.WriteString(`["`)
			path.WriteString(escaped)
			path.WriteString(`"]`)
			continue
		}
		if path.Len() > 0 {
			path.WriteByte('.')
		}
		path.WriteString(token.Key)
	}
	return path.String()
}

// pathTokensEqual reports whether two token sequences are identical.
func pathTokensEqual(a, b []PathToken) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// isPathPrefix reports whether prefix is a leading subsequence of tokens.
func isPathPrefix(prefix, tokens []PathToken) bool {
	if len(prefix) > len(tokens) {
		return false
	}
	return pathTokensEqual(prefix, tokens[:len(prefix)])
}

// hasPathConflict reports whether tokens is a prefix of, or prefixed by, any
// existing path. Used by pick/omit/object_unflatten to reject overlapping
// path sets.
func hasPathConflict(paths [][]PathToken, tokens []PathToken) bool {
	for _, existing := range paths {
		if isPathPrefix(existing, tokens) || isPathPrefix(tokens, existing) {
			return true
		}
	}
	return false
}

// hasDuplicatePath reports whether tokens already appears in paths.
func hasDuplicatePath(paths [][]PathToken, tokens []PathToken) bool {
	for _, existing := range paths {
		if pathTokensEqual(existing, tokens) {
			return true
		}
	}
	return false
}

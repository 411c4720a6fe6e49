// internal/rules/locator.go
package rules

import (
	"strconv"
	"strings"
)

/*
 * Maps logical diagnostic paths to YAML source positions.
 *
 * The validator reports paths such as `mappings[2].expr.args[0].op`; editors
 * and CI annotations want line/column. Rather than threading positions
 * through the whole model, the locator makes one indentation-driven pass
 * over the raw source and records the first position of every key path it
 * can see. Lookups that miss (paths synthesised below the YAML grain, e.g.
 * into inline flow values) simply return no position.
 *
 * The scan understands block mappings and block sequences, skips comments
 * and blank lines, and treats `|`/`>` scalars as leaves. Flow collections
 * on one line are attributed to their key's position, which is the useful
 * behaviour for diagnostics.
 */

type yamlLocator struct {
	locations map[string]SourceLocation
}

type locatorScope struct {
	indent int
	path   string
}

// newYamlLocator scans source and builds the path -> position index.
func newYamlLocator(source string) *yamlLocator {
	locator := &yamlLocator{locations: make(map[string]SourceLocation)}
	locator.build(source)
	return locator
}

// locationFor returns the recorded position for a logical path.
func (l *yamlLocator) locationFor(path string) *SourceLocation {
	if loc, ok := l.locations[path]; ok {
		copied := loc
		return &copied
	}
	return nil
}

func (l *yamlLocator) build(source string) {
	scopes := []locatorScope{{indent: 0, path: ""}}
	seqIndices := make(map[string]int)

	lines := strings.Split(source, "\n")
	for lineIndex, rawLine := range lines {
		lineNumber := lineIndex + 1
		trimmed := strings.TrimSpace(rawLine)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		indent := 0
		for indent < len(rawLine) && rawLine[indent] == ' ' {
			indent++
		}
		content := rawLine[indent:]

		if strings.HasPrefix(content, "-") {
			for len(scopes) > 1 && scopes[len(scopes)-1].indent >= indent {
				scopes = scopes[:len(scopes)-1]
			}
			parentPath := scopes[len(scopes)-1].path
			if parentPath == "" {
				continue
			}

			itemIndex := seqIndices[parentPath]
			seqIndices[parentPath] = itemIndex + 1

			itemPath := parentPath + "[" + strconv.Itoa(itemIndex) + "]"
			l.insert(itemPath, lineNumber, indent+1)
			scopes = append(scopes, locatorScope{indent: indent, path: itemPath})

			afterDash := content[1:]
			trimmedAfterDash := strings.TrimLeft(afterDash, " ")
			offset := 1 + (len(afterDash) - len(trimmedAfterDash))
			if key, column, hasValue, isBlock, ok := parseLocatorKey(trimmedAfterDash, indent, offset); ok {
				fullPath := itemPath + "." + key
				l.insert(fullPath, lineNumber, column)
				if !hasValue || isBlock {
					scopes = append(scopes, locatorScope{indent: indent + offset, path: fullPath})
				}
			}
			continue
		}

		for len(scopes) > 1 && scopes[len(scopes)-1].indent >= indent {
			scopes = scopes[:len(scopes)-1]
		}

		if key, column, hasValue, isBlock, ok := parseLocatorKey(content, indent, 0); ok {
			parentPath := scopes[len(scopes)-1].path
			fullPath := key
			if parentPath != "" {
				fullPath = parentPath + "." + key
			}
			l.insert(fullPath, lineNumber, column)
			if !hasValue || isBlock {
				scopes = append(scopes, locatorScope{indent: indent, path: fullPath})
			}
		}
	}
}

func (l *yamlLocator) insert(path string, line, column int) {
	if _, ok := l.locations[path]; !ok {
		l.locations[path] = SourceLocation{Line: line, Column: column}
	}
}

// parseLocatorKey extracts the key from a `key: value` line, its 1-based
// column, whether a value follows on the line, and whether that value opens
// a block scalar.
func parseLocatorKey(content string, indent, offset int) (key string, column int, hasValue, isBlock, ok bool) {
	inSingle := false
	inDouble := false
	colonIndex := -1

	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case ':':
			if !inSingle && !inDouble {
				colonIndex = i
			}
		}
		if colonIndex >= 0 {
			break
		}
	}

	if colonIndex < 0 {
		return "", 0, false, false, false
	}

	keyPart := content[:colonIndex]
	key = strings.TrimSpace(keyPart)
	if key == "" {
		return "", 0, false, false, false
	}

	keyStart := len(keyPart) - len(strings.TrimLeft(keyPart, " \t"))
	rest := strings.TrimSpace(content[colonIndex+1:])
	hasValue = rest != ""
	isBlock = strings.HasPrefix(rest, "|") || strings.HasPrefix(rest, ">")

	return key, indent + offset + keyStart + 1, hasValue, isBlock, true
}

// internal/rules/regex_cache.go
package rules

import "regexp"

/*
 * Cached regex compilation for the ~= operator and regex replace modes.
 *
 * Patterns come from rule files and are stable across records, so compiling
 * per evaluation would dominate transform cost on regex-heavy rules. The
 * cache is process-global: rule files are commonly shared across transform
 * calls and patterns are namespaced by their own text.
 */

const regexCacheCapacity = 128

var regexCache = newLRUCache[string, *regexp.Regexp](regexCacheCapacity)

// cachedRegex compiles pattern or returns the cached compilation.
// Invalid patterns are reported as ExprError at the referencing path and are
// not cached.
func cachedRegex(pattern, path string) (*regexp.Regexp, *TransformError) {
	if re, ok := regexCache.get(pattern); ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, exprError("regex pattern is invalid", path)
	}
	regexCache.put(pattern, re)
	return re, nil
}

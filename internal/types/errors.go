package types

import "errors"

// Sentinel errors for reshape operations.
var (
	// ErrEmptyPath indicates a path string with no segments.
	ErrEmptyPath = errors.New("path is empty")

	// ErrEmptyPathKey indicates an empty key segment (leading dot, "a..b",
	// or an empty bracket-quoted key).
	ErrEmptyPathKey = errors.New("path segment is empty")

	// ErrInvalidPathSyntax indicates a malformed path (trailing dot,
	// unterminated bracket, bracket in a quoted key, and similar).
	ErrInvalidPathSyntax = errors.New("path syntax is invalid")

	// ErrInvalidPathEscape indicates an unsupported escape inside a
	// bracket-quoted key. Only \\, \" and \' are honoured.
	ErrInvalidPathEscape = errors.New("path escape is invalid")

	// ErrRulesetNotFound indicates a catalog lookup by name or ID found nothing.
	ErrRulesetNotFound = errors.New("ruleset not found")

	// ErrRulesetNameTooLong indicates a catalog name is empty or exceeds
	// MaxRulesetNameLength.
	ErrRulesetNameTooLong = errors.New("ruleset name too long")

	// ErrRulesetBodyTooLarge indicates a rule file exceeds MaxRulesetBodySize.
	ErrRulesetBodyTooLarge = errors.New("ruleset body exceeds maximum size")
)

// internal/rules/errors.go
package rules

import "fmt"

/*
 * Diagnostic types for the two error strata.
 *
 * Static diagnostics (RuleError) come from the validator and the loader:
 * machine code, message, logical path, optional source position. The
 * validator aggregates; it never stops at the first error.
 *
 * Runtime diagnostics (TransformError) come from the evaluator and the
 * transformer: a stable kind string plus the logical path of the offending
 * node (`mappings[3].expr.args[1]`). `when` evaluation failures are demoted
 * to TransformWarning and skip the mapping instead of aborting the record.
 *
 * Codes and kinds are stable contracts for downstream tooling; messages are
 * free text.
 */

// ErrorCode identifies a static validation failure.
type ErrorCode string

const (
	CodeInvalidVersion         ErrorCode = "InvalidVersion"
	CodeMissingInputFormat     ErrorCode = "MissingInputFormat"
	CodeInvalidInputFormat     ErrorCode = "InvalidInputFormat"
	CodeMissingCSVSection      ErrorCode = "MissingCsvSection"
	CodeMissingJSONSection     ErrorCode = "MissingJsonSection"
	CodeInvalidDelimiterLength ErrorCode = "InvalidDelimiterLength"
	CodeMissingCSVColumns      ErrorCode = "MissingCsvColumns"
	CodeMissingTarget          ErrorCode = "MissingTarget"
	CodeDuplicateTarget        ErrorCode = "DuplicateTarget"
	CodeSourceValueExprExcl    ErrorCode = "SourceValueExprExclusive"
	CodeMissingMappingValue    ErrorCode = "MissingMappingValue"
	CodeInvalidRefNamespace    ErrorCode = "InvalidRefNamespace"
	CodeForwardOutReference    ErrorCode = "ForwardOutReference"
	CodeUnknownOp              ErrorCode = "UnknownOp"
	CodeInvalidArgs            ErrorCode = "InvalidArgs"
	CodeInvalidExprShape       ErrorCode = "InvalidExprShape"
	CodeInvalidTypeName        ErrorCode = "InvalidTypeName"
	CodeInvalidPath            ErrorCode = "InvalidPath"
	CodeInvalidWhenType        ErrorCode = "InvalidWhenType"
	CodeParseFailed            ErrorCode = "ParseFailed"
)

// SourceLocation is a 1-based position in the rule YAML.
type SourceLocation struct {
	Line   int
	Column int
}

// RuleError is one static diagnostic.
type RuleError struct {
	Code     ErrorCode
	Message  string
	Path     string
	Location *SourceLocation
}

// Error implements the error interface.
func (e *RuleError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path: %s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorKind identifies a runtime failure class.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "InvalidInput"
	KindInvalidRecordsPath ErrorKind = "InvalidRecordsPath"
	KindInvalidRef         ErrorKind = "InvalidRef"
	KindInvalidTarget      ErrorKind = "InvalidTarget"
	KindMissingRequired    ErrorKind = "MissingRequired"
	KindTypeCastFailed     ErrorKind = "TypeCastFailed"
	KindExprError          ErrorKind = "ExprError"
)

// TransformError is one runtime diagnostic.
type TransformError struct {
	Kind    ErrorKind
	Message string
	Path    string
}

// Error implements the error interface.
func (e *TransformError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s (path: %s)", e.Message, e.Path)
	}
	return e.Message
}

// newTransformError builds a runtime diagnostic with a logical path.
func newTransformError(kind ErrorKind, message, path string) *TransformError {
	return &TransformError{Kind: kind, Message: message, Path: path}
}

// exprError builds an ExprError diagnostic; the most common runtime kind.
func exprError(message, path string) *TransformError {
	return newTransformError(KindExprError, message, path)
}

// TransformWarning mirrors TransformError for the warning channel.
// `when`/`record_when` evaluation failures land here.
type TransformWarning struct {
	Kind    ErrorKind
	Message string
	Path    string
}

// warningFromError demotes a runtime error to a warning.
func warningFromError(err *TransformError) TransformWarning {
	return TransformWarning{Kind: err.Kind, Message: err.Message, Path: err.Path}
}

// internal/rules/validator.go
package rules

import "strconv"

/*
 * Static rule validation.
 *
 * Accumulator pattern: every check appends to the context's error list and
 * validation always runs to the end, so one pass reports everything. The
 * result is either an empty list (valid) or the full diagnostic set.
 *
 * Checks: version, input section shape (format/section match, delimiter
 * length, headerless columns), per-mapping target/value-choice/type rules,
 * duplicate targets, ref namespaces, forward out-references, operator
 * existence and arity via opTable, lookup/get/pick/omit literal-path
 * arguments, item/acc ref scoping, and the provable-non-boolean check for
 * when/record_when.
 *
 * Forward out-references resolve against the set of targets produced by
 * earlier mappings only; `out.a.b[0].c` counts as resolved when any key
 * prefix of it was produced. Index tokens are ignored for that purpose
 * since targets never contain them.
 *
 * With a source locator attached, each diagnostic also carries the YAML
 * line/column of its logical path when the locator indexed it.
 */

// Validate checks a rule file and returns all diagnostics.
func Validate(rule *RuleFile) []*RuleError {
	return validateWithLocator(rule, nil)
}

// ValidateWithSource checks a rule file and annotates diagnostics with
// positions from the original YAML text.
func ValidateWithSource(rule *RuleFile, source string) []*RuleError {
	return validateWithLocator(rule, newYamlLocator(source))
}

func validateWithLocator(rule *RuleFile, locator *yamlLocator) []*RuleError {
	ctx := &validationCtx{locator: locator}

	validateVersion(rule, ctx)
	validateInput(rule, ctx)
	validateRecordWhen(rule, ctx)
	validateMappings(rule, ctx)

	return ctx.errors
}

type validationCtx struct {
	locator *yamlLocator
	errors  []*RuleError
}

func (ctx *validationCtx) push(code ErrorCode, message, path string) {
	err := &RuleError{Code: code, Message: message, Path: path}
	if ctx.locator != nil {
		err.Location = ctx.locator.locationFor(path)
	}
	ctx.errors = append(ctx.errors, err)
}

func validateVersion(rule *RuleFile, ctx *validationCtx) {
	if rule.Version != 1 {
		ctx.push(CodeInvalidVersion, "version must be 1", "version")
	}
}

func validateInput(rule *RuleFile, ctx *validationCtx) {
	switch rule.Input.Format {
	case FormatCSV:
		if rule.Input.CSV == nil {
			ctx.push(CodeMissingCSVSection, "input.csv is required when format=csv", "input.csv")
		}
	case FormatJSON:
		if rule.Input.JSON == nil {
			ctx.push(CodeMissingJSONSection, "input.json is required when format=json", "input.json")
		}
	case "":
		ctx.push(CodeMissingInputFormat, "input.format is required", "input.format")
	default:
		ctx.push(CodeInvalidInputFormat, "input.format must be csv or json", "input.format")
	}

	if csvSpec := rule.Input.CSV; csvSpec != nil {
		if len([]rune(csvSpec.Delimiter)) != 1 {
			ctx.push(CodeInvalidDelimiterLength, "csv.delimiter must be a single character", "input.csv.delimiter")
		}
		if !csvSpec.HasHeader && len(csvSpec.Columns) == 0 {
			ctx.push(CodeMissingCSVColumns, "csv.columns is required when has_header=false", "input.csv.columns")
		}
	}

	if jsonSpec := rule.Input.JSON; jsonSpec != nil && jsonSpec.RecordsPath != "" {
		if _, err := ParsePath(jsonSpec.RecordsPath); err != nil {
			ctx.push(CodeInvalidPath, "records_path is invalid", "input.json.records_path")
		}
	}
}

func validateRecordWhen(rule *RuleFile, ctx *validationCtx) {
	if rule.RecordWhen == nil {
		return
	}
	validateExpr(rule.RecordWhen, "record_when", nil, ctx, scopeNone)
	validateWhenExpr(rule.RecordWhen, "record_when", ctx)
}

func validateMappings(rule *RuleFile, ctx *validationCtx) {
	var producedTargets [][]PathToken

	for index, mapping := range rule.Mappings {
		base := "mappings[" + strconv.Itoa(index) + "]"

		if trimmedEmpty(mapping.Target) {
			ctx.push(CodeMissingTarget, "mapping.target is required", base+".target")
		}

		targetTokens, terr := ParsePath(mapping.Target)
		if terr != nil {
			ctx.push(CodeInvalidPath, "target path is invalid", base+".target")
			continue
		}
		if hasIndexToken(targetTokens) {
			ctx.push(CodeInvalidPath, "target path must not include indexes", base+".target")
			continue
		}

		if hasDuplicatePath(producedTargets, targetTokens) {
			ctx.push(CodeDuplicateTarget, "mapping.target is duplicated", base+".target")
		}

		valueCount := 0
		if mapping.Source != "" {
			valueCount++
		}
		if mapping.HasValue {
			valueCount++
		}
		if mapping.Expr != nil {
			valueCount++
		}
		if valueCount == 0 {
			ctx.push(CodeMissingMappingValue, "mapping must define source, value, or expr", base)
		} else if valueCount > 1 {
			ctx.push(CodeSourceValueExprExcl, "exactly one of source/value/expr is required", base)
		}

		if mapping.Type != "" && !isValidTypeName(mapping.Type) {
			ctx.push(CodeInvalidTypeName, "type must be string|int|float|bool", base+".type")
		}

		if mapping.Source != "" {
			validateSource(mapping.Source, base, producedTargets, ctx)
		}

		if mapping.Expr != nil {
			validateExpr(mapping.Expr, base+".expr", producedTargets, ctx, scopeNone)
		}

		if mapping.When != nil {
			validateExpr(mapping.When, base+".when", producedTargets, ctx, scopeNone)
			validateWhenExpr(mapping.When, base+".when", ctx)
		}

		producedTargets = append(producedTargets, targetTokens)
	}
}

func trimmedEmpty(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' && s[i] != '\t' {
			return false
		}
	}
	return true
}

func hasIndexToken(tokens []PathToken) bool {
	for _, token := range tokens {
		if token.IsIndex {
			return true
		}
	}
	return false
}

func isValidTypeName(name string) bool {
	switch name {
	case "string", "int", "float", "bool":
		return true
	default:
		return false
	}
}

func validateSource(source, basePath string, producedTargets [][]PathToken, ctx *validationCtx) {
	fullPath := basePath + ".source"
	ns, path, ok := parseSourceRef(source)
	if !ok {
		ctx.push(CodeInvalidRefNamespace, "ref namespace must be input|context|out", fullPath)
		return
	}

	tokens, err := ParsePath(path)
	if err != nil {
		ctx.push(CodeInvalidPath, "path is invalid", fullPath)
		return
	}

	if ns == nsOut && !outRefResolves(tokens, producedTargets) {
		ctx.push(CodeForwardOutReference, "out reference must point to previous mappings", fullPath)
	}
}

func validateExpr(expr Expr, basePath string, producedTargets [][]PathToken, ctx *validationCtx, scope localScope) {
	switch node := expr.(type) {
	case RefExpr:
		validateRef(node, basePath, producedTargets, ctx, scope)
	case OpExpr:
		validateOp(node, basePath, producedTargets, ctx, false, scope)
	case ChainExpr:
		validateChain(node, basePath, producedTargets, ctx, scope)
	case LitExpr:
	}
}

func validateChain(chain ChainExpr, basePath string, producedTargets [][]PathToken, ctx *validationCtx, scope localScope) {
	if len(chain.Chain) == 0 {
		ctx.push(CodeInvalidExprShape, "expr.chain must be a non-empty array", basePath+".chain")
		return
	}

	for index, item := range chain.Chain {
		itemPath := basePath + ".chain[" + strconv.Itoa(index) + "]"
		if index == 0 {
			validateExpr(item, itemPath, producedTargets, ctx, scope)
			continue
		}
		op, ok := item.(OpExpr)
		if !ok {
			ctx.push(CodeInvalidExprShape, "expr.chain items after first must be op", itemPath)
			continue
		}
		validateOp(op, itemPath, producedTargets, ctx, true, scope)
	}
}

// validateOp checks operator existence, arity, and static argument shapes.
// chained marks an op that receives the previous chain value as implicit
// argument 0; arity and literal-argument positions shift accordingly.
func validateOp(op OpExpr, basePath string, producedTargets [][]PathToken, ctx *validationCtx, chained bool, scope localScope) {
	spec, known := opTable[op.Op]
	if !known {
		ctx.push(CodeUnknownOp, "expr.op is not supported", basePath+".op")
	}

	if !chained && len(op.Args) == 0 {
		ctx.push(CodeInvalidArgs, "expr.args must be a non-empty array", basePath+".args")
	}

	if known {
		totalLen := len(op.Args)
		if chained {
			totalLen++
		}
		if totalLen < spec.minArgs || (spec.maxArgs >= 0 && totalLen > spec.maxArgs) {
			message := spec.arityMessage()
			if op.Op == "lookup" || op.Op == "lookup_first" {
				if chained {
					message = "lookup args must be [key_path, match_value, output_path?] in chain"
				} else {
					message = lookupArityMsg
				}
			}
			ctx.push(CodeInvalidArgs, message, basePath+".args")
		} else {
			validateStaticArgs(op, basePath, chained, ctx)
		}
	}

	var elementIndex = -1
	elementScope := scope
	if known && spec.elementArg != nil {
		if index, elemScope, ok := spec.elementArg(chained, len(op.Args)); ok {
			elementIndex = index
			if elemScope == scopeItem && scope.allowsAcc() {
				elemScope = scopeItemAcc
			}
			elementScope = elemScope
		}
	}

	for index, arg := range op.Args {
		argPath := basePath + ".args[" + strconv.Itoa(index) + "]"
		argScope := scope
		if index == elementIndex {
			argScope = elementScope
		}
		validateExpr(arg, argPath, producedTargets, ctx, argScope)
	}
}

// validateStaticArgs enforces literal-path argument shapes for lookup, get,
// pick and omit. Positions are syntactic; a chained collection shifts them
// left by one.
func validateStaticArgs(op OpExpr, basePath string, chained bool, ctx *validationCtx) {
	shift := 0
	if chained {
		shift = 1
	}

	switch op.Op {
	case "lookup", "lookup_first":
		keyIndex := 1 - shift
		validateLookupPathArg(op, keyIndex, basePath, "key_path", ctx)
		outputIndex := 3 - shift
		if len(op.Args) > outputIndex {
			validateLookupPathArg(op, outputIndex, basePath, "output_path", ctx)
		}
	case "get":
		pathIndex := 1 - shift
		if pathIndex >= 0 && pathIndex < len(op.Args) {
			validatePathArg(op.Args[pathIndex], basePath+".args["+strconv.Itoa(pathIndex)+"]", ctx)
		}
	case "pick", "omit":
		pathIndex := 1 - shift
		if pathIndex >= 0 && pathIndex < len(op.Args) {
			validatePathArrayArg(op.Args[pathIndex], basePath+".args["+strconv.Itoa(pathIndex)+"]", op.Op == "pick", ctx)
		}
	}
}

func validateLookupPathArg(op OpExpr, index int, basePath, name string, ctx *validationCtx) {
	if index < 0 || index >= len(op.Args) {
		return
	}
	argPath := basePath + ".args[" + strconv.Itoa(index) + "]"
	value, ok := literalString(op.Args[index])
	if !ok || value == "" {
		ctx.push(CodeInvalidArgs, "lookup "+name+" must be a non-empty string literal", argPath)
		return
	}
	if _, err := ParsePath(value); err != nil {
		ctx.push(CodeInvalidArgs, "lookup "+name+" is invalid", argPath)
	}
}

func validatePathArg(expr Expr, basePath string, ctx *validationCtx) {
	lit, isLit := expr.(LitExpr)
	if !isLit {
		return
	}
	path, isString := lit.Value.(string)
	if !isString {
		ctx.push(CodeInvalidArgs, "path must be a string", basePath)
		return
	}
	if path == "" {
		ctx.push(CodeInvalidArgs, "path must be a non-empty string", basePath)
		return
	}
	if _, err := ParsePath(path); err != nil {
		ctx.push(CodeInvalidArgs, "path must be a valid path string", basePath)
	}
}

func validatePathArrayArg(expr Expr, basePath string, allowTerminalIndex bool, ctx *validationCtx) {
	lit, isLit := expr.(LitExpr)
	if !isLit {
		return
	}

	type pathItem struct {
		display string
		path    string
	}
	var items []pathItem
	switch v := lit.Value.(type) {
	case string:
		items = []pathItem{{display: basePath, path: v}}
	case []any:
		for index, item := range v {
			display := basePath + "[" + strconv.Itoa(index) + "]"
			s, isString := item.(string)
			if !isString {
				ctx.push(CodeInvalidArgs, "paths must be a string or array of strings", display)
				continue
			}
			items = append(items, pathItem{display: display, path: s})
		}
	default:
		ctx.push(CodeInvalidArgs, "paths must be a string or array of strings", basePath)
		return
	}

	var paths [][]PathToken
	for _, item := range items {
		tokens, err := ParsePath(item.path)
		if err != nil {
			ctx.push(CodeInvalidArgs, "paths must be valid path strings", item.display)
			continue
		}
		if !allowTerminalIndex && len(tokens) > 0 && tokens[len(tokens)-1].IsIndex {
			ctx.push(CodeInvalidArgs, "path must not end with array index", item.display)
			continue
		}
		if hasDuplicatePath(paths, tokens) {
			continue
		}
		if hasPathConflict(paths, tokens) {
			ctx.push(CodeInvalidArgs, "path conflicts with another path", item.display)
			continue
		}
		paths = append(paths, tokens)
	}
}

func validateRef(ref RefExpr, basePath string, producedTargets [][]PathToken, ctx *validationCtx, scope localScope) {
	ns, path, ok := parseExprRef(ref.Ref)
	if !ok {
		ctx.push(CodeInvalidRefNamespace, "ref namespace must be input|context|out|item|acc", basePath)
		return
	}

	switch ns {
	case nsItem:
		if !scope.allowsItem() {
			ctx.push(CodeInvalidRefNamespace, "item refs are only allowed inside array ops", basePath)
			return
		}
	case nsAcc:
		if !scope.allowsAcc() {
			ctx.push(CodeInvalidRefNamespace, "acc refs are only allowed inside reduce/fold ops", basePath)
			return
		}
	}

	tokens, err := ParsePath(path)
	if err != nil {
		ctx.push(CodeInvalidPath, "path is invalid", basePath)
		return
	}

	switch ns {
	case nsOut:
		if !outRefResolves(tokens, producedTargets) {
			ctx.push(CodeForwardOutReference, "out reference must point to previous mappings", basePath)
		}
	case nsItem:
		if len(tokens) == 0 || tokens[0].IsIndex || (tokens[0].Key != "value" && tokens[0].Key != "index") {
			ctx.push(CodeInvalidPath, "item ref must start with value or index", basePath)
		}
	case nsAcc:
		if len(tokens) == 0 || tokens[0].IsIndex || tokens[0].Key != "value" {
			ctx.push(CodeInvalidPath, "acc ref must start with value", basePath)
		}
	}
}

// outRefResolves reports whether an out reference points at (or into) a
// target produced by an earlier mapping. Index tokens are dropped before
// prefix matching since targets are key-only.
func outRefResolves(tokens []PathToken, producedTargets [][]PathToken) bool {
	var keyTokens []PathToken
	for _, token := range tokens {
		if !token.IsIndex {
			keyTokens = append(keyTokens, KeyToken(token.Key))
		}
	}
	if len(keyTokens) == 0 {
		return false
	}

	for end := len(keyTokens); end >= 1; end-- {
		if hasDuplicatePath(producedTargets, keyTokens[:end]) {
			return true
		}
	}
	return false
}

// validateWhenExpr flags when/record_when expressions that provably never
// produce a boolean. Refs and unknown-result ops pass; runtime failures
// stay warnings.
func validateWhenExpr(expr Expr, basePath string, ctx *validationCtx) {
	if boolExprKind(expr) == resultNotBool {
		ctx.push(CodeInvalidWhenType, "when/record_when must evaluate to boolean", basePath)
	}
}

// boolExprKind classifies an expression's result for the when-check.
func boolExprKind(expr Expr) resultKind {
	switch node := expr.(type) {
	case LitExpr:
		if _, isBool := node.Value.(bool); isBool {
			return resultBool
		}
		return resultNotBool
	case RefExpr:
		return resultMaybe
	case OpExpr:
		return boolOpKind(node, resultMaybe, false)
	case ChainExpr:
		return boolChainKind(node)
	default:
		return resultMaybe
	}
}

func boolChainKind(chain ChainExpr) resultKind {
	if len(chain.Chain) == 0 {
		return resultNotBool
	}
	current := boolExprKind(chain.Chain[0])
	for _, step := range chain.Chain[1:] {
		op, ok := step.(OpExpr)
		if !ok {
			return resultMaybe
		}
		current = boolOpKind(op, current, true)
	}
	return current
}

// boolOpKind resolves an op's result kind; coalesce folds over its
// arguments (and the injected chain value when chained).
func boolOpKind(op OpExpr, injected resultKind, chained bool) resultKind {
	spec, known := opTable[op.Op]
	if !known {
		return resultMaybe
	}
	if spec.result != resultCoalesce {
		return spec.result
	}

	sawMaybe := false
	if chained {
		switch injected {
		case resultNotBool:
			return resultNotBool
		case resultMaybe:
			sawMaybe = true
		}
	}
	for _, arg := range op.Args {
		switch boolExprKind(arg) {
		case resultNotBool:
			return resultNotBool
		case resultMaybe:
			sawMaybe = true
		}
	}
	if sawMaybe {
		return resultMaybe
	}
	return resultBool
}

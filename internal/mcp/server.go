// internal/mcp/server.go
package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/reshapehq/reshape/internal/dto"
	"github.com/reshapehq/reshape/internal/rules"
)

/*
 * MCP stdio server.
 *
 * Exposes the engine to MCP clients as four tools: validate, preflight,
 * transform, and generate. Every tool takes the rule YAML inline; the
 * server holds no state between calls and touches no files, so a client
 * can drive it entirely from memory.
 *
 * Tool failures (validation diagnostics, runtime errors) are reported as
 * tool results with isError set rather than protocol errors; protocol
 * errors are reserved for malformed requests.
 */

// Serve runs the stdio server until the client disconnects.
func Serve(version string) error {
	return server.ServeStdio(newServer(version))
}

func newServer(version string) *server.MCPServer {
	s := server.NewMCPServer("reshape", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("validate",
		mcp.WithDescription("Statically validate a YAML rule file and report diagnostics."),
		mcp.WithString("rules", mcp.Required(), mcp.Description("Rule file YAML")),
	), handleValidate)

	s.AddTool(mcp.NewTool("preflight",
		mcp.WithDescription("Run the transform against real input, reporting runtime diagnostics without emitting output."),
		mcp.WithString("rules", mcp.Required(), mcp.Description("Rule file YAML")),
		mcp.WithString("input", mcp.Required(), mcp.Description("Input document (CSV or JSON per the rule file)")),
		mcp.WithString("context", mcp.Description("Context JSON injected as context.*")),
	), handlePreflight)

	s.AddTool(mcp.NewTool("transform",
		mcp.WithDescription("Transform input records using a YAML rule file."),
		mcp.WithString("rules", mcp.Required(), mcp.Description("Rule file YAML")),
		mcp.WithString("input", mcp.Required(), mcp.Description("Input document (CSV or JSON per the rule file)")),
		mcp.WithString("context", mcp.Description("Context JSON injected as context.*")),
		mcp.WithBoolean("ndjson", mcp.Description("Emit newline-delimited JSON instead of an array")),
	), handleTransform)

	s.AddTool(mcp.NewTool("generate",
		mcp.WithDescription("Generate a typed record declaration from a rule file's targets."),
		mcp.WithString("rules", mcp.Required(), mcp.Description("Rule file YAML")),
		mcp.WithString("lang", mcp.Required(), mcp.Description("Target language: go, typescript, or python")),
		mcp.WithString("name", mcp.Description("Root type name (default: output.name or Record)")),
	), handleGenerate)

	return s
}

func loadRules(req mcp.CallToolRequest) (*rules.RuleFile, string, *mcp.CallToolResult) {
	source, err := req.RequireString("rules")
	if err != nil {
		return nil, "", mcp.NewToolResultError(err.Error())
	}
	rule, perr := rules.ParseRuleFile(source)
	if perr != nil {
		return nil, "", mcp.NewToolResultError("failed to parse rules: " + perr.Error())
	}
	return rule, source, nil
}

func loadContext(req mcp.CallToolRequest) (any, *mcp.CallToolResult) {
	raw := req.GetString("context", "")
	if raw == "" {
		return nil, nil
	}
	value, err := rules.DecodeJSONValue(raw)
	if err != nil {
		return nil, mcp.NewToolResultError("failed to parse context JSON: " + err.Error())
	}
	return value, nil
}

func handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rule, source, fail := loadRules(req)
	if fail != nil {
		return fail, nil
	}

	diagnostics := rules.ValidateWithSource(rule, source)
	if len(diagnostics) == 0 {
		return mcp.NewToolResultText("rule file is valid"), nil
	}

	var out strings.Builder
	for _, diag := range diagnostics {
		out.WriteString(diag.Error())
		out.WriteString("\n")
	}
	return mcp.NewToolResultError(out.String()), nil
}

func handlePreflight(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rule, _, fail := loadRules(req)
	if fail != nil {
		return fail, nil
	}
	input, err := req.RequireString("input")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	contextValue, fail := loadContext(req)
	if fail != nil {
		return fail, nil
	}

	warnings, diagnostics, terr := rules.Preflight(rule, input, contextValue)
	if terr != nil {
		return mcp.NewToolResultError(terr.Error()), nil
	}

	var out strings.Builder
	for _, warning := range warnings {
		out.WriteString("W " + string(warning.Kind) + " path=" + warning.Path + " msg=\"" + warning.Message + "\"\n")
	}
	for _, diag := range diagnostics {
		out.WriteString("E " + string(diag.Kind) + " path=" + diag.Path + " msg=\"" + diag.Message + "\"\n")
	}

	if len(diagnostics) > 0 {
		return mcp.NewToolResultError(out.String()), nil
	}
	if out.Len() == 0 {
		return mcp.NewToolResultText("preflight passed"), nil
	}
	return mcp.NewToolResultText("preflight passed with warnings:\n" + out.String()), nil
}

func handleTransform(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rule, _, fail := loadRules(req)
	if fail != nil {
		return fail, nil
	}
	input, err := req.RequireString("input")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	contextValue, fail := loadContext(req)
	if fail != nil {
		return fail, nil
	}

	outputs, _, terr := rules.Transform(rule, input, contextValue)
	if terr != nil {
		return mcp.NewToolResultError(terr.Error()), nil
	}

	if req.GetBool("ndjson", false) {
		var out strings.Builder
		for _, record := range outputs {
			out.WriteString(rules.EncodeRecord(record))
			out.WriteString("\n")
		}
		return mcp.NewToolResultText(out.String()), nil
	}

	return mcp.NewToolResultText(rules.EncodeRecord(outputs)), nil
}

func handleGenerate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rule, _, fail := loadRules(req)
	if fail != nil {
		return fail, nil
	}
	langValue, err := req.RequireString("lang")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lang, err := dto.ParseLanguage(langValue)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	output, err := dto.Generate(rule, lang, req.GetString("name", ""))
	if err != nil {
		return mcp.NewToolResultError("failed to generate dto: " + err.Error()), nil
	}
	return mcp.NewToolResultText(output), nil
}

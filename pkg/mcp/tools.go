package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/opflow/internal/diagram"
	"github.com/rendis/opflow/internal/engine"
	"github.com/rendis/opflow/internal/store"
	"github.com/rendis/opflow/pkg/schema"
)

// handleRun compiles the given definition and runs it once.
func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, errResult := definitionFrom(req)
	if errResult != nil {
		return errResult, nil
	}

	var input any
	if raw := req.GetString("input", ""); strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("input is not valid JSON: %v", err)), nil
		}
	}

	flow, err := s.engine.Compile(def)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("compile failed: %v", err)), nil
	}
	res, err := s.engine.Run(ctx, flow, input)
	if err != nil {
		s.logger.WarnContext(ctx, "mcp run failed", "flow", def.Name, "error", err.Error())
		return mcp.NewToolResultError(fmt.Sprintf("flow failed: %v", err)), nil
	}
	return marshalResult(res)
}

// handleValidate reports every issue found in a definition.
func (s *Server) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, errResult := definitionFrom(req)
	if errResult != nil {
		return errResult, nil
	}

	result := s.engine.Validate(def)
	out := map[string]any{
		"valid":    result.Valid(),
		"errors":   issuesOrEmpty(result.Errors),
		"warnings": issuesOrEmpty(result.Warnings),
	}
	if result.Valid() {
		// Static action params are only checked by compiling.
		if _, err := s.engine.Compile(def); err != nil {
			out["valid"] = false
			out["compile_error"] = err.Error()
		}
	}
	return marshalResult(out)
}

// handleDiagram renders a definition in the requested format.
func (s *Server) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "svg" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or svg"), nil
	}
	def, errResult := definitionFrom(req)
	if errResult != nil {
		return errResult, nil
	}

	model, err := diagram.Build(def, s.engine.Registry())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", err)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		svg, err := diagram.RenderImage(ctx, model, diagram.ImageSVG)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(svg)), nil
	}
}

func (s *Server) handleActions(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(s.engine.Registry().List())
}

// handleHistory lists recorded runs or returns a single one.
func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("run history is not enabled"), nil
	}

	if id := req.GetString("run_id", ""); id != "" {
		run, err := s.history.GetRun(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", err)), nil
		}
		return marshalResult(run)
	}

	status := store.RunStatus(req.GetString("status", ""))
	switch status {
	case "", store.RunSucceeded, store.RunFailed:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown run status %q", status)), nil
	}

	runs, err := s.history.ListRuns(ctx, store.RunFilter{
		Flow:   req.GetString("flow", ""),
		Status: status,
		Limit:  req.GetInt("limit", 20),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history query failed: %v", err)), nil
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	return marshalResult(runs)
}

// definitionFrom reads the definition object, falling back to source text.
// A non-nil result is the tool error to return.
func definitionFrom(req mcp.CallToolRequest) (*schema.FlowDefinition, *mcp.CallToolResult) {
	var data []byte
	if obj := mcp.ParseStringMap(req, "definition", nil); obj != nil {
		raw, err := json.Marshal(obj)
		if err != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("definition is not encodable: %v", err))
		}
		data = raw
	} else if src := req.GetString("source", ""); src != "" {
		data = []byte(src)
	} else {
		return nil, mcp.NewToolResultError("one of definition or source is required")
	}

	def, err := engine.ParseDefinition(data)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("invalid definition: %s", errorMessage(err)))
	}
	return def, nil
}

func errorMessage(err error) string {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

func issuesOrEmpty(issues []schema.ValidationIssue) []schema.ValidationIssue {
	if issues == nil {
		return []schema.ValidationIssue{}
	}
	return issues
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/opflow/internal/engine"
	"github.com/rendis/opflow/internal/store"
)

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Engine *engine.Engine
	// History is optional; without it opflow.history reports an error.
	History store.Store
	Logger  *slog.Logger
	Version string
}

// Server wraps an MCP server with opflow tool handlers.
type Server struct {
	engine    *engine.Engine
	history   store.Store
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		engine:  deps.Engine,
		history: deps.History,
		logger:  logger,
	}

	mcpSrv := server.NewMCPServer(
		"opflow",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("opflow runs declarative flows of composable actions. Use opflow.validate to check a definition, opflow.run to execute it, opflow.diagram to render it, opflow.actions to list available actions, and opflow.history to inspect recorded runs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: actionsTool(), Handler: s.handleActions},
		{Tool: historyTool(), Handler: s.handleHistory},
	}
}

// --- Tool definitions ---

func definitionArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithObject("definition", mcp.Description("Flow definition object (name, vars, input_schema, steps)")),
		mcp.WithString("source", mcp.Description("Flow definition as YAML or JSON text; used when definition is absent")),
	}
}

func runTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Compile and run a flow once"),
		mcp.WithString("input", mcp.Description("Initial running value as JSON text (default: null)")),
	}, definitionArgs()...)
	return mcp.NewTool("opflow.run", opts...)
}

func validateTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Validate a flow definition without running it"),
	}, definitionArgs()...)
	return mcp.NewTool("opflow.validate", opts...)
}

func diagramTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Render a flow as ASCII art, a Mermaid flowchart, or SVG"),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "svg"),
			mcp.Description("Output format"),
		),
	}, definitionArgs()...)
	return mcp.NewTool("opflow.diagram", opts...)
}

func actionsTool() mcp.Tool {
	return mcp.NewTool("opflow.actions",
		mcp.WithDescription("List the registered actions"),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("opflow.history",
		mcp.WithDescription("List recorded runs, or fetch one by run_id"),
		mcp.WithString("run_id", mcp.Description("Return only this run")),
		mcp.WithString("flow", mcp.Description("Only runs of this flow")),
		mcp.WithString("status", mcp.Enum("succeeded", "failed"), mcp.Description("Only runs with this status")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default: 20)")),
	)
}

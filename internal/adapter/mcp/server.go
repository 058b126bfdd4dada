package mcp

import (
	"github.com/guillermoBallester/querygate/internal/core/port"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

const instructions = "Every SQL statement sent to this server passes a gatekeeper before it reaches the database. " +
	"Only read-only queries over known tables are executed. Call get_schema first, and use check_query " +
	"to see why a statement would be refused."

// NewServer creates an MCPServer with tools and logging hooks.
func NewServer(version string, deps Deps, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithInstructions(instructions),
		server.WithRecovery(),
		server.WithHooks(ToolCallHooks(deps.Logger, tracer, inst)),
	)

	RegisterTools(s, deps)

	return s
}

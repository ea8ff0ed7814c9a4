package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"

	"github.com/ledgergate/ledgergate/internal/core/port"
	"github.com/ledgergate/ledgergate/internal/core/service"
)

const serverName = "ledgergate"

// NewServer creates an MCPServer with tools and logging hooks.
func NewServer(version string, explorer *service.ExplorerService, query *service.QueryService, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, explorer, query)

	return s
}

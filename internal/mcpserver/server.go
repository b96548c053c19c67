package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tobert/trace-analytics/internal/query"
	"github.com/tobert/trace-analytics/internal/storage"
)

// Endpointer reports the address the OTLP receiver listens on.
type Endpointer interface {
	Endpoint() string
}

// StatsSource reports span store statistics.
type StatsSource interface {
	Stats() storage.StoreStats
}

// Server wraps the MCP server around the analytics query service.
type Server struct {
	mcpServer *mcp.Server
	queries   *query.Service
	receiver  Endpointer
	store     StatsSource
	logger    *zap.Logger
}

// ServerOptions configures the MCP server.
type ServerOptions struct {
	Version string
	Logger  *zap.Logger
}

// NewServer creates an MCP server exposing the analytics views as tools.
func NewServer(queries *query.Service, store StatsSource, receiver Endpointer, opts ServerOptions) (*Server, error) {
	if queries == nil {
		return nil, fmt.Errorf("query service cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("span store cannot be nil")
	}
	if receiver == nil {
		return nil, fmt.Errorf("OTLP receiver cannot be nil")
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		queries:  queries,
		receiver: receiver,
		store:    store,
		logger:   opts.Logger.Named("mcp"),
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "trace-analytics",
		Title:   "Trace Analytics for Agents",
		Version: opts.Version,
	}, &mcp.ServerOptions{
		Instructions: `Trace analytics server. Receives OTLP traces and derives views from the spans held in memory.

Workflow: get_otlp_endpoint -> set OTEL_EXPORTER_OTLP_ENDPOINT -> run program -> ask for views.

Tools: summarize_traces, latency_histogram, operation_stats, error_rate_trend, top_error_operations (all traces);
dependency_graph, span_type_breakdown (one service). Every tool accepts the same optional filter.
Resources: analytics://services, analytics://boundaries, analytics://status.`,
	})

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server on stdio transport.
// This method blocks until the context is cancelled or EOF is received on stdin.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server running on stdio")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for use with alternative transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Package mcp exposes the configured databases as an MCP server.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/mcp/tools"
)

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server. hooks may be nil.
func NewServer(name, version string, hooks *server.Hooks, logger *zap.Logger) *Server {
	opts := []server.ServerOption{server.WithToolCapabilities(true)}
	if hooks != nil {
		opts = append(opts, server.WithHooks(hooks))
	}
	return &Server{
		mcp:    server.NewMCPServer(name, version, opts...),
		logger: logger,
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterDatabaseTools adds health, list_tables, get_schema and execute_query.
func (s *Server) RegisterDatabaseTools(version string, deps *tools.DatabaseToolDeps) {
	tools.RegisterHealthTool(s.mcp, version, deps.Catalog)
	tools.RegisterSchemaTools(s.mcp, deps)
	tools.RegisterQueryTools(s.mcp, deps)
	s.logger.Debug("Registered MCP database tools")
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/querygate/pkg/services"
)

type healthResult struct {
	Status    string   `json:"status"`
	Version   string   `json:"version"`
	Databases []string `json:"databases"`
}

// RegisterHealthTool adds a tool reporting the server version and the ids of
// the configured databases.
func RegisterHealthTool(s *server.MCPServer, version string, catalog services.SchemaCatalog) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and configured database ids"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids := []string{}
		for _, db := range catalog.Databases() {
			ids = append(ids, db.ID)
		}
		return jsonResult(healthResult{Status: "ok", Version: version, Databases: ids})
	})
}

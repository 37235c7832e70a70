package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/logging"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/services"
)

// DatabaseToolDeps contains dependencies for the database tools.
type DatabaseToolDeps struct {
	Catalog  services.SchemaCatalog
	Executor services.Executor
	Logger   *zap.Logger
}

type tableSummary struct {
	Name string                 `json:"name"`
	Kind models.SchemaEntryKind `json:"kind"`
}

// RegisterSchemaTools registers list_tables and get_schema.
func RegisterSchemaTools(s *server.MCPServer, deps *DatabaseToolDeps) {
	registerListTablesTool(s, deps)
	registerGetSchemaTool(s, deps)
}

func registerListTablesTool(s *server.MCPServer, deps *DatabaseToolDeps) {
	tool := mcp.NewTool(
		"list_tables",
		mcp.WithDescription("List the tables, views, collections or keys of a configured database."),
		mcp.WithString("db_id", mcp.Required(), mcp.Description("Configured database id")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbID, errResult := requiredString(req, "db_id")
		if errResult != nil {
			return errResult, nil
		}

		schema, err := deps.Catalog.GetSchema(ctx, dbID)
		if err != nil {
			deps.Logger.Debug("list_tables failed",
				zap.String("db_id", dbID),
				zap.String("error", logging.SanitizeError(err)))
			return errorResultFor(err), nil
		}

		tables := make([]tableSummary, 0, len(schema.Entries))
		for _, e := range schema.Entries {
			if e.Kind == models.EntryIndex {
				continue
			}
			tables = append(tables, tableSummary{Name: e.Name, Kind: e.Kind})
		}

		return jsonResult(struct {
			DBID   string         `json:"db_id"`
			Engine string         `json:"engine"`
			Tables []tableSummary `json:"tables"`
		}{dbID, schema.Engine, tables})
	})
}

func registerGetSchemaTool(s *server.MCPServer, deps *DatabaseToolDeps) {
	tool := mcp.NewTool(
		"get_schema",
		mcp.WithDescription(
			"Get the schema of a configured database as compact text suitable for writing queries. "+
				"Pass object to describe a single table or collection; singular and plural names both resolve.",
		),
		mcp.WithString("db_id", mcp.Required(), mcp.Description("Configured database id")),
		mcp.WithString("object", mcp.Description("Optional table, collection or key name")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbID, errResult := requiredString(req, "db_id")
		if errResult != nil {
			return errResult, nil
		}

		schema, err := deps.Catalog.GetSchema(ctx, dbID)
		if err != nil {
			return errorResultFor(err), nil
		}

		entries := schema.Entries
		if object := trimString(req.GetString("object", "")); object != "" {
			entry, ok := services.ResolveObject(entries, object)
			if !ok {
				return NewErrorResult("not_found", "no table or collection named "+object+" in "+dbID), nil
			}
			entries = []models.SchemaEntry{entry}
		}

		return jsonResult(struct {
			DBID    string               `json:"db_id"`
			Engine  string               `json:"engine"`
			Schema  string               `json:"schema"`
			Entries []models.SchemaEntry `json:"entries"`
		}{dbID, schema.Engine, services.RenderSchema(entries), entries})
	})
}

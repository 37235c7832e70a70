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

// RegisterQueryTools registers execute_query. Execution goes through the
// same executor as confirmed chat queries.
func RegisterQueryTools(s *server.MCPServer, deps *DatabaseToolDeps) {
	tool := mcp.NewTool(
		"execute_query",
		mcp.WithDescription(
			"Execute a query against a configured database. SQL databases take a single SQL statement, "+
				"MongoDB takes a JSON query document and Redis takes one command. "+
				"Mutating queries only run for administrators on writable databases with allow_mutations set.",
		),
		mcp.WithString("db_id", mcp.Required(), mcp.Description("Configured database id")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Query text in the database's native language")),
		mcp.WithBoolean("allow_mutations", mcp.Description("Permit a mutating query (default: false)")),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbID, errResult := requiredString(req, "db_id")
		if errResult != nil {
			return errResult, nil
		}
		query, errResult := requiredString(req, "query")
		if errResult != nil {
			return errResult, nil
		}
		allow, _ := getOptionalBool(req, "allow_mutations")

		result, err := deps.Executor.Execute(ctx, &services.ExecuteRequest{
			DBID:           dbID,
			Query:          query,
			AllowMutations: allow,
		})
		if err != nil {
			return errorResultFor(err), nil
		}
		if msg, failed := result.ErrorMessage(); failed {
			deps.Logger.Debug("execute_query failed",
				zap.String("db_id", dbID),
				zap.String("query", logging.SanitizeQuery(query)))
			return NewErrorResult("query_failed", msg), nil
		}

		return jsonResult(struct {
			DBID     string                 `json:"db_id"`
			RowCount int                    `json:"row_count"`
			Result   *models.ResultEnvelope `json:"result"`
		}{dbID, result.RowCount(), result})
	})
}

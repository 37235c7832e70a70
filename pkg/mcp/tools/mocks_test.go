package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/adapters/datasource"
	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/services"
)

// fakeCatalog serves fixed schemas keyed by db id.
type fakeCatalog struct {
	schemas map[string]*models.DatabaseSchema
	err     error
}

func (c *fakeCatalog) Databases() []models.DatabaseDescriptor {
	out := []models.DatabaseDescriptor{}
	for _, id := range []string{"sales", "docs"} {
		if s, ok := c.schemas[id]; ok {
			out = append(out, models.DatabaseDescriptor{ID: id, Name: s.Name, Engine: s.Engine, Kind: s.Kind})
		}
	}
	return out
}

func (c *fakeCatalog) Database(dbID string) (models.DatabaseDescriptor, error) {
	s, ok := c.schemas[dbID]
	if !ok {
		return models.DatabaseDescriptor{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownDatabase, dbID)
	}
	return models.DatabaseDescriptor{ID: dbID, Name: s.Name, Engine: s.Engine, Kind: s.Kind}, nil
}

func (c *fakeCatalog) Adapter(context.Context, string) (datasource.Adapter, models.DatabaseDescriptor, error) {
	return nil, models.DatabaseDescriptor{}, fmt.Errorf("not used")
}

func (c *fakeCatalog) GetSchema(_ context.Context, dbID string) (*models.DatabaseSchema, error) {
	if c.err != nil {
		return nil, c.err
	}
	if _, err := c.Database(dbID); err != nil {
		return nil, err
	}
	return c.schemas[dbID], nil
}

func (c *fakeCatalog) GetAllSchemas(context.Context) map[string]*models.DatabaseSchema {
	return c.schemas
}

func (c *fakeCatalog) SampleData(context.Context, string, string) (*models.ResultEnvelope, error) {
	return nil, fmt.Errorf("not used")
}

func (c *fakeCatalog) SchemaForPrompt(ctx context.Context, dbID string) (string, error) {
	s, err := c.GetSchema(ctx, dbID)
	if err != nil {
		return "", err
	}
	return services.RenderSchema(s.Entries), nil
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{schemas: map[string]*models.DatabaseSchema{
		"sales": {
			Name:   "Sales",
			Engine: "postgresql",
			Kind:   models.KindRelational,
			Entries: []models.SchemaEntry{
				{Name: "orders", Kind: models.EntryTable, Columns: []models.SchemaColumn{
					{Name: "id", Type: "integer", Extra: "PK"},
					{Name: "total", Type: "numeric"},
				}},
				{Name: "customers", Kind: models.EntryTable, Columns: []models.SchemaColumn{{Name: "id", Type: "integer", Extra: "PK"}}},
				{Name: "orders_total_idx", Kind: models.EntryIndex, Parent: "orders"},
			},
		},
	}}
}

// fakeExecutor records requests and returns a canned envelope.
type fakeExecutor struct {
	result   *models.ResultEnvelope
	err      error
	requests []*services.ExecuteRequest
}

func (e *fakeExecutor) Execute(_ context.Context, req *services.ExecuteRequest) (*models.ResultEnvelope, error) {
	e.requests = append(e.requests, req)
	return e.result, e.err
}

func newToolServer(deps *DatabaseToolDeps) *server.MCPServer {
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterHealthTool(s, "1.2.3", deps.Catalog)
	RegisterSchemaTools(s, deps)
	RegisterQueryTools(s, deps)
	return s
}

func newTestDeps() (*DatabaseToolDeps, *fakeExecutor) {
	exec := &fakeExecutor{}
	return &DatabaseToolDeps{Catalog: newFakeCatalog(), Executor: exec, Logger: zap.NewNop()}, exec
}

// callTool sends tools/call through the server and returns the first text
// content and the IsError flag.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) (string, bool) {
	t.Helper()

	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(s.HandleMessage(context.Background(), msg))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))
	require.NotEmpty(t, response.Result.Content, "response: %s", raw)
	return response.Result.Content[0].Text, response.Result.IsError
}

func listToolNames(t *testing.T, s *server.MCPServer) []string {
	t.Helper()

	raw, err := json.Marshal(s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))

	names := make([]string, 0, len(response.Result.Tools))
	for _, tool := range response.Result.Tools {
		names = append(names, tool.Name)
	}
	return names
}

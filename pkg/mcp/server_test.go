package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/config"
	"github.com/ekaya-inc/querygate/pkg/mcp/tools"
	"github.com/ekaya-inc/querygate/pkg/services"
)

func TestNewServer(t *testing.T) {
	logger := zap.NewNop()
	s := NewServer("test-server", "1.0.0", nil, logger)

	require.NotNil(t, s)
	require.NotNil(t, s.MCP())
	assert.Equal(t, logger, s.logger)
	assert.NotNil(t, s.NewStreamableHTTPServer())
}

func TestServer_RegisterTool(t *testing.T) {
	s := NewServer("test-server", "1.0.0", nil, zap.NewNop())

	handlerCalled := false
	s.RegisterTool(mcp.NewTool("test-tool", mcp.WithDescription("A test tool")), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		handlerCalled = true
		return mcp.NewToolResultText("success"), nil
	})
	assert.False(t, handlerCalled, "handler should not be called during registration")

	s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"test-tool"}}`))
	assert.True(t, handlerCalled)
}

func TestServer_RegisterDatabaseTools(t *testing.T) {
	s := NewServer("test-server", "1.0.0", nil, zap.NewNop())
	catalog := services.NewSchemaCatalog(map[string]config.DatasourceSpec{
		"sales": {Engine: "postgresql"},
	}, nil, 5, zap.NewNop())

	s.RegisterDatabaseTools("1.0.0", &tools.DatabaseToolDeps{Catalog: catalog, Logger: zap.NewNop()})

	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`)))
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))

	names := []string{}
	for _, tool := range response.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"health", "list_tables", "get_schema", "execute_query"}, names)
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/models"
)

func newMCPConnectionsMux(conns *mockMCPConnectionService) *http.ServeMux {
	mux := http.NewServeMux()
	NewMCPConnectionsHandler(conns, zap.NewNop()).RegisterRoutes(mux, newTestAuthMiddleware(), passthroughScope)
	return mux
}

func TestMCPConnectionsHandler_Create(t *testing.T) {
	conn := &models.MCPConnection{
		ID:             uuid.New(),
		Name:           "docs",
		ConnectionType: models.MCPTransportSSE,
		Configuration:  models.MCPConnectionConfig{URL: "http://localhost:9000/sse"},
	}
	conns := &mockMCPConnectionService{conn: conn}
	mux := newMCPConnectionsMux(conns)

	rec := serveJSON(mux, http.MethodPost, "/api/mcp-connections", "viewer",
		`{"name":"docs","connection_type":"sse","configuration":{"url":"http://localhost:9000/sse"}}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, conns.created)
	assert.Equal(t, "docs", conns.created.Name)
	assert.Equal(t, models.MCPTransportSSE, conns.created.ConnectionType)
	assert.Equal(t, "http://localhost:9000/sse", conns.created.Configuration.URL)
	assert.Contains(t, rec.Body.String(), `"connection_type":"sse"`)
}

func TestMCPConnectionsHandler_Create_Stdio(t *testing.T) {
	conns := &mockMCPConnectionService{conn: &models.MCPConnection{ID: uuid.New()}}
	mux := newMCPConnectionsMux(conns)

	rec := serveJSON(mux, http.MethodPost, "/api/mcp-connections", "viewer",
		`{"name":"fs","connection_type":"stdio","configuration":{"command":"npx","args":["-y","server-fs"],"env":{"ROOT":"/tmp"}}}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "npx", conns.created.Configuration.Command)
	assert.Equal(t, []string{"-y", "server-fs"}, conns.created.Configuration.Args)
	assert.Equal(t, map[string]string{"ROOT": "/tmp"}, conns.created.Configuration.Env)
}

func TestMCPConnectionsHandler_Create_Invalid(t *testing.T) {
	conns := &mockMCPConnectionService{err: fmt.Errorf("url is required: %w", apperrors.ErrInvalidInput)}
	mux := newMCPConnectionsMux(conns)

	rec := serveJSON(mux, http.MethodPost, "/api/mcp-connections", "viewer", `{"name":"docs"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMCPConnectionsHandler_Delete(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		mux := newMCPConnectionsMux(&mockMCPConnectionService{})

		rec := serveJSON(mux, http.MethodDelete, "/api/mcp-connections/"+uuid.NewString(), "viewer", "")

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing", func(t *testing.T) {
		mux := newMCPConnectionsMux(&mockMCPConnectionService{err: apperrors.ErrNotFound})

		rec := serveJSON(mux, http.MethodDelete, "/api/mcp-connections/"+uuid.NewString(), "viewer", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMCPConnectionsHandler_ListTools(t *testing.T) {
	conns := &mockMCPConnectionService{tools: []models.MCPTool{{Name: "search", Description: "Search docs"}}}
	mux := newMCPConnectionsMux(conns)

	rec := serveJSON(mux, http.MethodGet, "/api/mcp-connections/"+uuid.NewString()+"/tools", "viewer", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"search","description":"Search docs"}]`, rec.Body.String())
}

func TestMCPConnectionsHandler_ListTools_Unreachable(t *testing.T) {
	conns := &mockMCPConnectionService{toolsErr: errors.New("dial tcp: connection refused")}
	mux := newMCPConnectionsMux(conns)

	rec := serveJSON(mux, http.MethodGet, "/api/mcp-connections/"+uuid.NewString()+"/tools", "viewer", "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "mcp_unavailable", decodeErrorBody(t, rec)["error"])
}

func TestMCPConnectionsHandler_ListTools_NotFound(t *testing.T) {
	conns := &mockMCPConnectionService{toolsErr: apperrors.ErrNotFound}
	mux := newMCPConnectionsMux(conns)

	rec := serveJSON(mux, http.MethodGet, "/api/mcp-connections/"+uuid.NewString()+"/tools", "viewer", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

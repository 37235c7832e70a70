package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/services"
)

// MCPConnectionsHandler manages the caller's external MCP servers.
type MCPConnectionsHandler struct {
	connections services.MCPConnectionService
	logger      *zap.Logger
}

// NewMCPConnectionsHandler creates a new MCP connections handler.
func NewMCPConnectionsHandler(connections services.MCPConnectionService, logger *zap.Logger) *MCPConnectionsHandler {
	return &MCPConnectionsHandler{
		connections: connections,
		logger:      logger,
	}
}

// RegisterRoutes registers the MCP connection routes on the given mux.
func (h *MCPConnectionsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/mcp-connections", authMiddleware.RequireAuth(scope(h.Create)))
	mux.HandleFunc("GET /api/mcp-connections", authMiddleware.RequireAuth(scope(h.List)))
	mux.HandleFunc("DELETE /api/mcp-connections/{cid}", authMiddleware.RequireAuth(scope(h.Delete)))
	mux.HandleFunc("GET /api/mcp-connections/{cid}/tools", authMiddleware.RequireAuth(scope(h.ListTools)))
}

// Create handles POST /api/mcp-connections.
func (h *MCPConnectionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateMCPConnectionRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	conn, err := h.connections.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, err, "create MCP connection")
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, conn)
}

// List handles GET /api/mcp-connections.
func (h *MCPConnectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	conns, err := h.connections.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "list MCP connections")
		return
	}
	if conns == nil {
		conns = []*models.MCPConnection{}
	}
	writeJSON(w, h.logger, http.StatusOK, conns)
}

// Delete handles DELETE /api/mcp-connections/{cid}.
func (h *MCPConnectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseConnectionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.connections.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, "delete MCP connection")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTools handles GET /api/mcp-connections/{cid}/tools.
// A server that cannot be reached is reported as 502.
func (h *MCPConnectionsHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseConnectionID(w, r, h.logger)
	if !ok {
		return
	}

	tools, err := h.connections.ListTools(r.Context(), id)
	if err != nil {
		if status, _ := statusFor(err); status != http.StatusInternalServerError {
			writeServiceError(w, h.logger, err, "list MCP tools")
			return
		}
		h.logger.Warn("MCP tool listing failed", zap.String("connection_id", id.String()), zap.Error(err))
		writeError(w, h.logger, http.StatusBadGateway, "mcp_unavailable", "MCP server did not respond")
		return
	}
	if tools == nil {
		tools = []models.MCPTool{}
	}
	writeJSON(w, h.logger, http.StatusOK, tools)
}

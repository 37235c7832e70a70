package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/services"
)

// AuditHandler exposes the query audit log to administrators.
type AuditHandler struct {
	audit  services.AuditService
	logger *zap.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(audit services.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

// RegisterRoutes registers the audit routes on the given mux.
func (h *AuditHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	requireAdmin := authMiddleware.RequireRole(models.RoleAdmin)
	mux.HandleFunc("GET /api/admin/audit", authMiddleware.RequireAuth(requireAdmin(scope(h.List))))
}

// List handles GET /api/admin/audit?limit=.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.audit.List(r.Context(), limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "list audit log")
		return
	}
	if entries == nil {
		entries = []*models.QueryAuditEntry{}
	}
	writeJSON(w, h.logger, http.StatusOK, entries)
}

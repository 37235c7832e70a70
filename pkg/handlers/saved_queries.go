package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/services"
)

// CreateSavedQueryRequest is the body of POST /api/saved-queries.
type CreateSavedQueryRequest struct {
	DBID                 string `json:"db_id"`
	Name                 string `json:"name"`
	NaturalLanguageQuery string `json:"natural_language_query"`
	RawQuery             string `json:"raw_query"`
}

// SavedQueriesHandler handles the caller's saved queries.
type SavedQueriesHandler struct {
	queries services.SavedQueryService
	logger  *zap.Logger
}

// NewSavedQueriesHandler creates a new saved queries handler.
func NewSavedQueriesHandler(queries services.SavedQueryService, logger *zap.Logger) *SavedQueriesHandler {
	return &SavedQueriesHandler{
		queries: queries,
		logger:  logger,
	}
}

// RegisterRoutes registers the saved query routes on the given mux.
func (h *SavedQueriesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/saved-queries", authMiddleware.RequireAuth(scope(h.Create)))
	mux.HandleFunc("GET /api/saved-queries", authMiddleware.RequireAuth(scope(h.List)))
	mux.HandleFunc("DELETE /api/saved-queries/{qid}", authMiddleware.RequireAuth(scope(h.Delete)))
}

// Create handles POST /api/saved-queries.
func (h *SavedQueriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSavedQueryRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	saved, err := h.queries.Create(r.Context(), &models.SavedQuery{
		DBID:                 req.DBID,
		Name:                 req.Name,
		NaturalLanguageQuery: req.NaturalLanguageQuery,
		RawQuery:             req.RawQuery,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "save query")
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, saved)
}

// List handles GET /api/saved-queries.
func (h *SavedQueriesHandler) List(w http.ResponseWriter, r *http.Request) {
	saved, err := h.queries.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "list saved queries")
		return
	}
	if saved == nil {
		saved = []*models.SavedQuery{}
	}
	writeJSON(w, h.logger, http.StatusOK, saved)
}

// Delete handles DELETE /api/saved-queries/{qid}.
func (h *SavedQueriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseQueryID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.queries.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, "delete saved query")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

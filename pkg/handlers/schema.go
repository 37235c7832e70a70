package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/logging"
	"github.com/ekaya-inc/querygate/pkg/services"
)

// SchemaHandler serves live schema metadata for the configured databases.
type SchemaHandler struct {
	catalog services.SchemaCatalog
	logger  *zap.Logger
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(catalog services.SchemaCatalog, logger *zap.Logger) *SchemaHandler {
	return &SchemaHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// RegisterRoutes registers the schema routes on the given mux.
func (h *SchemaHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/schema", authMiddleware.RequireAuth(h.GetAll))
	mux.HandleFunc("GET /api/schema/{db_id}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("GET /api/schema/{db_id}/sample", authMiddleware.RequireAuth(h.Sample))
}

// GetAll handles GET /api/schema. A database that cannot be read carries an
// error field instead of failing the whole response.
func (h *SchemaHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, h.catalog.GetAllSchemas(r.Context()))
}

// Get handles GET /api/schema/{db_id}.
func (h *SchemaHandler) Get(w http.ResponseWriter, r *http.Request) {
	dbID := r.PathValue("db_id")

	schema, err := h.catalog.GetSchema(r.Context(), dbID)
	if err != nil {
		if status, _ := statusFor(err); status != http.StatusInternalServerError {
			writeServiceError(w, h.logger, err, "load schema")
			return
		}
		h.logger.Warn("Schema discovery failed", zap.String("db_id", dbID), zap.String("error", logging.SanitizeError(err)))
		writeError(w, h.logger, http.StatusBadGateway, "schema_unavailable", "Failed to read schema from "+dbID)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, schema)
}

// Sample handles GET /api/schema/{db_id}/sample?object=.
func (h *SchemaHandler) Sample(w http.ResponseWriter, r *http.Request) {
	dbID := r.PathValue("db_id")
	object := strings.TrimSpace(r.URL.Query().Get("object"))
	if object == "" {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "object is required")
		return
	}

	result, err := h.catalog.SampleData(r.Context(), dbID, object)
	if err != nil {
		if status, _ := statusFor(err); status != http.StatusInternalServerError {
			writeServiceError(w, h.logger, err, "sample data")
			return
		}
		h.logger.Warn("Sampling failed", zap.String("db_id", dbID), zap.String("object", object), zap.String("error", logging.SanitizeError(err)))
		writeError(w, h.logger, http.StatusBadGateway, "sample_unavailable", "Failed to sample "+object)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}

package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/services"
)

// GenerateQueryRequest is the body of POST /api/query/generate.
type GenerateQueryRequest struct {
	DBID                 string `json:"db_id"`
	ModelProvider        string `json:"model_provider"`
	NaturalLanguageQuery string `json:"natural_language_query"`
}

// ExecuteQueryRequest is the body of POST /api/query/execute.
type ExecuteQueryRequest struct {
	DBID                 string         `json:"db_id"`
	ModelProvider        string         `json:"model_provider"`
	RawQuery             string         `json:"raw_query"`
	Params               map[string]any `json:"params,omitempty"`
	NaturalLanguageQuery string         `json:"natural_language_query,omitempty"`
	ConfirmExecute       bool           `json:"confirm_execute"`
	AllowMutations       bool           `json:"allow_mutations"`
}

// QueriesHandler translates and executes one-off queries outside a session.
type QueriesHandler struct {
	translator services.Translator
	executor   services.Executor
	logger     *zap.Logger
}

// NewQueriesHandler creates a new queries handler.
func NewQueriesHandler(translator services.Translator, executor services.Executor, logger *zap.Logger) *QueriesHandler {
	return &QueriesHandler{
		translator: translator,
		executor:   executor,
		logger:     logger,
	}
}

// RegisterRoutes registers the query routes on the given mux.
func (h *QueriesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/query/generate", authMiddleware.RequireAuth(scope(h.Generate)))
	mux.HandleFunc("POST /api/query/execute", authMiddleware.RequireAuth(scope(h.Execute)))
}

// Generate handles POST /api/query/generate.
// Unusable model output is reported in the error field with status 200.
func (h *QueriesHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateQueryRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	generated, err := h.translator.Generate(r.Context(), req.DBID, req.ModelProvider, req.NaturalLanguageQuery)
	if err != nil {
		writeServiceError(w, h.logger, err, "generate query")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, generated)
}

// Execute handles POST /api/query/execute. Nothing runs unless confirm_execute is true.
// Execution failures are returned as an error-shaped result envelope.
func (h *QueriesHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteQueryRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if !req.ConfirmExecute {
		writeError(w, h.logger, http.StatusBadRequest, "confirmation_required", "confirm_execute must be true")
		return
	}
	if strings.TrimSpace(req.RawQuery) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "raw_query is required")
		return
	}

	result, err := h.executor.Execute(r.Context(), &services.ExecuteRequest{
		DBID:           req.DBID,
		Query:          req.RawQuery,
		Params:         req.Params,
		NaturalQuery:   req.NaturalLanguageQuery,
		AllowMutations: req.AllowMutations,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "execute query")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}

package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/config"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/services"
)

// ConfigResponse lists the databases and model providers a client may choose from.
type ConfigResponse struct {
	Databases       []models.DatabaseDescriptor `json:"databases"`
	LLMProviders    []string                    `json:"llm_providers"`
	DefaultProvider string                      `json:"default_provider"`
	ContextLimit    int                         `json:"context_limit"`
}

// ConfigHandler handles configuration requests.
type ConfigHandler struct {
	config  *config.Config
	catalog services.SchemaCatalog
	logger  *zap.Logger
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(cfg *config.Config, catalog services.SchemaCatalog, logger *zap.Logger) *ConfigHandler {
	return &ConfigHandler{
		config:  cfg,
		catalog: catalog,
		logger:  logger,
	}
}

// RegisterRoutes registers the config handler's routes on the given mux.
func (h *ConfigHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/config", authMiddleware.RequireAuth(h.Get))
}

// Get handles GET /api/config.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	response := ConfigResponse{
		Databases:       h.catalog.Databases(),
		LLMProviders:    h.config.ProviderNames(),
		DefaultProvider: h.config.LLM.DefaultProvider,
		ContextLimit:    h.config.Query.ContextLimit,
	}

	w.Header().Set("Cache-Control", "private, no-cache")
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode config response", zap.Error(err))
	}
}

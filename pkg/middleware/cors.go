package middleware

import (
	"net/http"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CORS allows the configured browser origins to call the API with credentials.
// An empty origin list disables cross-origin access entirely.
func CORS(origins []string, logger *zap.Logger) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept", RequestIDHeader, "Mcp-Session-Id"},
		ExposedHeaders:   []string{RequestIDHeader, "WWW-Authenticate"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	logger.Debug("CORS enabled", zap.Strings("origins", origins))
	return c.Handler
}

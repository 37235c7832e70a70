package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware guards handlers with token authentication and role checks.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

// NewMiddleware creates auth middleware around authService.
func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger,
	}
}

// RequireAuth rejects unauthenticated requests with 401 and stores claims and token in the context.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.authService.ValidateRequest(r)
		if err != nil {
			Unauthorized(w, "Authentication required")
			return
		}

		ctx := WithClaims(r.Context(), claims)
		ctx = WithToken(ctx, token)
		next(w, r.WithContext(ctx))
	}
}

// RequireRole runs after RequireAuth and rejects callers without role.
func (m *Middleware) RequireRole(role string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok {
				Unauthorized(w, "Authentication required")
				return
			}
			if claims.Role != role {
				m.logger.Warn("Role check failed",
					zap.String("subject", claims.Subject),
					zap.String("role", claims.Role),
					zap.String("required", role),
					zap.String("path", r.URL.Path))
				forbidden(w, "This action requires the "+role+" role")
				return
			}
			next(w, r)
		}
	}
}

// Unauthorized writes the 401 response every client treats as a logout signal.
func Unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "unauthorized", message)
}

func forbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, "forbidden", message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

package database

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/auth"
)

// WithUserContext attaches a user-bound connection to the request.
// It runs after the auth middleware and reads the user id from the claims.
func WithUserContext(db *DB, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.GetClaims(r.Context())
			if !ok || claims.UserID == "" {
				logger.Error("Missing user in claims")
				writeError(w, http.StatusInternalServerError, "internal_error", "Missing user context")
				return
			}

			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				logger.Error("Invalid user ID in claims", zap.String("user_id", claims.UserID), zap.Error(err))
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid user")
				return
			}

			scope, err := db.WithUser(r.Context(), userID)
			if err != nil {
				logger.Error("Failed to acquire user connection",
					zap.String("user_id", userID.String()),
					zap.Error(err))
				writeError(w, http.StatusInternalServerError, "database_error", "Database connection error")
				return
			}
			defer scope.Close()

			next(w, r.WithContext(SetScope(r.Context(), scope)))
		}
	}
}

func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

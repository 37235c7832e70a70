package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
)

// maxJSONBody bounds request bodies decoded by decodeJSON.
const maxJSONBody = 1 << 20

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response, logging encoding failures.
func writeError(w http.ResponseWriter, logger *zap.Logger, statusCode int, errorCode, message string) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeJSON writes a success response, logging encoding failures.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, data interface{}) {
	if err := WriteJSON(w, statusCode, data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// statusFor maps a service error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrUnknownDatabase):
		return http.StatusNotFound, "unknown_database"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrContextExhausted):
		return http.StatusConflict, "context_exhausted"
	case errors.Is(err, apperrors.ErrTurnInProgress):
		return http.StatusConflict, "turn_in_progress"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrUnknownProvider):
		return http.StatusBadRequest, "unknown_provider"
	case errors.Is(err, apperrors.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_role"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperrors.ErrCredentialsKeyMismatch):
		return http.StatusInternalServerError, "credentials_key_mismatch"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeServiceError maps err onto the error response. Internal errors are
// logged and reported with a generic message.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, action string) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("Failed to "+action, zap.Error(err))
		message = "Failed to " + action
	}
	writeError(w, logger, status, code, message)
}

// decodeJSON decodes the request body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

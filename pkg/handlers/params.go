package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseSessionID extracts and validates the session ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: sid
func ParseSessionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "sid", "invalid_session_id", "Invalid session ID format", logger)
}

// ParseMessageID extracts and validates the message ID from the request path.
// Expects path parameter: mid
func ParseMessageID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "mid", "invalid_message_id", "Invalid message ID format", logger)
}

// ParseSessionAndMessageIDs extracts and validates both session and message IDs.
// Expects path parameters: sid, mid
func ParseSessionAndMessageIDs(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, uuid.UUID, bool) {
	sessionID, ok := ParseSessionID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	messageID, ok := ParseMessageID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	return sessionID, messageID, true
}

// ParseProjectID extracts and validates the project ID from the request path.
// Expects path parameter: pid
func ParseProjectID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "pid", "invalid_project_id", "Invalid project ID format", logger)
}

// ParseConnectionID extracts and validates the MCP connection ID from the request path.
// Expects path parameter: cid
func ParseConnectionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "cid", "invalid_connection_id", "Invalid connection ID format", logger)
}

// ParseQueryID extracts and validates the saved query ID from the request path.
// Expects path parameter: qid
func ParseQueryID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "qid", "invalid_query_id", "Invalid query ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// queryList collects a query parameter given as repeated values and/or
// comma-separated lists. Blank items are dropped.
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, raw := range r.URL.Query()[key] {
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/logging"
)

// ErrorResponse is the body of a failed tool call. It is returned as a tool
// result with IsError set so MCP clients show it to the model.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use it for anything the caller can act on; system failures stay Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	body, _ := json.Marshal(ErrorResponse{Error: code, Message: message})
	result := mcp.NewToolResultText(string(body))
	result.IsError = true
	return result
}

// errorResultFor maps service errors onto tool error codes.
func errorResultFor(err error) *mcp.CallToolResult {
	msg := logging.SanitizeError(err)
	switch {
	case errors.Is(err, apperrors.ErrUnknownDatabase):
		return NewErrorResult("unknown_database", msg)
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("not_found", msg)
	case errors.Is(err, apperrors.ErrInvalidInput):
		return NewErrorResult("invalid_input", msg)
	default:
		return NewErrorResult("internal_error", msg)
	}
}

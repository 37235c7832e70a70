package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func trimString(s string) string {
	return strings.TrimSpace(s)
}

// requiredString returns the trimmed argument, or an error result when it is missing.
func requiredString(req mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	v, err := req.RequireString(key)
	if err != nil || trimString(v) == "" {
		return "", NewErrorResult("invalid_input", fmt.Sprintf("%s is required", key))
	}
	return trimString(v), nil
}

// getOptionalBool extracts an optional boolean parameter from the request.
func getOptionalBool(req mcp.CallToolRequest, key string) (bool, bool) {
	if val, ok := req.GetArguments()[key].(bool); ok {
		return val, true
	}
	return false, false
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/observability"
)

// ToolCallLogger logs and counts calls to the MCP server's tools.
type ToolCallLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewToolCallLogger creates a ToolCallLogger.
func NewToolCallLogger(logger *zap.Logger) *ToolCallLogger {
	return &ToolCallLogger{logger: logger.Named("mcp-tools")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *ToolCallLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *ToolCallLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *ToolCallLogger) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	elapsed := a.elapsed(id)

	outcome := observability.OutcomeSuccess
	if result != nil && result.IsError {
		outcome = observability.OutcomeError
		if isDenial(result) {
			outcome = observability.OutcomeDenied
		}
	}
	observability.ObserveMCPToolCall(req.Params.Name, outcome)

	a.logger.Info("MCP tool call",
		zap.String("tool", req.Params.Name),
		zap.String("user", auth.GetUsername(ctx)),
		zap.String("outcome", outcome),
		zap.Any("arguments", sanitizeParams(req.GetArguments())),
		zap.Duration("duration", elapsed))
}

func (a *ToolCallLogger) onError(ctx context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	elapsed := a.elapsed(id)
	observability.ObserveMCPToolCall(req.Params.Name, observability.OutcomeError)

	a.logger.Warn("MCP tool call failed",
		zap.String("tool", req.Params.Name),
		zap.String("user", auth.GetUsername(ctx)),
		zap.Duration("duration", elapsed),
		zap.Error(err))
}

func (a *ToolCallLogger) elapsed(id any) time.Duration {
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		return time.Since(v.(time.Time))
	}
	return 0
}

// isDenial reports whether an error result came from a safety gate rather
// than a failing query.
func isDenial(result *mcplib.CallToolResult) bool {
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			text := strings.ToLower(tc.Text)
			if strings.Contains(text, "mutation denied") || strings.Contains(text, "injection") {
				return true
			}
		}
	}
	return false
}

// maxParamSize bounds string arguments written to the log.
const maxParamSize = 2048

// sqlStringLiteralPattern matches SQL string literals, including '' escapes.
var sqlStringLiteralPattern = regexp.MustCompile(`'(?:[^']*(?:'')?)*[^']*'`)

var sensitiveKeyHints = []string{"password", "secret", "token", "api_key", "apikey", "credential"}

// sanitizeParams truncates long strings, redacts literals inside query
// arguments and hashes sensitive values.
func sanitizeParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		sanitized[k] = sanitizeValue(k, v)
	}
	return sanitized
}

func sanitizeValue(key string, value any) any {
	if isSensitiveKey(key) {
		return hashSensitiveValue(value)
	}
	switch val := value.(type) {
	case string:
		if len(val) > maxParamSize {
			val = val[:maxParamSize] + "...[truncated]"
		}
		if isQueryParam(key) {
			val = sqlStringLiteralPattern.ReplaceAllString(val, "'***'")
		}
		return val
	case map[string]any:
		return sanitizeParams(val)
	default:
		return value
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, hint := range sensitiveKeyHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func isQueryParam(key string) bool {
	lower := strings.ToLower(key)
	return lower == "sql" || lower == "query" || strings.HasSuffix(lower, "_query")
}

// hashSensitiveValue keeps a short SHA-256 prefix so repeated values can be correlated.
func hashSensitiveValue(value any) string {
	hash := sha256.Sum256([]byte(fmt.Sprint(value)))
	return "sha256:" + hex.EncodeToString(hash[:8])
}

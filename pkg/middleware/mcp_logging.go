package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/logging"
)

// maxLoggedBody bounds how much of an MCP request body is buffered for logging.
const maxLoggedBody = 1 << 20

// MCPRequestLogger logs MCP JSON-RPC calls at DEBUG: the method, the tool name,
// the target database and a sanitized preview of the query argument.
// JSON-RPC errors in the response are logged with their code.
// Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxLoggedBody+1))
			if err != nil {
				logger.Error("Failed to read MCP request body", zap.Error(err))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(bodyBytes), r.Body))

			var rpcReq jsonRPCRequest
			if len(bodyBytes) <= maxLoggedBody {
				if err := json.Unmarshal(bodyBytes, &rpcReq); err != nil {
					logger.Debug("Failed to parse MCP request JSON", zap.Error(err))
				}
			}

			fields := []zap.Field{
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("method", rpcReq.Method),
			}
			if rpcReq.Params.Name != "" {
				fields = append(fields, zap.String("tool", rpcReq.Params.Name))
			}
			fields = append(fields, toolArgumentFields(rpcReq.Params.Arguments)...)
			logger.Debug("MCP request", fields...)

			recorder := &mcpResponseRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(recorder, r)

			duration := time.Since(start)

			var rpcResp jsonRPCResponse
			if err := json.Unmarshal(recorder.body.Bytes(), &rpcResp); err != nil {
				// Streamed (SSE) responses are not plain JSON.
				logger.Debug("MCP response", zap.String("tool", rpcReq.Params.Name), zap.Duration("duration", duration))
				return
			}

			if rpcResp.Error != nil {
				logger.Debug("MCP response error",
					zap.String("tool", rpcReq.Params.Name),
					zap.Int("error_code", rpcResp.Error.Code),
					zap.String("error_message", rpcResp.Error.Message),
					zap.Duration("duration", duration),
				)
				return
			}
			logger.Debug("MCP response success",
				zap.String("tool", rpcReq.Params.Name),
				zap.Bool("tool_error", rpcResp.Result.IsError),
				zap.Duration("duration", duration),
			)
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// mcpResponseRecorder tees the response body so it can be inspected afterwards.
type mcpResponseRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	if r.body.Len() < maxLoggedBody {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// toolArgumentFields picks the arguments worth logging. Query text goes
// through the query sanitizer; parameter values are never logged, only
// their names.
func toolArgumentFields(args map[string]any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	var fields []zap.Field
	if dbID, ok := args["db_id"].(string); ok {
		fields = append(fields, zap.String("db_id", dbID))
	}
	if query, ok := args["query"].(string); ok {
		fields = append(fields, zap.String("query_preview", logging.SanitizeQuery(query)))
	}
	if object, ok := args["object"].(string); ok {
		fields = append(fields, zap.String("object", logging.TruncateString(object, 100)))
	}
	if params, ok := args["params"].(map[string]any); ok && len(params) > 0 {
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		fields = append(fields, zap.Strings("param_names", names))
	}

	var others []string
	for key := range args {
		switch key {
		case "db_id", "query", "object", "params":
			continue
		}
		if isSensitiveArgument(key) {
			continue
		}
		others = append(others, key)
	}
	if len(others) > 0 {
		fields = append(fields, zap.Strings("other_arguments", others))
	}
	return fields
}

func isSensitiveArgument(key string) bool {
	lower := strings.ToLower(key)
	for _, keyword := range []string{"password", "secret", "token", "key", "credential"} {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

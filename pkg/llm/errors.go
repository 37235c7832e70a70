package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
)

// ErrorType classifies a provider failure.
type ErrorType string

const (
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeServer    ErrorType = "server"
	ErrorTypeRequest   ErrorType = "request"
	ErrorTypeResponse  ErrorType = "response"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is a classified provider error.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Provider   string
}

func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.Provider != "" {
		parts = append(parts, "provider="+e.Provider)
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable implements retry.RetryableError.
func (e *Error) IsRetryable() bool { return e.Retryable }

// NewError creates a classified error.
func NewError(errType ErrorType, provider, message string, retryable bool, cause error) *Error {
	return &Error{Type: errType, Provider: provider, Message: message, Retryable: retryable, Cause: cause}
}

// ClassifyError turns an SDK or transport error into an *Error. Status codes
// are taken from the SDK error types when available and from the message text
// otherwise.
func ClassifyError(provider string, err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	status := statusCodeOf(err)
	classified := func(t ErrorType, msg string, retryable bool) *Error {
		e := NewError(t, provider, msg, retryable, err)
		e.StatusCode = status
		return e
	}

	lower := strings.ToLower(err.Error())
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) ||
		strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return classified(ErrorTypeTimeout, "request timeout", true)
	case errors.Is(err, context.Canceled):
		return classified(ErrorTypeTimeout, "request canceled", false)
	case status == 401 || status == 403 || strings.Contains(lower, "invalid api key") || strings.Contains(lower, "unauthorized"):
		return classified(ErrorTypeAuth, "authentication failed", false)
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return classified(ErrorTypeModel, "model not found", false)
	case status == 404:
		return classified(ErrorTypeEndpoint, "endpoint not found", false)
	case status == 429 || strings.Contains(lower, "rate limit"):
		return classified(ErrorTypeRateLimit, "rate limited", true)
	case status >= 500 || strings.Contains(lower, "overloaded"):
		return classified(ErrorTypeServer, "server error", true)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"):
		return classified(ErrorTypeEndpoint, "connection failed", true)
	case status == 400:
		return classified(ErrorTypeRequest, "bad request", false)
	}
	return classified(ErrorTypeUnknown, "llm error", false)
}

func statusCodeOf(err error) int {
	var oaAPI *openai.APIError
	if errors.As(err, &oaAPI) {
		return oaAPI.HTTPStatusCode
	}
	var oaReq *openai.RequestError
	if errors.As(err, &oaReq) {
		return oaReq.HTTPStatusCode
	}
	var anReq *anthropic.RequestError
	if errors.As(err, &anReq) {
		return anReq.StatusCode
	}
	var anAPI *anthropic.APIError
	if errors.As(err, &anAPI) {
		switch {
		case anAPI.IsAuthenticationErr(), anAPI.IsPermissionErr():
			return 401
		case anAPI.IsNotFoundErr():
			return 404
		case anAPI.IsRateLimitErr():
			return 429
		case anAPI.IsOverloadedErr(), anAPI.IsApiErr():
			return 503
		case anAPI.IsInvalidRequestErr():
			return 400
		}
	}

	msg := err.Error()
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504} {
		if strings.Contains(msg, fmt.Sprintf("status code: %d", code)) ||
			strings.Contains(msg, fmt.Sprintf("HTTP %d", code)) {
			return code
		}
	}
	return 0
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// UserMessage renders a provider failure as text suitable for a chat reply.
// Transport problems become a retryable notice.
func UserMessage(err error) string {
	var llmErr *Error
	if !errors.As(err, &llmErr) {
		return "The language model request failed: " + err.Error()
	}
	switch llmErr.Type {
	case ErrorTypeTimeout, ErrorTypeEndpoint, ErrorTypeServer, ErrorTypeRateLimit:
		return fmt.Sprintf("The language model (%s) is temporarily unavailable (%s). Please try again.", llmErr.Provider, llmErr.Message)
	case ErrorTypeAuth:
		return fmt.Sprintf("The language model (%s) rejected the configured credentials.", llmErr.Provider)
	default:
		return fmt.Sprintf("The language model (%s) could not answer: %s.", llmErr.Provider, llmErr.Message)
	}
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/querygate/pkg/retry"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
		status    int
	}{
		{"openai 401", &openai.APIError{HTTPStatusCode: 401, Message: "Incorrect API key"}, ErrorTypeAuth, false, 401},
		{"openai 429", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, ErrorTypeRateLimit, true, 429},
		{"openai 503", &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("unavailable")}, ErrorTypeServer, true, 503},
		{"model missing", errors.New("The model `gpt-9` does not exist"), ErrorTypeModel, false, 0},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrorTypeTimeout, true, 0},
		{"canceled", context.Canceled, ErrorTypeTimeout, false, 0},
		{"refused", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"), ErrorTypeEndpoint, true, 0},
		{"status text", errors.New("error, status code: 404, message: not here"), ErrorTypeEndpoint, false, 404},
		{"unknown", errors.New("boom"), ErrorTypeUnknown, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError("chatgpt", tt.err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.Equal(t, "chatgpt", got.Provider)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyError_KeepsClassified(t *testing.T) {
	orig := NewError(ErrorTypeAuth, "claude", "authentication failed", false, nil)
	assert.Same(t, orig, ClassifyError("other", fmt.Errorf("wrapped: %w", orig)))
	assert.Nil(t, ClassifyError("x", nil))
}

func TestError_ImplementsRetryableError(t *testing.T) {
	var re retry.RetryableError = NewError(ErrorTypeServer, "groq", "server error", true, nil)
	assert.True(t, re.IsRetryable())
	assert.True(t, retry.IsRetryable(fmt.Errorf("x: %w", NewError(ErrorTypeServer, "groq", "server error", true, nil))))
	assert.False(t, retry.IsRetryable(NewError(ErrorTypeAuth, "groq", "authentication failed", false, nil)))
}

func TestError_Error(t *testing.T) {
	err := &Error{Type: ErrorTypeServer, Provider: "groq", StatusCode: 503, Message: "server error", Cause: errors.New("upstream")}
	assert.Equal(t, "server provider=groq HTTP 503 server error: upstream", err.Error())
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t,
		"The language model (groq) is temporarily unavailable (request timeout). Please try again.",
		UserMessage(NewError(ErrorTypeTimeout, "groq", "request timeout", true, nil)))
	assert.Equal(t,
		"The language model (claude) rejected the configured credentials.",
		UserMessage(NewError(ErrorTypeAuth, "claude", "authentication failed", false, nil)))
	assert.Equal(t, "The language model request failed: boom", UserMessage(errors.New("boom")))
}

// Package llm provides chat completion and transcription clients for the
// configured model providers.
package llm

import (
	"context"
	"io"
)

// Role of a chat message sent to a provider.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior turn passed to the model.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is a provider-neutral chat completion request.
type CompletionRequest struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// CompletionResult is the text reply and its token usage.
type CompletionResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// ChatClient completes a conversation against one provider.
// Use this interface for dependency injection to enable mocking in tests.
type ChatClient interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// Provider returns the configured provider name, e.g. "chatgpt".
	Provider() string

	// Model returns the configured model name.
	Model() string
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

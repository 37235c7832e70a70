package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config holds configuration for creating a provider client.
type Config struct {
	Provider string // configured name, e.g. "groq"
	Endpoint string // base URL; empty uses the vendor default
	Model    string
	APIKey   string // optional for local endpoints
}

// OpenAIClient talks to any OpenAI-compatible endpoint (ChatGPT, Groq, Gemini).
type OpenAIClient struct {
	client   *openai.Client
	provider string
	model    string
	logger   *zap.Logger
}

// NewOpenAIClient creates an OpenAI-compatible client.
func NewOpenAIClient(cfg *Config, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}

	return &OpenAIClient{
		client:   openai.NewClientWithConfig(clientConfig),
		provider: cfg.Provider,
		model:    cfg.Model,
		logger:   logger.Named("llm").With(zap.String("provider", cfg.Provider)),
	}, nil
}

func (c *OpenAIClient) Provider() string { return c.provider }
func (c *OpenAIClient) Model() string    { return c.model }

// Complete sends the system prompt followed by the conversation.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("messages", len(messages)),
		zap.Float32("temperature", req.Temperature))

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyError(c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewError(ErrorTypeResponse, c.provider, "no choices in response", false, nil)
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &CompletionResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// WhisperClient transcribes audio with an OpenAI-compatible transcription model.
type WhisperClient struct {
	client   *openai.Client
	provider string
	model    string
}

// NewWhisperClient creates a transcription client sharing a provider's endpoint and key.
func NewWhisperClient(cfg *Config) *WhisperClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperClient{client: openai.NewClientWithConfig(clientConfig), provider: cfg.Provider, model: model}
}

// Transcribe uploads audio; filename supplies the format hint.
func (w *WhisperClient) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", ClassifyError(w.provider, err)
	}
	return strings.TrimSpace(resp.Text), nil
}

var (
	_ ChatClient  = (*OpenAIClient)(nil)
	_ Transcriber = (*WhisperClient)(nil)
)

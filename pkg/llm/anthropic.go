package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// defaultAnthropicMaxTokens is used when the request sets none; the
// Messages API requires a value.
const defaultAnthropicMaxTokens = 2000

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	client   *anthropic.Client
	provider string
	model    string
	logger   *zap.Logger
}

// NewAnthropicClient creates a Claude client.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	var opts []anthropic.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.Endpoint, "/")))
	}

	return &AnthropicClient{
		client:   anthropic.NewClient(cfg.APIKey, opts...),
		provider: cfg.Provider,
		model:    cfg.Model,
		logger:   logger.Named("llm").With(zap.String("provider", cfg.Provider)),
	}, nil
}

func (c *AnthropicClient) Provider() string { return c.provider }
func (c *AnthropicClient) Model() string    { return c.model }

// Complete sends the conversation with the system prompt as a top-level field.
// Consecutive messages with the same role are merged since the API requires
// alternating turns.
func (c *AnthropicClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	messages := toAnthropicMessages(req.Messages)
	if len(messages) == 0 {
		return nil, NewError(ErrorTypeRequest, c.provider, "at least one message is required", false, nil)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	temperature := req.Temperature

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("messages", len(messages)),
		zap.Float32("temperature", temperature))

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      req.System,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyError(c.provider, err)
	}

	text := extractAnthropicText(resp)
	if text == "" {
		return nil, NewError(ErrorTypeResponse, c.provider, "no text content in response", false, nil)
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &CompletionResult{
		Content:          text,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}

func toAnthropicMessages(in []Message) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(in))
	for _, m := range in {
		role := anthropic.RoleUser
		if m.Role == RoleAssistant {
			role = anthropic.RoleAssistant
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			prev := out[n-1].Content[0].Text
			merged := *prev + "\n\n" + m.Content
			out[n-1].Content[0].Text = &merged
			continue
		}
		text := m.Content
		out = append(out, anthropic.Message{
			Role:    role,
			Content: []anthropic.MessageContent{{Type: anthropic.MessagesContentTypeText, Text: &text}},
		})
	}
	return out
}

func extractAnthropicText(resp anthropic.MessagesResponse) string {
	var parts []string
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			parts = append(parts, *block.Text)
		}
	}
	return strings.Join(parts, "")
}

var _ ChatClient = (*AnthropicClient)(nil)

package llm

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/config"
	"github.com/ekaya-inc/querygate/pkg/retry"
)

// ProviderKind values accepted in provider configuration.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
)

// ClientFactory resolves provider names to ChatClients.
// Use this interface for dependency injection and testing.
type ClientFactory interface {
	// Client returns the named provider's client; an empty name selects the default.
	Client(name string) (ChatClient, error)
	// Transcriber returns the configured speech-to-text client.
	Transcriber() (Transcriber, error)
	// DefaultProvider returns the name used when a request names none.
	DefaultProvider() string
	// Providers returns the configured provider names.
	Providers() []string
}

// Registry builds provider clients lazily from configuration and caches them.
type Registry struct {
	cfg    *config.Config
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]ChatClient
}

// NewRegistry creates a registry over cfg.LLM.
func NewRegistry(cfg *config.Config, logger *zap.Logger) *Registry {
	return &Registry{cfg: cfg, logger: logger, clients: make(map[string]ChatClient)}
}

func (r *Registry) DefaultProvider() string { return r.cfg.LLM.DefaultProvider }
func (r *Registry) Providers() []string     { return r.cfg.ProviderNames() }

func (r *Registry) Client(name string) (ChatClient, error) {
	if name == "" {
		name = r.cfg.LLM.DefaultProvider
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[name]; ok {
		return c, nil
	}

	pc, ok := r.cfg.LLM.Providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownProvider, name)
	}

	c, err := newProviderClient(name, pc, r.logger)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", name, err)
	}

	guarded := NewGuardedClient(c, NewCircuitBreaker(name, DefaultCircuitBreakerConfig()),
		requestRetryConfig(), r.cfg.LLM.RequestTimeout, r.logger)
	r.clients[name] = guarded
	return guarded, nil
}

// requestRetryConfig retries transient provider failures twice.
func requestRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:       2,
		InitialDelay:     500 * time.Millisecond,
		MaxDelay:         4 * time.Second,
		Multiplier:       2,
		JitterFactor:     0.1,
		MaxSameErrorType: 3,
	}
}

func (r *Registry) Transcriber() (Transcriber, error) {
	t := r.cfg.LLM.Transcription
	pc, ok := r.cfg.LLM.Providers[t.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: transcription provider %q", apperrors.ErrUnknownProvider, t.Provider)
	}
	if pc.Kind != KindOpenAI {
		return nil, fmt.Errorf("transcription provider %q must be OpenAI-compatible", t.Provider)
	}
	return NewWhisperClient(&Config{
		Provider: t.Provider,
		Endpoint: pc.Endpoint,
		Model:    t.Model,
		APIKey:   pc.APIKey(),
	}), nil
}

func newProviderClient(name string, pc config.ProviderConfig, logger *zap.Logger) (ChatClient, error) {
	cfg := &Config{Provider: name, Endpoint: pc.Endpoint, Model: pc.Model, APIKey: pc.APIKey()}
	switch pc.Kind {
	case KindOpenAI:
		return NewOpenAIClient(cfg, logger)
	case KindAnthropic:
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported provider kind %q", pc.Kind)
	}
}

var _ ClientFactory = (*Registry)(nil)

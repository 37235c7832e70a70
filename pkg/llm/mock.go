package llm

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
)

// MockChatClient is a configurable ChatClient for tests. Set CompleteFunc to
// control replies; otherwise Responses are returned in order.
type MockChatClient struct {
	CompleteFunc func(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)
	Responses    []string
	ProviderName string
	ModelName    string

	mu       sync.Mutex
	Requests []*CompletionRequest
}

// NewMockChatClient returns a mock that answers with responses in order.
func NewMockChatClient(responses ...string) *MockChatClient {
	return &MockChatClient{Responses: responses, ProviderName: "mock", ModelName: "mock-model"}
}

func (m *MockChatClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	n := len(m.Requests)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	if len(m.Responses) == 0 {
		return &CompletionResult{}, nil
	}
	if n > len(m.Responses) {
		n = len(m.Responses)
	}
	return &CompletionResult{Content: m.Responses[n-1]}, nil
}

func (m *MockChatClient) Provider() string { return m.ProviderName }
func (m *MockChatClient) Model() string    { return m.ModelName }

// Calls returns the number of Complete calls.
func (m *MockChatClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// MockTranscriber returns Text or Err.
type MockTranscriber struct {
	Text string
	Err  error

	Filename string
	Audio    []byte
}

func (m *MockTranscriber) Transcribe(_ context.Context, filename string, audio io.Reader) (string, error) {
	m.Filename = filename
	m.Audio, _ = io.ReadAll(audio)
	return m.Text, m.Err
}

// MockClientFactory serves fixed clients by provider name.
type MockClientFactory struct {
	Clients        map[string]ChatClient
	Default        string
	TranscribeWith Transcriber
}

// NewMockClientFactory registers client as the default provider "mock".
func NewMockClientFactory(client ChatClient) *MockClientFactory {
	return &MockClientFactory{Clients: map[string]ChatClient{"mock": client}, Default: "mock"}
}

func (f *MockClientFactory) Client(name string) (ChatClient, error) {
	if name == "" {
		name = f.Default
	}
	c, ok := f.Clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownProvider, name)
	}
	return c, nil
}

func (f *MockClientFactory) Transcriber() (Transcriber, error) {
	if f.TranscribeWith == nil {
		return nil, fmt.Errorf("transcription not configured")
	}
	return f.TranscribeWith, nil
}

func (f *MockClientFactory) DefaultProvider() string { return f.Default }

func (f *MockClientFactory) Providers() []string {
	names := make([]string, 0, len(f.Clients))
	for name := range f.Clients {
		names = append(names, name)
	}
	return names
}

// MockResponseCache is an in-memory ResponseCache.
type MockResponseCache struct {
	mu      sync.Mutex
	Entries map[string]string
	Sets    int
}

func NewMockResponseCache() *MockResponseCache {
	return &MockResponseCache{Entries: map[string]string{}}
}

func (c *MockResponseCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.Entries[key]
	return v, ok, nil
}

func (c *MockResponseCache) Set(_ context.Context, key, reply string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Entries[key] = reply
	c.Sets++
	return nil
}

var (
	_ ChatClient    = (*MockChatClient)(nil)
	_ Transcriber   = (*MockTranscriber)(nil)
	_ ClientFactory = (*MockClientFactory)(nil)
	_ ResponseCache = (*MockResponseCache)(nil)
)

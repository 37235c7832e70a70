package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "chatgpt"
	cfg.LLM.RequestTimeout = time.Minute
	cfg.LLM.Providers = config.DefaultProviders()
	cfg.LLM.Transcription = config.TranscriptionConfig{Provider: "chatgpt", Model: "whisper-1"}
	return cfg
}

func TestRegistry_Client(t *testing.T) {
	r := NewRegistry(testConfig(), zap.NewNop())

	def, err := r.Client("")
	require.NoError(t, err)
	assert.Equal(t, "chatgpt", def.Provider())
	assert.Equal(t, "gpt-4o-mini", def.Model())

	again, err := r.Client("chatgpt")
	require.NoError(t, err)
	assert.Same(t, def, again)

	claude, err := r.Client("claude")
	require.NoError(t, err)
	assert.Equal(t, "claude", claude.Provider())
}

func TestRegistry_UnknownProvider(t *testing.T) {
	r := NewRegistry(testConfig(), zap.NewNop())

	_, err := r.Client("llama-local")
	assert.ErrorIs(t, err, apperrors.ErrUnknownProvider)
}

func TestRegistry_Transcriber(t *testing.T) {
	cfg := testConfig()
	r := NewRegistry(cfg, zap.NewNop())

	tr, err := r.Transcriber()
	require.NoError(t, err)
	assert.NotNil(t, tr)

	cfg.LLM.Transcription.Provider = "claude"
	_, err = r.Transcriber()
	assert.Error(t, err)
}

func TestRegistry_Providers(t *testing.T) {
	r := NewRegistry(testConfig(), zap.NewNop())
	assert.Equal(t, []string{"chatgpt", "claude", "gemini", "groq"}, r.Providers())
	assert.Equal(t, "chatgpt", r.DefaultProvider())
}

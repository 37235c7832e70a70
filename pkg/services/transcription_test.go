package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/llm"
)

func newTranscriptionFixture(archive AudioArchive) (TranscriptionService, *llm.MockTranscriber) {
	transcriber := &llm.MockTranscriber{Text: "  show me sales  "}
	factory := llm.NewMockClientFactory(llm.NewMockChatClient())
	factory.TranscribeWith = transcriber
	return NewTranscriptionService(factory, archive, zap.NewNop()), transcriber
}

func TestTranscription_Transcribe(t *testing.T) {
	archive := &fakeArchive{}
	svc, transcriber := newTranscriptionFixture(archive)
	claims := &auth.Claims{}
	claims.Subject = "alice"
	ctx := auth.WithClaims(context.Background(), claims)

	text, err := svc.Transcribe(ctx, "Memo.WEBM", "audio/webm", []byte("audio-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "show me sales", text)
	assert.Equal(t, "Memo.WEBM", transcriber.Filename)
	assert.Equal(t, []byte("audio-bytes"), transcriber.Audio)
	require.Len(t, archive.keys, 1)
	assert.True(t, strings.HasPrefix(archive.keys[0], "alice/"))
	assert.True(t, strings.HasSuffix(archive.keys[0], ".webm"))
}

func TestTranscription_ArchiveFailureIsIgnored(t *testing.T) {
	svc, _ := newTranscriptionFixture(&fakeArchive{err: errors.New("bucket gone")})

	text, err := svc.Transcribe(context.Background(), "a.mp3", "audio/mpeg", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "show me sales", text)
}

func TestTranscription_Validation(t *testing.T) {
	svc, _ := newTranscriptionFixture(nil)

	_, err := svc.Transcribe(context.Background(), "a.mp3", "audio/mpeg", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.Transcribe(context.Background(), "a.mp3", "audio/mpeg", make([]byte, MaxAudioBytes+1))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestTranscription_ProviderFailure(t *testing.T) {
	svc, transcriber := newTranscriptionFixture(nil)
	transcriber.Err = errors.New("upstream 500")

	_, err := svc.Transcribe(context.Background(), "a.mp3", "audio/mpeg", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream 500")
}

func TestTranscription_NotConfigured(t *testing.T) {
	svc := NewTranscriptionService(llm.NewMockClientFactory(llm.NewMockChatClient()), nil, zap.NewNop())

	_, err := svc.Transcribe(context.Background(), "a.mp3", "audio/mpeg", []byte("x"))
	assert.Error(t, err)
}

func TestArchiveKey(t *testing.T) {
	assert.True(t, strings.HasPrefix(ArchiveKey("", "a.wav"), "anonymous/"))
	assert.True(t, strings.HasSuffix(ArchiveKey("bob", "clip.M4A"), ".m4a"))
	assert.NotContains(t, ArchiveKey("bob", "noext"), ".")
}

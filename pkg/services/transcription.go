package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/llm"
	"github.com/ekaya-inc/querygate/pkg/logging"
)

// MaxAudioBytes is the largest upload accepted for transcription.
const MaxAudioBytes = 25 << 20

// AudioArchive stores uploaded audio. *s3.Store implements it.
type AudioArchive interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// TranscriptionService turns recorded speech into text.
type TranscriptionService interface {
	Transcribe(ctx context.Context, filename, contentType string, audio []byte) (string, error)
}

type transcriptionService struct {
	llms    llm.ClientFactory
	archive AudioArchive
	logger  *zap.Logger
}

// NewTranscriptionService creates a TranscriptionService. archive may be nil.
func NewTranscriptionService(llms llm.ClientFactory, archive AudioArchive, logger *zap.Logger) TranscriptionService {
	return &transcriptionService{
		llms:    llms,
		archive: archive,
		logger:  logger.Named("transcription"),
	}
}

var _ TranscriptionService = (*transcriptionService)(nil)

func (s *transcriptionService) Transcribe(ctx context.Context, filename, contentType string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio file is empty: %w", apperrors.ErrInvalidInput)
	}
	if len(audio) > MaxAudioBytes {
		return "", fmt.Errorf("audio file exceeds %d MiB: %w", MaxAudioBytes>>20, apperrors.ErrInvalidInput)
	}

	transcriber, err := s.llms.Transcriber()
	if err != nil {
		return "", err
	}

	if s.archive != nil {
		key := ArchiveKey(auth.GetUsername(ctx), filename)
		if _, err := s.archive.Put(ctx, key, bytes.NewReader(audio), int64(len(audio)), contentType); err != nil {
			// Archiving is best effort; transcription still proceeds.
			s.logger.Warn("Failed to archive audio",
				zap.String("key", key),
				zap.String("error", logging.SanitizeError(err)))
		}
	}

	text, err := transcriber.Transcribe(ctx, filename, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// ArchiveKey is "<username>/<uuid><ext>". The store adds its prefix.
func ArchiveKey(username, filename string) string {
	if username == "" {
		username = "anonymous"
	}
	ext := strings.ToLower(path.Ext(filename))
	return path.Join(username, uuid.New().String()+ext)
}

package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
)

func newTranscribeMux(svc *mockTranscriptionService) *http.ServeMux {
	mux := http.NewServeMux()
	NewTranscribeHandler(svc, zap.NewNop()).RegisterRoutes(mux, newTestAuthMiddleware())
	return mux
}

// multipartAudio builds a form with the given field name holding audio.
func multipartAudio(t *testing.T, field, filename string, audio []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(audio)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestTranscribeHandler_Transcribe(t *testing.T) {
	svc := &mockTranscriptionService{text: "show me revenue by month"}
	mux := newTranscribeMux(svc)

	body, contentType := multipartAudio(t, "file", "question.webm", []byte("RIFF....audio"))
	rec := serve(mux, http.MethodPost, "/api/transcribe", "viewer", body, contentType)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"show me revenue by month"}`, rec.Body.String())
	assert.Equal(t, "question.webm", svc.filename)
	assert.Equal(t, []byte("RIFF....audio"), svc.audio)
}

func TestTranscribeHandler_MissingFile(t *testing.T) {
	mux := newTranscribeMux(&mockTranscriptionService{})

	body, contentType := multipartAudio(t, "audio", "question.webm", []byte("x"))
	rec := serve(mux, http.MethodPost, "/api/transcribe", "viewer", body, contentType)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_file", decodeErrorBody(t, rec)["error"])
}

func TestTranscribeHandler_NotMultipart(t *testing.T) {
	mux := newTranscribeMux(&mockTranscriptionService{})

	rec := serveJSON(mux, http.MethodPost, "/api/transcribe", "viewer", `{"file":"x"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTranscribeHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"empty audio", fmt.Errorf("audio file is empty: %w", apperrors.ErrInvalidInput), http.StatusBadRequest},
		{"provider failure", errors.New("transcription failed: 503"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTranscribeMux(&mockTranscriptionService{err: tt.err})

			body, contentType := multipartAudio(t, "file", "q.mp3", []byte("x"))
			rec := serve(mux, http.MethodPost, "/api/transcribe", "viewer", body, contentType)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestTranscribeHandler_RequiresAuth(t *testing.T) {
	mux := newTranscribeMux(&mockTranscriptionService{})

	body, contentType := multipartAudio(t, "file", "q.mp3", []byte("x"))
	rec := serve(mux, http.MethodPost, "/api/transcribe", "", body, contentType)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

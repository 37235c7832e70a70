package handlers

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/logging"
	"github.com/ekaya-inc/querygate/pkg/services"
)

// multipartOverhead leaves room for form boundaries and headers around the audio.
const multipartOverhead = 1 << 20

// TranscriptionResponse is returned by POST /api/transcribe.
type TranscriptionResponse struct {
	Text string `json:"text"`
}

// TranscribeHandler turns uploaded audio into text.
type TranscribeHandler struct {
	transcription services.TranscriptionService
	logger        *zap.Logger
}

// NewTranscribeHandler creates a new transcription handler.
func NewTranscribeHandler(transcription services.TranscriptionService, logger *zap.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		transcription: transcription,
		logger:        logger,
	}
}

// RegisterRoutes registers the transcription route on the given mux.
func (h *TranscribeHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/transcribe", authMiddleware.RequireAuth(h.Transcribe))
}

// Transcribe handles POST /api/transcribe with multipart field "file".
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxAudioBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, h.logger, http.StatusRequestEntityTooLarge, "file_too_large", "Audio file exceeds 25 MiB")
			return
		}
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Expected a multipart form with a file field")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "missing_file", "file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, services.MaxAudioBytes+1))
	if err != nil {
		h.logger.Error("Failed to read uploaded audio", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Failed to read uploaded file")
		return
	}

	text, err := h.transcription.Transcribe(r.Context(), header.Filename, header.Header.Get("Content-Type"), audio)
	if err != nil {
		if status, _ := statusFor(err); status != http.StatusInternalServerError {
			writeServiceError(w, h.logger, err, "transcribe audio")
			return
		}
		h.logger.Warn("Transcription failed", zap.String("error", logging.SanitizeError(err)))
		writeError(w, h.logger, http.StatusBadGateway, "transcription_failed", "Transcription failed")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, TranscriptionResponse{Text: text})
}

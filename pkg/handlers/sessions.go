package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/services"
)

// ScopeMiddleware binds a user-scoped database connection to the request.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// UpdateSessionRequest is the body of PATCH /api/sessions/{sid}.
// An explicit null project_id ungroups the session.
type UpdateSessionRequest struct {
	Title     *string         `json:"title"`
	ProjectID json.RawMessage `json:"project_id"`
}

// SendMessageRequest is the body of POST /api/sessions/{sid}/message.
type SendMessageRequest struct {
	Role    models.MessageRole `json:"role"`
	Content string             `json:"content"`
}

// PatchMessageRequest is the body of PATCH /api/sessions/{sid}/messages/{mid}.
type PatchMessageRequest struct {
	Results     *models.ResultEnvelope `json:"results"`
	ChartConfig *models.ChartConfig    `json:"chart_config"`
}

// ConfirmQueryRequest is the body of POST .../messages/{mid}/confirm.
type ConfirmQueryRequest struct {
	Query          *string `json:"query"`
	AllowMutations bool    `json:"allow_mutations"`
}

// VisualizeRequest is the body of POST .../messages/{mid}/visualize.
type VisualizeRequest struct {
	Request string `json:"request"`
}

// SessionsHandler handles chat sessions and the turns taken in them.
type SessionsHandler struct {
	sessions     services.SessionService
	conversation services.ConversationService
	logger       *zap.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(sessions services.SessionService, conversation services.ConversationService, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{
		sessions:     sessions,
		conversation: conversation,
		logger:       logger,
	}
}

// RegisterRoutes registers the sessions handler's routes on the given mux.
func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/sessions", authMiddleware.RequireAuth(scope(h.Create)))
	mux.HandleFunc("GET /api/sessions", authMiddleware.RequireAuth(scope(h.List)))
	mux.HandleFunc("GET /api/sessions/{sid}", authMiddleware.RequireAuth(scope(h.Get)))
	mux.HandleFunc("PATCH /api/sessions/{sid}", authMiddleware.RequireAuth(scope(h.Update)))
	mux.HandleFunc("DELETE /api/sessions/{sid}", authMiddleware.RequireAuth(scope(h.Delete)))

	mux.HandleFunc("POST /api/sessions/{sid}/message", authMiddleware.RequireAuth(scope(h.SendMessage)))
	mux.HandleFunc("PATCH /api/sessions/{sid}/messages/{mid}", authMiddleware.RequireAuth(scope(h.PatchMessage)))
	mux.HandleFunc("POST /api/sessions/{sid}/messages/{mid}/confirm", authMiddleware.RequireAuth(scope(h.ConfirmQuery)))
	mux.HandleFunc("POST /api/sessions/{sid}/messages/{mid}/visualize", authMiddleware.RequireAuth(scope(h.Visualize)))
}

// Create handles POST /api/sessions.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateSessionRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	session, err := h.sessions.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, err, "create session")
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, session)
}

// List handles GET /api/sessions?search=.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeServiceError(w, h.logger, err, "list sessions")
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	writeJSON(w, h.logger, http.StatusOK, sessions)
}

// Get handles GET /api/sessions/{sid}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	detail, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "get session")
		return
	}
	if detail.Messages == nil {
		detail.Messages = []*models.Message{}
	}
	writeJSON(w, h.logger, http.StatusOK, detail)
}

// Update handles PATCH /api/sessions/{sid}.
func (h *SessionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	var body UpdateSessionRequest
	if !decodeJSON(w, r, h.logger, &body) {
		return
	}

	req := &services.UpdateSessionRequest{Title: body.Title}
	switch {
	case body.ProjectID == nil:
	case bytes.Equal(bytes.TrimSpace(body.ProjectID), []byte("null")):
		req.ClearProject = true
	default:
		var projectID uuid.UUID
		if err := json.Unmarshal(body.ProjectID, &projectID); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_project_id", "Invalid project ID format")
			return
		}
		req.ProjectID = &projectID
	}

	session, err := h.sessions.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, h.logger, err, "update session")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, session)
}

// Delete handles DELETE /api/sessions/{sid}.
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.sessions.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, "delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendMessage handles POST /api/sessions/{sid}/message.
// Query parameters: model_provider, active_mcp_ids (comma-separated and/or repeated).
func (h *SessionsHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	var body SendMessageRequest
	if !decodeJSON(w, r, h.logger, &body) {
		return
	}
	if body.Role == "" {
		body.Role = models.RoleUser
	}

	created, err := h.conversation.SendMessage(r.Context(), id, &services.SendMessageRequest{
		Role:         body.Role,
		Content:      body.Content,
		Provider:     r.URL.Query().Get("model_provider"),
		ActiveMCPIDs: queryList(r, "active_mcp_ids"),
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "send message")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, created)
}

// PatchMessage handles PATCH /api/sessions/{sid}/messages/{mid}.
func (h *SessionsHandler) PatchMessage(w http.ResponseWriter, r *http.Request) {
	sessionID, messageID, ok := ParseSessionAndMessageIDs(w, r, h.logger)
	if !ok {
		return
	}

	var body PatchMessageRequest
	if !decodeJSON(w, r, h.logger, &body) {
		return
	}

	msg, err := h.sessions.PatchMessage(r.Context(), sessionID, messageID, models.MessagePatch{
		Results:     body.Results,
		ChartConfig: body.ChartConfig,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "update message")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, msg)
}

// ConfirmQuery handles POST /api/sessions/{sid}/messages/{mid}/confirm.
func (h *SessionsHandler) ConfirmQuery(w http.ResponseWriter, r *http.Request) {
	sessionID, messageID, ok := ParseSessionAndMessageIDs(w, r, h.logger)
	if !ok {
		return
	}

	var body ConfirmQueryRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, h.logger, &body) {
		return
	}

	msg, err := h.conversation.ConfirmQuery(r.Context(), sessionID, messageID, &services.ConfirmQueryRequest{
		Query:          body.Query,
		AllowMutations: body.AllowMutations,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "execute query")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, msg)
}

// Visualize handles POST /api/sessions/{sid}/messages/{mid}/visualize.
func (h *SessionsHandler) Visualize(w http.ResponseWriter, r *http.Request) {
	sessionID, messageID, ok := ParseSessionAndMessageIDs(w, r, h.logger)
	if !ok {
		return
	}

	var body VisualizeRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, h.logger, &body) {
		return
	}

	result, err := h.conversation.RequestVisualization(r.Context(), sessionID, messageID, body.Request)
	if err != nil {
		writeServiceError(w, h.logger, err, "create visualization")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}

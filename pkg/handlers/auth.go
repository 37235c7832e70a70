package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/services"
)

// TokenResponse is returned by POST /auth/token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse describes the current user.
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Disabled bool   `json:"disabled"`
}

// AuthHandler issues tokens and manages local accounts.
type AuthHandler struct {
	users    services.UserService
	issuer   *auth.TokenIssuer
	sessions *auth.SessionStore
	logger   *zap.Logger
}

// NewAuthHandler creates a new auth handler. sessions may be nil to skip the cookie.
func NewAuthHandler(users services.UserService, issuer *auth.TokenIssuer, sessions *auth.SessionStore, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		issuer:   issuer,
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterRoutes registers the auth handler's routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /auth/token", h.Token)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("POST /auth/register", h.Register)
	mux.HandleFunc("GET /api/me", authMiddleware.RequireAuth(h.Me))
}

// Token handles POST /auth/token with form fields username and password.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := r.ParseForm(); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Invalid form body")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	user, err := h.users.Authenticate(r.Context(), username, password)
	if err != nil {
		writeServiceError(w, h.logger, err, "authenticate")
		return
	}

	token, err := h.issuer.Issue(user)
	if err != nil {
		h.logger.Error("Failed to issue token", zap.String("username", user.Username), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal_error", "Failed to issue token")
		return
	}

	if h.sessions != nil {
		if err := h.sessions.Save(w, r, token); err != nil {
			h.logger.Warn("Failed to store session cookie", zap.Error(err))
		}
	}

	writeJSON(w, h.logger, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.issuer.TTL().Seconds()),
	})
}

// Logout handles POST /auth/logout by expiring the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.sessions != nil {
		if err := h.sessions.Clear(w, r); err != nil {
			h.logger.Warn("Failed to clear session cookie", zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	user, err := h.users.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err, "register user")
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, toUserResponse(user))
}

// Me handles GET /api/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByUsername(r.Context(), auth.GetUsername(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "load user")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, toUserResponse(user))
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:       u.ID.String(),
		Username: u.Username,
		Role:     u.Role,
		Disabled: u.Disabled,
	}
}

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/models"
)

var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrUnknownUser          = errors.New("token subject is not an active user")
)

// UserResolver loads the account a token was issued for.
type UserResolver interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// AuthService authenticates HTTP requests.
type AuthService interface {
	// ValidateRequest reads the bearer header, then the session cookie, validates
	// the token and binds it to an enabled account. The returned claims carry the
	// account's current id and role.
	ValidateRequest(r *http.Request) (*Claims, string, error)
}

type authService struct {
	validator TokenValidator
	sessions  *SessionStore
	users     UserResolver
	logger    *zap.Logger
}

// NewAuthService creates an AuthService. sessions may be nil for API-only use.
func NewAuthService(validator TokenValidator, sessions *SessionStore, users UserResolver, logger *zap.Logger) AuthService {
	return &authService{
		validator: validator,
		sessions:  sessions,
		users:     users,
		logger:    logger.Named("auth"),
	}
}

func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	token, source, err := s.extractToken(r)
	if err != nil {
		s.logger.Debug("No usable token in request",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return nil, "", err
	}

	claims, err := s.validator.ValidateToken(token)
	if err != nil {
		s.logger.Debug("Token validation failed",
			zap.String("path", r.URL.Path),
			zap.String("token_source", source),
			zap.Error(err))
		return nil, "", err
	}

	user, err := s.users.GetByUsername(r.Context(), claims.Subject)
	if err != nil || user == nil || user.Disabled {
		s.logger.Debug("Token subject rejected",
			zap.String("subject", claims.Subject),
			zap.Error(err))
		return nil, "", ErrUnknownUser
	}

	claims.UserID = user.ID.String()
	claims.Role = user.Role
	return claims, token, nil
}

func (s *authService) extractToken(r *http.Request) (string, string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", "", ErrInvalidAuthFormat
		}
		return parts[1], "header", nil
	}
	if s.sessions != nil {
		if token, ok := s.sessions.Token(r); ok {
			return token, "cookie", nil
		}
	}
	return "", "", ErrMissingAuthorization
}

var _ AuthService = (*authService)(nil)

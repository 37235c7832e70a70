// Package auth issues and validates bearer tokens for querygate users.
// Local tokens are HS256; tokens from configured external issuers are
// verified against their JWKS.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/models"
)

type contextKey string

const (
	// ClaimsKey is the context key for validated claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for the raw token string.
	TokenKey contextKey = "token"
)

// Claims is the token payload. Subject carries the username.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid,omitempty"`
	Role   string `json:"role,omitempty"`
}

// GetClaims returns the claims placed in ctx by the auth middleware.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok && claims != nil
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// WithToken returns a copy of ctx carrying the raw token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, TokenKey, token)
}

// GetToken returns the raw bearer token for the request.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// GetUsername returns the authenticated username or "".
func GetUsername(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok {
		return ""
	}
	return claims.Subject
}

// GetUserID returns the authenticated user's id.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	claims, ok := GetClaims(ctx)
	if !ok || claims.UserID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// RequireUserID is GetUserID for operations that cannot run anonymously.
func RequireUserID(ctx context.Context) (uuid.UUID, error) {
	id, ok := GetUserID(ctx)
	if !ok {
		return uuid.Nil, fmt.Errorf("no user in context: %w", apperrors.ErrUnauthorized)
	}
	return id, nil
}

// IsAdmin reports whether the authenticated user holds the admin role.
func IsAdmin(ctx context.Context) bool {
	claims, ok := GetClaims(ctx)
	return ok && claims.Role == models.RoleAdmin
}

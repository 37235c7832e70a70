package database

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const scopeKey contextKey = "dbScope"

// GetScope returns the request's database scope, if one was attached.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeKey).(*Scope)
	return scope, ok && scope != nil
}

// SetScope attaches a database scope to ctx.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// ScopeProvider opens user-bound contexts outside the HTTP middleware chain,
// e.g. for MCP tool calls.
type ScopeProvider struct {
	db *DB
}

func NewScopeProvider(db *DB) *ScopeProvider {
	return &ScopeProvider{db: db}
}

// WithUserScope returns a context carrying a scope for userID and a cleanup func.
func (p *ScopeProvider) WithUserScope(ctx context.Context, userID uuid.UUID) (context.Context, func(), error) {
	scope, err := p.db.WithUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return SetScope(ctx, scope), scope.Close, nil
}

// WithoutUserScope returns a context carrying an unscoped connection and a cleanup func.
func (p *ScopeProvider) WithoutUserScope(ctx context.Context) (context.Context, func(), error) {
	scope, err := p.db.WithoutUser(ctx)
	if err != nil {
		return nil, nil, err
	}
	return SetScope(ctx, scope), scope.Close, nil
}

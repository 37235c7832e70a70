package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Scope wraps a pooled connection bound to one user for row-level security.
// UserID is uuid.Nil for unscoped connections.
type Scope struct {
	Conn   *pgxpool.Conn
	UserID uuid.UUID
}

// Close clears the user binding and returns the connection to the pool.
// It must be called, otherwise the binding leaks to the next borrower.
func (s *Scope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET app.current_user_id")
	s.Conn.Release()
}

// WithUser acquires a connection with app.current_user_id set for RLS.
func (db *DB) WithUser(ctx context.Context, userID uuid.UUID) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(ctx, "SELECT set_config('app.current_user_id', $1, false)", userID.String()); err != nil {
		conn.Release()
		return nil, err
	}

	return &Scope{Conn: conn, UserID: userID}, nil
}

// WithoutUser acquires a connection that sees every row.
// Used for authentication lookups, audit logging and administration.
func (db *DB) WithoutUser(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Conn: conn}, nil
}

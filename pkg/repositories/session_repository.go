package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/database"
	"github.com/ekaya-inc/querygate/pkg/models"
)

// SessionUpdate holds the session fields to change. ClearProject ungroups the session.
type SessionUpdate struct {
	Title        *string
	ProjectID    *uuid.UUID
	ClearProject bool
}

// SessionRepository defines the interface for chat session access.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	// List returns sessions newest first, optionally filtered by a case-insensitive title substring.
	List(ctx context.Context, search string) ([]*models.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Update(ctx context.Context, id uuid.UUID, update SessionUpdate) (*models.Session, error)
	// Delete removes the session and, by cascade, its messages.
	Delete(ctx context.Context, id uuid.UUID) error
}

type sessionRepository struct{}

// NewSessionRepository creates a new session repository.
func NewSessionRepository() SessionRepository {
	return &sessionRepository{}
}

var _ SessionRepository = (*sessionRepository)(nil)

const sessionColumns = `
	s.id, s.user_id, s.db_id, s.title, s.project_id, s.created_at, s.updated_at,
	(SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = s.id)`

func (r *sessionRepository) Create(ctx context.Context, session *models.Session) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now()
	session.UserID = scope.UserID
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO chat_sessions (id, user_id, db_id, title, project_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.UserID, session.DBID, session.Title, session.ProjectID, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("project: %w", apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sessionRepository) List(ctx context.Context, search string) ([]*models.Session, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + sessionColumns + ` FROM chat_sessions s WHERE s.user_id = $1`
	args := []any{scope.UserID}
	if search = strings.TrimSpace(search); search != "" {
		query += ` AND s.title ILIKE $2`
		args = append(args, "%"+escapeLike(search)+"%")
	}
	query += ` ORDER BY s.updated_at DESC, s.created_at DESC`

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *sessionRepository) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	s, err := scanSession(scope.Conn.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions s WHERE s.id = $1 AND s.user_id = $2`, id, scope.UserID))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *sessionRepository) Update(ctx context.Context, id uuid.UUID, update SessionUpdate) (*models.Session, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	sets := []string{"updated_at = now()"}
	args := []any{id, scope.UserID}
	if update.Title != nil {
		args = append(args, *update.Title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	switch {
	case update.ClearProject:
		sets = append(sets, "project_id = NULL")
	case update.ProjectID != nil:
		args = append(args, *update.ProjectID)
		sets = append(sets, fmt.Sprintf("project_id = $%d", len(args)))
	}

	result, err := scope.Conn.Exec(ctx,
		`UPDATE chat_sessions SET `+strings.Join(sets, ", ")+` WHERE id = $1 AND user_id = $2`, args...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("project: %w", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, apperrors.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *sessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1 AND user_id = $2`, id, scope.UserID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.UserID, &s.DBID, &s.Title, &s.ProjectID, &s.CreatedAt, &s.UpdatedAt, &s.MessageCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &s, nil
}

// escapeLike escapes LIKE wildcards so search text matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

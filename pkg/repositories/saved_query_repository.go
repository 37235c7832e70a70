package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/database"
	"github.com/ekaya-inc/querygate/pkg/models"
)

// SavedQueryRepository defines the interface for saved query access.
type SavedQueryRepository interface {
	Create(ctx context.Context, q *models.SavedQuery) error
	List(ctx context.Context) ([]*models.SavedQuery, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type savedQueryRepository struct{}

// NewSavedQueryRepository creates a new saved query repository.
func NewSavedQueryRepository() SavedQueryRepository {
	return &savedQueryRepository{}
}

var _ SavedQueryRepository = (*savedQueryRepository)(nil)

func (r *savedQueryRepository) Create(ctx context.Context, q *models.SavedQuery) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	q.UserID = scope.UserID
	q.CreatedAt = time.Now()

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO saved_queries (id, user_id, db_id, name, natural_language_query, raw_query, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		q.ID, q.UserID, q.DBID, q.Name, q.NaturalLanguageQuery, q.RawQuery, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create saved query: %w", err)
	}
	return nil
}

func (r *savedQueryRepository) List(ctx context.Context) ([]*models.SavedQuery, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, user_id, db_id, name, natural_language_query, raw_query, created_at
		FROM saved_queries
		WHERE user_id = $1
		ORDER BY created_at DESC`, scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved queries: %w", err)
	}
	defer rows.Close()

	queries := make([]*models.SavedQuery, 0)
	for rows.Next() {
		var q models.SavedQuery
		if err := rows.Scan(&q.ID, &q.UserID, &q.DBID, &q.Name, &q.NaturalLanguageQuery, &q.RawQuery, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan saved query: %w", err)
		}
		queries = append(queries, &q)
	}
	return queries, rows.Err()
}

func (r *savedQueryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM saved_queries WHERE id = $1 AND user_id = $2`, id, scope.UserID)
	if err != nil {
		return fmt.Errorf("failed to delete saved query: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

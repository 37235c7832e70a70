package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/querygate/pkg/database"
	"github.com/ekaya-inc/querygate/pkg/models"
)

// QueryAuditRepository defines the interface for query audit log access.
type QueryAuditRepository interface {
	Record(ctx context.Context, entry *models.QueryAuditEntry) error
	// List returns the newest entries first.
	List(ctx context.Context, limit int) ([]*models.QueryAuditEntry, error)
}

type queryAuditRepository struct{}

// NewQueryAuditRepository creates a new query audit repository.
func NewQueryAuditRepository() QueryAuditRepository {
	return &queryAuditRepository{}
}

var _ QueryAuditRepository = (*queryAuditRepository)(nil)

func (r *queryAuditRepository) Record(ctx context.Context, entry *models.QueryAuditEntry) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO query_audit_logs
			(id, username, db_id, natural_query, generated_query, executed, success, error, rows_returned, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.Username, entry.DBID, entry.NaturalQuery, entry.GeneratedQuery,
		entry.Executed, entry.Success, entry.Error, entry.RowsReturned, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

func (r *queryAuditRepository) List(ctx context.Context, limit int) ([]*models.QueryAuditEntry, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, username, db_id, natural_query, generated_query, executed, success, error, rows_returned, created_at
		FROM query_audit_logs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.QueryAuditEntry, 0)
	for rows.Next() {
		var e models.QueryAuditEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.DBID, &e.NaturalQuery, &e.GeneratedQuery,
			&e.Executed, &e.Success, &e.Error, &e.RowsReturned, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

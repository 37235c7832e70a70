package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/database"
	"github.com/ekaya-inc/querygate/pkg/models"
)

// ProjectRepository defines the interface for session folders.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	List(ctx context.Context) ([]*models.Project, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	// Delete removes the project. Its sessions are ungrouped by the foreign key.
	Delete(ctx context.Context, id uuid.UUID) error
}

type projectRepository struct{}

// NewProjectRepository creates a new project repository.
func NewProjectRepository() ProjectRepository {
	return &projectRepository{}
}

var _ ProjectRepository = (*projectRepository)(nil)

func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	project.UserID = scope.UserID
	project.CreatedAt = time.Now()

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO projects (id, user_id, name, created_at)
		VALUES ($1, $2, $3, $4)`,
		project.ID, project.UserID, project.Name, project.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *projectRepository) List(ctx context.Context) ([]*models.Project, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, user_id, name, created_at
		FROM projects
		WHERE user_id = $1
		ORDER BY created_at DESC`, scope.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]*models.Project, 0)
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (r *projectRepository) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	var p models.Project
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, user_id, name, created_at
		FROM projects
		WHERE id = $1 AND user_id = $2`, id, scope.UserID).Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

func (r *projectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM projects WHERE id = $1 AND user_id = $2`, id, scope.UserID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

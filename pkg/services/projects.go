package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/repositories"
)

const maxProjectNameLength = 255

// ProjectService manages the folders sessions are grouped into.
type ProjectService interface {
	Create(ctx context.Context, name string) (*models.Project, error)
	// List returns the caller's projects newest first.
	List(ctx context.Context) ([]*models.Project, error)
	// Delete removes the project and ungroups its sessions; sessions are kept.
	Delete(ctx context.Context, id uuid.UUID) error
}

type projectService struct {
	repo   repositories.ProjectRepository
	logger *zap.Logger
}

// NewProjectService creates a new ProjectService.
func NewProjectService(repo repositories.ProjectRepository, logger *zap.Logger) ProjectService {
	return &projectService{
		repo:   repo,
		logger: logger.Named("projects"),
	}
}

var _ ProjectService = (*projectService)(nil)

func (s *projectService) Create(ctx context.Context, name string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("project name is required: %w", apperrors.ErrInvalidInput)
	}
	if len(name) > maxProjectNameLength {
		return nil, fmt.Errorf("project name exceeds %d characters: %w", maxProjectNameLength, apperrors.ErrInvalidInput)
	}

	project := &models.Project{Name: name}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.Info("Created project", zap.String("id", project.ID.String()))
	return project, nil
}

func (s *projectService) List(ctx context.Context) ([]*models.Project, error) {
	return s.repo.List(ctx)
}

func (s *projectService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Deleted project", zap.String("id", id.String()))
	return nil
}

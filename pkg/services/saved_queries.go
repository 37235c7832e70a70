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

// SavedQueryService manages a user's bookmarked queries.
type SavedQueryService interface {
	Create(ctx context.Context, q *models.SavedQuery) (*models.SavedQuery, error)
	List(ctx context.Context) ([]*models.SavedQuery, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type savedQueryService struct {
	repo    repositories.SavedQueryRepository
	catalog SchemaCatalog
	logger  *zap.Logger
}

// NewSavedQueryService creates a SavedQueryService.
func NewSavedQueryService(repo repositories.SavedQueryRepository, catalog SchemaCatalog, logger *zap.Logger) SavedQueryService {
	return &savedQueryService{
		repo:    repo,
		catalog: catalog,
		logger:  logger.Named("saved-queries"),
	}
}

var _ SavedQueryService = (*savedQueryService)(nil)

func (s *savedQueryService) Create(ctx context.Context, q *models.SavedQuery) (*models.SavedQuery, error) {
	q.Name = strings.TrimSpace(q.Name)
	q.RawQuery = strings.TrimSpace(q.RawQuery)
	if q.Name == "" || q.RawQuery == "" {
		return nil, fmt.Errorf("name and raw_query are required: %w", apperrors.ErrInvalidInput)
	}
	if _, err := s.catalog.Database(q.DBID); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, q); err != nil {
		return nil, err
	}
	s.logger.Debug("Saved query", zap.String("id", q.ID.String()), zap.String("db_id", q.DBID))
	return q, nil
}

func (s *savedQueryService) List(ctx context.Context) ([]*models.SavedQuery, error) {
	return s.repo.List(ctx)
}

func (s *savedQueryService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/logging"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/repositories"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditService records generate and execute requests in the query audit log.
type AuditService interface {
	// Record stores entry with the caller's username. Failures are logged,
	// never returned, so auditing cannot break the request it describes.
	Record(ctx context.Context, entry *models.QueryAuditEntry)

	// List returns the newest entries. limit defaults to 100 and is capped at 1000.
	List(ctx context.Context, limit int) ([]*models.QueryAuditEntry, error)
}

type auditService struct {
	repo   repositories.QueryAuditRepository
	logger *zap.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo repositories.QueryAuditRepository, logger *zap.Logger) AuditService {
	return &auditService{
		repo:   repo,
		logger: logger.Named("audit-service"),
	}
}

var _ AuditService = (*auditService)(nil)

func (s *auditService) Record(ctx context.Context, entry *models.QueryAuditEntry) {
	if entry.Username == "" {
		entry.Username = auth.GetUsername(ctx)
	}
	entry.Error = logging.TruncateString(entry.Error, 2000)

	if err := s.repo.Record(ctx, entry); err != nil {
		s.logger.Error("Failed to record query audit entry",
			zap.String("db_id", entry.DBID),
			zap.String("username", entry.Username),
			zap.Bool("executed", entry.Executed),
			zap.Error(err))
	}
}

func (s *auditService) List(ctx context.Context, limit int) ([]*models.QueryAuditEntry, error) {
	switch {
	case limit <= 0:
		limit = defaultAuditLimit
	case limit > maxAuditLimit:
		limit = maxAuditLimit
	}

	entries, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

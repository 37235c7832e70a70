package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/repositories"
)

const maxTitleLength = 255

// CreateSessionRequest contains fields for starting a session.
type CreateSessionRequest struct {
	DBID      string     `json:"db_id"`
	Title     string     `json:"title,omitempty"`
	ProjectID *uuid.UUID `json:"project_id,omitempty"`
}

// UpdateSessionRequest renames or moves a session. ClearProject ungroups it.
type UpdateSessionRequest struct {
	Title        *string
	ProjectID    *uuid.UUID
	ClearProject bool
}

// SessionService manages chat sessions and their stored messages.
type SessionService interface {
	Create(ctx context.Context, req *CreateSessionRequest) (*models.Session, error)
	List(ctx context.Context, search string) ([]*models.Session, error)
	// Get returns the session with messages in position order and its derived state.
	Get(ctx context.Context, id uuid.UUID) (*models.SessionDetail, error)
	Update(ctx context.Context, id uuid.UUID, req *UpdateSessionRequest) (*models.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// PatchMessage attaches results and/or a chart configuration to a message in place.
	PatchMessage(ctx context.Context, sessionID, messageID uuid.UUID, patch models.MessagePatch) (*models.Message, error)
}

type sessionService struct {
	sessions     repositories.SessionRepository
	messages     repositories.MessageRepository
	projects     repositories.ProjectRepository
	catalog      SchemaCatalog
	locks        TurnLocker
	contextLimit int
	now          func() time.Time
	logger       *zap.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessions repositories.SessionRepository,
	messages repositories.MessageRepository,
	projects repositories.ProjectRepository,
	catalog SchemaCatalog,
	locks TurnLocker,
	contextLimit int,
	logger *zap.Logger,
) SessionService {
	return &sessionService{
		sessions:     sessions,
		messages:     messages,
		projects:     projects,
		catalog:      catalog,
		locks:        locks,
		contextLimit: contextLimit,
		now:          time.Now,
		logger:       logger.Named("sessions"),
	}
}

var _ SessionService = (*sessionService)(nil)

func (s *sessionService) Create(ctx context.Context, req *CreateSessionRequest) (*models.Session, error) {
	if _, err := s.catalog.Database(req.DBID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = DefaultSessionTitle(s.now())
	}
	if len(title) > maxTitleLength {
		return nil, fmt.Errorf("title exceeds %d characters: %w", maxTitleLength, apperrors.ErrInvalidInput)
	}
	if req.ProjectID != nil {
		if err := s.requireProject(ctx, *req.ProjectID); err != nil {
			return nil, err
		}
	}

	session := &models.Session{DBID: req.DBID, Title: title, ProjectID: req.ProjectID}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("Created session",
		zap.String("id", session.ID.String()),
		zap.String("db_id", session.DBID))
	return session, nil
}

func (s *sessionService) List(ctx context.Context, search string) ([]*models.Session, error) {
	return s.sessions.List(ctx, search)
}

func (s *sessionService) Get(ctx context.Context, id uuid.UUID) (*models.SessionDetail, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.ListBySession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	session.MessageCount = len(messages)

	return &models.SessionDetail{
		Session:      *session,
		Messages:     messages,
		State:        s.state(ctx, id, len(messages)),
		ContextLimit: s.contextLimit,
	}, nil
}

func (s *sessionService) state(ctx context.Context, id uuid.UUID, count int) models.SessionState {
	switch {
	case s.locks.Busy(ctx, id):
		return models.SessionAwaitingAssistant
	case count >= s.contextLimit:
		return models.SessionContextExhausted
	default:
		return models.SessionIdle
	}
}

func (s *sessionService) Update(ctx context.Context, id uuid.UUID, req *UpdateSessionRequest) (*models.Session, error) {
	update := repositories.SessionUpdate{ClearProject: req.ClearProject}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("title must not be empty: %w", apperrors.ErrInvalidInput)
		}
		if len(title) > maxTitleLength {
			return nil, fmt.Errorf("title exceeds %d characters: %w", maxTitleLength, apperrors.ErrInvalidInput)
		}
		update.Title = &title
	}
	if req.ProjectID != nil && !req.ClearProject {
		if err := s.requireProject(ctx, *req.ProjectID); err != nil {
			return nil, err
		}
		update.ProjectID = req.ProjectID
	}

	return s.sessions.Update(ctx, id, update)
}

func (s *sessionService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.sessions.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Deleted session", zap.String("id", id.String()))
	return nil
}

func (s *sessionService) PatchMessage(ctx context.Context, sessionID, messageID uuid.UUID, patch models.MessagePatch) (*models.Message, error) {
	if patch.Results != nil && patch.Results.Result == nil {
		return nil, fmt.Errorf("results must hold exactly one shape: %w", apperrors.ErrInvalidInput)
	}
	if patch.ChartConfig != nil {
		if err := patch.ChartConfig.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", err.Error(), apperrors.ErrInvalidInput)
		}
	}

	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.messages.Patch(ctx, sessionID, messageID, patch)
}

// requireProject checks the project exists for the caller.
func (s *sessionService) requireProject(ctx context.Context, id uuid.UUID) error {
	if _, err := s.projects.Get(ctx, id); err != nil {
		if err == apperrors.ErrNotFound {
			return fmt.Errorf("project %s: %w", id, apperrors.ErrNotFound)
		}
		return err
	}
	return nil
}

// DefaultSessionTitle is "Chat YYYY-MM-DD HH:MM" in UTC.
func DefaultSessionTitle(t time.Time) string {
	return "Chat " + t.UTC().Format("2006-01-02 15:04")
}

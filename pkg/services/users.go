package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/database"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/repositories"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 128
	minPasswordLength = 8
)

// SystemScopeProvider opens a database scope outside any user's row policy.
// *database.ScopeProvider implements it.
type SystemScopeProvider interface {
	WithoutUserScope(ctx context.Context) (context.Context, func(), error)
}

// UserService manages accounts. It also resolves token subjects for auth.
type UserService interface {
	// Register creates an account. The first account becomes admin.
	Register(ctx context.Context, username, password string) (*models.User, error)
	// CreateWithRole creates an account with an explicit role, bypassing the
	// first-user rule. Used by the CLI.
	CreateWithRole(ctx context.Context, username, password, role string) (*models.User, error)
	// Authenticate checks credentials. Unknown users, wrong passwords and
	// disabled accounts all return ErrUnauthorized.
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// EnsureBootstrapAdmin creates an admin when no users exist yet.
	EnsureBootstrapAdmin(ctx context.Context, username, password string) error
}

type userService struct {
	repo   repositories.UserRepository
	scopes SystemScopeProvider
	logger *zap.Logger
}

// NewUserService creates a UserService.
func NewUserService(repo repositories.UserRepository, scopes SystemScopeProvider, logger *zap.Logger) UserService {
	return &userService{
		repo:   repo,
		scopes: scopes,
		logger: logger.Named("users"),
	}
}

var (
	_ UserService       = (*userService)(nil)
	_ auth.UserResolver = (*userService)(nil)
)

func (s *userService) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Username: username, PasswordHash: hash}
	err = s.withScope(ctx, func(ctx context.Context) error {
		return s.repo.CreateWithFirstAdmin(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Registered user",
		zap.String("username", user.Username),
		zap.String("role", user.Role))
	return user, nil
}

func (s *userService) CreateWithRole(ctx context.Context, username, password, role string) (*models.User, error) {
	if role != models.RoleAdmin && role != models.RoleViewer {
		return nil, fmt.Errorf("role %q: %w", role, apperrors.ErrInvalidRole)
	}
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Username: username, PasswordHash: hash, Role: role}
	if err := s.withScope(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, user)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("Created user", zap.String("username", user.Username), zap.String("role", role))
	return user, nil
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, err
	}
	if user.Disabled {
		return nil, apperrors.ErrUnauthorized
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.ErrUnauthorized
	}
	return user, nil
}

func (s *userService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user *models.User
	err := s.withScope(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.repo.GetByUsername(ctx, username)
		return err
	})
	return user, err
}

func (s *userService) EnsureBootstrapAdmin(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil
	}
	if err := validateCredentials(username, password); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	return s.withScope(ctx, func(ctx context.Context) error {
		count, err := s.repo.Count(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		if err := s.repo.Create(ctx, &models.User{Username: username, PasswordHash: hash, Role: models.RoleAdmin}); err != nil {
			return err
		}
		s.logger.Info("Created bootstrap admin", zap.String("username", username))
		return nil
	})
}

// withScope reuses a scope already on ctx, otherwise opens a system scope for fn.
func (s *userService) withScope(ctx context.Context, fn func(context.Context) error) error {
	if _, ok := database.GetScope(ctx); ok {
		return fn(ctx)
	}
	scoped, cleanup, err := s.scopes.WithoutUserScope(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database scope: %w", err)
	}
	defer cleanup()
	return fn(scoped)
}

func validateCredentials(username, password string) error {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return fmt.Errorf("username must be %d to %d characters: %w", minUsernameLength, maxUsernameLength, apperrors.ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, apperrors.ErrInvalidInput)
	}
	return nil
}

//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/database"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/testhelpers"
)

func unscopedContext(t *testing.T, engineDB *testhelpers.EngineDB) context.Context {
	t.Helper()
	scope, err := engineDB.DB.WithoutUser(context.Background())
	if err != nil {
		t.Fatalf("failed to open scope: %v", err)
	}
	t.Cleanup(scope.Close)
	return database.SetScope(context.Background(), scope)
}

func TestUserRepository_CreateAndLookup(t *testing.T) {
	engineDB := testhelpers.GetEngineDB(t)
	ctx := unscopedContext(t, engineDB)
	repo := NewUserRepository()

	user := &models.User{Username: "analyst-" + uuid.NewString()[:8], PasswordHash: "hash", Role: models.RoleViewer}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() {
		_, _ = engineDB.DB.Pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, user.ID)
	})

	byName, err := repo.GetByUsername(ctx, user.Username)
	if err != nil {
		t.Fatalf("GetByUsername failed: %v", err)
	}
	if byName.ID != user.ID || byName.Role != models.RoleViewer {
		t.Errorf("unexpected user: %+v", byName)
	}

	dup := &models.User{Username: user.Username, PasswordHash: "hash", Role: models.RoleViewer}
	if err := repo.Create(ctx, dup); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate username, got %v", err)
	}

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

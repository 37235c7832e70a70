package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/apperrors"
)

func TestProjectService_Create(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := NewProjectService(repo, zap.NewNop())

	project, err := svc.Create(context.Background(), "  Finance  ")
	require.NoError(t, err)
	assert.Equal(t, "Finance", project.Name)
	assert.Len(t, repo.projects, 1)
}

func TestProjectService_CreateValidation(t *testing.T) {
	svc := NewProjectService(newFakeProjectRepo(), zap.NewNop())

	for _, name := range []string{"", "   ", strings.Repeat("a", 256)} {
		_, err := svc.Create(context.Background(), name)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}
}

func TestProjectService_Delete(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := NewProjectService(repo, zap.NewNop())

	project, err := svc.Create(context.Background(), "Ops")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), project.ID))
	assert.Empty(t, repo.projects)
	assert.ErrorIs(t, svc.Delete(context.Background(), uuid.New()), apperrors.ErrNotFound)
}

package inmemdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniroute/uniroute/core"
	"github.com/uniroute/uniroute/core/application"
)

func TestApplicationRepository_UpdateApplication_versionConflict(t *testing.T) {
	db, err := Open()
	require.NoError(t, err)
	repo := NewApplicationRepository(db)
	ctx := context.Background()

	app, err := repo.CreateApplication(ctx, application.Application{
		ID:        "a1",
		Status:    application.StatusDraft,
		Documents: make(map[application.DocumentTag]application.Document),
	})
	require.NoError(t, err)

	// first writer wins and bumps the version
	updated, err := repo.UpdateApplication(ctx, app)
	require.NoError(t, err)
	assert.Equal(t, app.Version+1, updated.Version)

	// a second writer still holding the old version gets a conflict
	_, err = repo.UpdateApplication(ctx, app)
	require.ErrorIs(t, err, application.ErrVersionConflict)
	assert.True(t, core.IsConflict(err), "a stale write must surface as a conflict, got %v", err)
}

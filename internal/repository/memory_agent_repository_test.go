package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superpool/dispute-service/internal/domain"
)

func TestMemoryAgentRepositoryClaimAssignment(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAgentRepository()
	require.NoError(t, repo.Upsert(ctx, &domain.Agent{UserID: "a", Email: "a@superpool.test", Available: true}))

	snapshot, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)

	at := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.ClaimAssignment(ctx, *snapshot, at))
	assert.ErrorIs(t, repo.ClaimAssignment(ctx, *snapshot, at), domain.ErrConcurrencyConflict)

	current, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, current.Workload)
	require.NotNil(t, current.LastAssignedAt)
	assert.True(t, current.LastAssignedAt.Equal(at))

	require.NoError(t, repo.ReleaseAssignment(ctx, "a"))
	require.NoError(t, repo.ReleaseAssignment(ctx, "a"))
	current, err = repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, current.Workload)

	assert.ErrorIs(t, repo.ClaimAssignment(ctx, domain.Agent{UserID: "ghost"}, at), domain.ErrNotFound)
}

func TestMemoryAgentRepositoryUpsertKeepsWorkload(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAgentRepository()
	require.NoError(t, repo.Upsert(ctx, &domain.Agent{UserID: "a", Available: true}))
	require.NoError(t, repo.ClaimAssignment(ctx, domain.Agent{UserID: "a"}, time.Now()))

	agent := &domain.Agent{UserID: "a", Name: "Renamed", Available: false}
	require.NoError(t, repo.Upsert(ctx, agent))
	assert.Equal(t, 1, agent.Workload)

	available, err := repo.ListAvailableAgents(ctx)
	require.NoError(t, err)
	assert.Empty(t, available)

	require.NoError(t, repo.SetAvailability(ctx, "a", true))
	available, err = repo.ListAvailableAgents(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "Renamed", available[0].Name)

	assert.ErrorIs(t, repo.SetAvailability(ctx, "ghost", true), domain.ErrNotFound)
}

package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/verification-registry/internal/auth"
	"carbon-scribe/verification-registry/internal/config"
	"carbon-scribe/verification-registry/internal/projects"
	"carbon-scribe/verification-registry/internal/workflow"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Security.JWTSecret = "test-secret-0123456789"
	return cfg
}

func TestNewMemoryBackend(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.IsType(t, &workflow.MemoryStore{}, a.Store)

	owner := auth.Principal{UserID: "owner-1", Role: auth.RoleDeveloper}
	project, err := a.Engine.Register(ctx, owner, projects.RegisterRequest{Name: "Mangrove"})
	require.NoError(t, err)

	overview, err := a.Engine.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, overview.Counts[workflow.QueuePending])
	assert.Equal(t, 1, overview.Total)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "workflow_queue_length")
	assert.NotEmpty(t, project.ID)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Backend = "redis"

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestNewScheduler(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close(ctx)

	scheduler, err := a.NewScheduler()
	require.NoError(t, err)

	report, err := scheduler.RunNow(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Repaired)
}

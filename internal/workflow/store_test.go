package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/verification-registry/internal/projects"
)

func TestMemoryStoreCreatesStateOnce(t *testing.T) {
	store := NewMemoryStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := store.Snapshot(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 0, state.Total())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), store.creations.Load())
}

func TestMemoryStoreCommitsAtomically(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	project := &projects.Project{ID: "P1", Name: "Mangrove", OwnerID: "dev-1", VerificationStatus: projects.StatusPending}

	err := store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.State().Enqueue("P1", QueuePending, EntryFields{}, testNow); err != nil {
			return err
		}
		return tx.Projects().Create(ctx, project)
	})
	require.NoError(t, err)

	state, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.Version)
	assert.Equal(t, 1, state.Len(QueuePending))
	_, err = store.Projects().GetByID(ctx, "P1")
	require.NoError(t, err)
}

func TestMemoryStoreDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	boom := errors.New("boom")

	err := store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.State().Enqueue("P1", QueuePending, EntryFields{}, testNow); err != nil {
			return err
		}
		if err := tx.Projects().Create(ctx, &projects.Project{ID: "P1", OwnerID: "dev-1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	state, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.Version)
	assert.Equal(t, 0, state.Total())
	_, err = store.Projects().GetByID(ctx, "P1")
	assert.ErrorIs(t, err, projects.ErrNotFound)
}

func TestMemoryStoreSnapshotIsPrivate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	snap.Pending = append(snap.Pending, Entry{ProjectID: "ghost"})

	again, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Total())
}

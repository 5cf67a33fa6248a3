package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/faceauth/internal/domain"
)

func TestMemoryIdentityStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdentityStore()
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	alice := testIdentity()
	require.NoError(t, store.Create(ctx, alice, testSamples(t, 3)))
	assert.Equal(t, alice.CreatedAt, alice.UpdatedAt)

	assert.ErrorIs(t, store.Create(ctx, testIdentity(), nil), domain.ErrIdentityExists)

	// Mutating the caller's copy must not leak into the store.
	alice.ProfileVector[0] = 42
	got, err := store.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0.25, got.ProfileVector[0])

	updated := testIdentity()
	updated.DisplayName = "Alice B."
	require.NoError(t, store.Update(ctx, updated, testSamples(t, 4)))
	assert.Equal(t, alice.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	missing := testIdentity()
	missing.ID = "nobody"
	assert.ErrorIs(t, store.Update(ctx, missing, nil), domain.ErrIdentityNotFound)

	_, err = store.GetByID(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)

	bob := testIdentity()
	bob.ID = "bob"
	require.NoError(t, store.Create(ctx, bob, testSamples(t, 3)))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].ID)
	assert.Equal(t, "Alice B.", list[0].DisplayName)

	samples, err := store.ListSamples(ctx)
	require.NoError(t, err)
	assert.Len(t, samples["alice"], 4)
	assert.Len(t, samples["bob"], 3)
}

func TestMemoryIdentityStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewMemoryIdentityStore().Create(ctx, testIdentity(), nil)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

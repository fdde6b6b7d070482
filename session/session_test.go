package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ComputerAnything/cpta-blog-sub000/storage"
	"github.com/ComputerAnything/cpta-blog-sub000/storage/memory"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	s := Session{UserID: 7, Username: "ada", Token: "secret-bearer", ExpiresAt: 1700000000}
	require.NoError(t, Save(ctx, store, s, "origin-1"))

	loaded, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.UserID)
	assert.Equal(t, "ada", loaded.Username)
	assert.Equal(t, int64(1700000000), loaded.ExpiresAt)
	assert.Empty(t, loaded.Token, "bearer token must never round-trip through the shared store")

	origin, err := store.Get(ctx, KeyOrigin)
	require.NoError(t, err)
	assert.Equal(t, "origin-1", origin)
}

func TestLoadAbsent(t *testing.T) {
	_, err := Load(context.Background(), memory.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClearRemovesAllRecords(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, Save(ctx, store, Session{UserID: 1, Username: "a", ExpiresAt: 42}, "o"))
	require.NoError(t, Clear(ctx, store))

	for _, key := range []string{KeyExpiresAt, KeyUser, KeyOrigin} {
		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, storage.ErrNotFound, key)
	}

	// Clearing twice is fine.
	assert.NoError(t, Clear(ctx, store))
}

func TestGuestModeClearsSession(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, Save(ctx, store, Session{UserID: 1, Username: "a", ExpiresAt: 42}, "o"))
	require.NoError(t, SetGuest(ctx, store))

	_, err := Load(ctx, store)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	guest, err := IsGuest(ctx, store)
	require.NoError(t, err)
	assert.True(t, guest)

	// A fresh login clears the guest flag again.
	require.NoError(t, Save(ctx, store, Session{UserID: 1, Username: "a", ExpiresAt: 42}, "o"))
	guest, err = IsGuest(ctx, store)
	require.NoError(t, err)
	assert.False(t, guest)
}

func TestUpdateUsername(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	require.NoError(t, Save(ctx, store, Session{UserID: 3, Username: "old", ExpiresAt: 99}, "o"))
	require.NoError(t, UpdateUsername(ctx, store, 3, "new"))

	loaded, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "new", loaded.Username)
	assert.Equal(t, int64(99), loaded.ExpiresAt, "expiry must be untouched by a rename")
}

func TestRemaining(t *testing.T) {
	now := time.Now()
	s := Session{ExpiresAt: now.Add(90 * time.Second).Unix()}
	assert.InDelta(t, 90, s.Remaining(now).Seconds(), 1.0)

	past := Session{ExpiresAt: now.Add(-time.Minute).Unix()}
	assert.Equal(t, time.Duration(0), past.Remaining(now))
}

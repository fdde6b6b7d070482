package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ComputerAnything/cpta-blog-sub000/storage"
)

func TestStore_PutGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "session:expires_at", "1700000000"))

	v, err := s.Get(ctx, "session:expires_at")
	require.NoError(t, err)
	assert.Equal(t, "1700000000", v)
}

func TestStore_GetMissing(t *testing.T) {
	s := New()

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Overwrite(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", "a"))
	require.NoError(t, s.Put(ctx, "k", "b"))

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestStore_Delete(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", "v"))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Deleting an absent key is not an error.
	assert.NoError(t, s.Delete(ctx, "k"))
}

func TestStore_Keys(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "ratelimit:login", "1"))
	require.NoError(t, s.Put(ctx, "ratelimit:register", "2"))
	require.NoError(t, s.Put(ctx, "session:user", "{}"))

	keys, err := s.Keys(ctx, "ratelimit:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ratelimit:login", "ratelimit:register"}, keys)
}

func TestStore_ContextCancelled(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Put(ctx, "k", "v")
	assert.ErrorIs(t, err, context.Canceled)
}

package identity

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStorage(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	ctx := context.Background()
	alice := NewRedisStorage(client, "browser-a")
	bob := NewRedisStorage(client, "browser-b")

	_, err := alice.Get(ctx, KeyGuestToken)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, alice.Set(ctx, KeyGuestToken, "guest-a"))
	v, err := alice.Get(ctx, KeyGuestToken)
	require.NoError(t, err)
	assert.Equal(t, "guest-a", v)

	_, err = bob.Get(ctx, KeyGuestToken)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, s.Exists("client-storage:browser-a:guest_token"))

	require.NoError(t, alice.Delete(ctx, KeyGuestToken))
	_, err = alice.Get(ctx, KeyGuestToken)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	_, err := s.Get(ctx, KeyReturnPath)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, KeyReturnPath, "/reading/abc"))
	v, err := s.Get(ctx, KeyReturnPath)
	require.NoError(t, err)
	assert.Equal(t, "/reading/abc", v)
}

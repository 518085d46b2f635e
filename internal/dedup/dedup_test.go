package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisGuard(t *testing.T, ttl time.Duration) (*RedisGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisGuard(client, ttl), mr
}

func TestRedisGuardClaimsOnce(t *testing.T) {
	ctx := context.Background()
	guard, _ := newRedisGuard(t, time.Hour)

	ok, err := guard.Claim(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Claim(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, ok)

	seen, err := guard.Seen(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRedisGuardReleaseAllowsRetry(t *testing.T) {
	ctx := context.Background()
	guard, _ := newRedisGuard(t, time.Hour)

	_, err := guard.Claim(ctx, "wamid.2")
	require.NoError(t, err)
	require.NoError(t, guard.Release(ctx, "wamid.2"))

	ok, err := guard.Claim(ctx, "wamid.2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisGuardExpires(t *testing.T) {
	ctx := context.Background()
	guard, mr := newRedisGuard(t, time.Minute)

	_, err := guard.Claim(ctx, "wamid.3")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	seen, err := guard.Seen(ctx, "wamid.3")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryGuard(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	guard := NewMemoryGuard(time.Hour)
	guard.now = func() time.Time { return now }

	ok, _ := guard.Claim(ctx, "wamid.4")
	assert.True(t, ok)
	ok, _ = guard.Claim(ctx, "wamid.4")
	assert.False(t, ok)

	now = now.Add(2 * time.Hour)
	seen, _ := guard.Seen(ctx, "wamid.4")
	assert.False(t, seen)
	ok, _ = guard.Claim(ctx, "wamid.4")
	assert.True(t, ok)
}

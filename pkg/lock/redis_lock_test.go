package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	server := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: server.Addr()})
}

func TestManagerAcquireAndRelease(t *testing.T) {
	client := newTestClient(t)
	manager := NewManager(client)

	held, err := manager.Acquire(context.Background(), "grading:submission:1", time.Minute)
	require.NoError(t, err)

	ok, err := held.IsHeld(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, held.Release(context.Background()))

	ok, err = held.IsHeld(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManagerRejectsSecondHolder(t *testing.T) {
	client := newTestClient(t)
	manager := NewManager(client)

	first, err := manager.Acquire(context.Background(), "grading:submission:7", time.Minute)
	require.NoError(t, err)

	_, err = manager.Acquire(context.Background(), "grading:submission:7", time.Minute)
	require.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, first.Release(context.Background()))

	_, err = manager.Acquire(context.Background(), "grading:submission:7", time.Minute)
	require.NoError(t, err)
}

func TestReleaseRequiresOwnership(t *testing.T) {
	client := newTestClient(t)
	manager := NewManager(client)

	held, err := manager.Acquire(context.Background(), "grading:submission:9", time.Minute)
	require.NoError(t, err)

	// Simulate expiry followed by another holder taking the key.
	require.NoError(t, client.Del(context.Background(), "grading:submission:9").Err())
	_, err = manager.Acquire(context.Background(), "grading:submission:9", time.Minute)
	require.NoError(t, err)

	require.ErrorIs(t, held.Release(context.Background()), ErrNotHeld)
}

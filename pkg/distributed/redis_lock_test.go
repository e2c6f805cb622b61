package distributed

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLockManager(t *testing.T) (*redis.Client, *RedisLockManager) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // test DB
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available:", err)
	}

	client.FlushDB(ctx)

	return client, NewRedisLockManager(client)
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	client, manager := setupLockManager(t)
	defer client.Close()
	ctx := context.Background()

	lock, err := manager.Acquire(ctx, "test:lock", uuid.New().String(), time.Minute)
	require.NoError(t, err)

	// Held lock cannot be taken by another contender.
	_, err = manager.Acquire(ctx, "test:lock", uuid.New().String(), time.Minute)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))

	// Released lock is available again.
	lock2, err := manager.Acquire(ctx, "test:lock", uuid.New().String(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, lock2.Release(ctx))
}

func TestRedisLock_ReleaseOnlyByOwner(t *testing.T) {
	client, manager := setupLockManager(t)
	defer client.Close()
	ctx := context.Background()

	lock, err := manager.Acquire(ctx, "test:lock", "owner-token", time.Minute)
	require.NoError(t, err)

	// Steal the key to simulate expiry plus takeover by another holder.
	require.NoError(t, client.Set(ctx, "test:lock", "other-token", time.Minute).Err())

	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)
}

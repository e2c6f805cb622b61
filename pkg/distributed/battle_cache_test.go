package distributed

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-arena/code-arena-backend/internal/models"
)

func setupBattleCache(t *testing.T) (*redis.Client, *BattleCache) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // test DB
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available:", err)
	}

	client.FlushDB(ctx)

	return client, NewBattleCache(client, time.Minute)
}

func TestBattleCache_RoundTrip(t *testing.T) {
	client, cache := setupBattleCache(t)
	defer client.Close()
	ctx := context.Background()

	battle := &models.Battle{
		ID:          "battle-1",
		HostUserID:  "alice",
		GuestUserID: "bob",
		Status:      models.BattleStatusInProgress,
		Format:      models.FormatBestOf3,
		IsPublic:    true,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, cache.Set(ctx, battle))

	got, err := cache.Get(ctx, "battle-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, battle.HostUserID, got.HostUserID)
	assert.Equal(t, battle.Status, got.Status)
	assert.Equal(t, battle.Format, got.Format)

	require.NoError(t, cache.Invalidate(ctx, "battle-1"))

	got, err = cache.Get(ctx, "battle-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBattleCache_MissReturnsNil(t *testing.T) {
	client, cache := setupBattleCache(t)
	defer client.Close()

	got, err := cache.Get(context.Background(), "no-such-battle")
	require.NoError(t, err)
	assert.Nil(t, got)
}

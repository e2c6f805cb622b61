package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/code-arena/code-arena-backend/internal/models"
)

// BattleCache keeps hot snapshots of active battle rows so reads during a
// live battle skip Postgres. Snapshots are best-effort: a miss always falls
// through to the relational store.
type BattleCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewBattleCache(client *redis.Client, ttl time.Duration) *BattleCache {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &BattleCache{client: client, ttl: ttl}
}

func (c *BattleCache) key(battleID string) string {
	return fmt.Sprintf("battle:snapshot:%s", battleID)
}

func (c *BattleCache) Set(ctx context.Context, battle *models.Battle) error {
	data, err := json.Marshal(battle)
	if err != nil {
		return fmt.Errorf("failed to marshal battle snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key(battle.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache battle snapshot: %w", err)
	}
	return nil
}

func (c *BattleCache) Get(ctx context.Context, battleID string) (*models.Battle, error) {
	data, err := c.client.Get(ctx, c.key(battleID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read battle snapshot: %w", err)
	}

	battle := &models.Battle{}
	if err := json.Unmarshal([]byte(data), battle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal battle snapshot: %w", err)
	}
	return battle, nil
}

func (c *BattleCache) Invalidate(ctx context.Context, battleID string) error {
	return c.client.Del(ctx, c.key(battleID)).Err()
}

package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/code-arena/code-arena-backend/internal/models"
)

var ErrNotQueued = errors.New("user not in queue")

// QueueStore is the shared matchmaking waiting room. Each queued user owns a
// single JSON entry key plus a membership in a sorted set scored by join time,
// which gives queue positions and the staleness scan a cheap ordering.
type QueueStore struct {
	client   *redis.Client
	indexKey string
}

func NewQueueStore(client *redis.Client) *QueueStore {
	return &QueueStore{
		client:   client,
		indexKey: "mmq:index",
	}
}

func (s *QueueStore) entryKey(userID string) string {
	return fmt.Sprintf("mmq:entry:%s", userID)
}

// addScript creates the entry only when the user is not queued yet, keeping
// join idempotent under concurrent calls.
var addScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[1])
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
	return 1
`)

// Add creates the entry. Returns false when the user already holds a live
// entry; nothing is overwritten in that case.
func (s *QueueStore) Add(ctx context.Context, entry *models.QueueEntry) (bool, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	score := float64(entry.JoinedAt.UnixMilli())
	added, err := addScript.Run(ctx, s.client,
		[]string{s.entryKey(entry.UserID), s.indexKey},
		data, score, entry.UserID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to add queue entry: %w", err)
	}
	return added > 0, nil
}

func (s *QueueStore) Get(ctx context.Context, userID string) (*models.QueueEntry, error) {
	data, err := s.client.Get(ctx, s.entryKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	entry := &models.QueueEntry{}
	if err := json.Unmarshal([]byte(data), entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue entry: %w", err)
	}
	return entry, nil
}

// removeScript deletes one entry and its index membership if present.
var removeScript = redis.NewScript(`
	local removed = redis.call('DEL', KEYS[1])
	redis.call('ZREM', KEYS[2], ARGV[1])
	return removed
`)

// Remove deletes the user's entry. Returns false when the user was not
// queued, so leave-queue stays idempotent.
func (s *QueueStore) Remove(ctx context.Context, userID string) (bool, error) {
	removed, err := removeScript.Run(ctx, s.client,
		[]string{s.entryKey(userID), s.indexKey}, userID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to remove queue entry: %w", err)
	}
	return removed > 0, nil
}

// removePairScript removes both entries only when both still exist. This is
// the atomic remove-if-present primitive the matching step relies on: two
// concurrent joins can never both claim the same third party.
var removePairScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 or redis.call('EXISTS', KEYS[2]) == 0 then
		return 0
	end
	redis.call('DEL', KEYS[1], KEYS[2])
	redis.call('ZREM', KEYS[3], ARGV[1], ARGV[2])
	return 1
`)

// RemovePair atomically removes two queued users, or neither.
func (s *QueueStore) RemovePair(ctx context.Context, userA, userB string) (bool, error) {
	removed, err := removePairScript.Run(ctx, s.client,
		[]string{s.entryKey(userA), s.entryKey(userB), s.indexKey},
		userA, userB,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to remove queue pair: %w", err)
	}
	return removed > 0, nil
}

// Entries returns all queued entries ordered by join time ascending. Index
// members whose entry key has already expired or been deleted are skipped.
func (s *QueueStore) Entries(ctx context.Context) ([]*models.QueueEntry, error) {
	userIDs, err := s.client.ZRange(ctx, s.indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue index: %w", err)
	}
	if len(userIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = s.entryKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue entries: %w", err)
	}

	entries := make([]*models.QueueEntry, 0, len(values))
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		entry := &models.QueueEntry{}
		if err := json.Unmarshal([]byte(data), entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Position returns the user's 1-based queue position ordered by join time.
func (s *QueueStore) Position(ctx context.Context, userID string) (int, error) {
	rank, err := s.client.ZRank(ctx, s.indexKey, userID).Result()
	if err == redis.Nil {
		return 0, ErrNotQueued
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get queue position: %w", err)
	}
	return int(rank) + 1, nil
}

func (s *QueueStore) Size(ctx context.Context) (int64, error) {
	return s.client.ZCard(ctx, s.indexKey).Result()
}

// StaleEntries returns entries that joined before the cutoff, for the
// staleness sweep.
func (s *QueueStore) StaleEntries(ctx context.Context, cutoff time.Time) ([]*models.QueueEntry, error) {
	userIDs, err := s.client.ZRangeByScore(ctx, s.indexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan stale entries: %w", err)
	}

	var entries []*models.QueueEntry
	for _, id := range userIDs {
		entry, err := s.Get(ctx, id)
		if err != nil || entry == nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

package distributed

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// RedisLock guards cross-instance critical sections, such as the queue
// staleness sweep, so only one process runs them per interval.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

type RedisLockManager struct {
	client *redis.Client
}

func NewRedisLockManager(client *redis.Client) *RedisLockManager {
	return &RedisLockManager{client: client}
}

// Acquire takes the lock with SET NX; token identifies the holder so only the
// owner can release.
func (m *RedisLockManager) Acquire(ctx context.Context, key, token string, ttl time.Duration) (*RedisLock, error) {
	ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &RedisLock{client: m.client, key: key, token: token, ttl: ttl}, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// Release frees the lock only when this holder still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

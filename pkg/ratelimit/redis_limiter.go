package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript is a token bucket kept in two keys per subject. Refill is
// computed from the elapsed time since the last call, so no background job is
// needed; both keys expire once the subject goes quiet.
var allowScript = redis.NewScript(`
	local tokens_key = KEYS[1] .. ':tokens'
	local stamp_key = KEYS[1] .. ':stamp'
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local tokens = tonumber(redis.call('GET', tokens_key))
	local last = tonumber(redis.call('GET', stamp_key))
	if tokens == nil then
		tokens = limit
		last = now
	end

	local refill = limit / window
	tokens = math.min(limit, tokens + (now - last) * refill)

	local allowed = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	end

	redis.call('SET', tokens_key, tokens, 'EX', window * 2)
	redis.call('SET', stamp_key, now, 'EX', window * 2)
	return {allowed, math.floor(tokens)}
`)

// RedisLimiter is the distributed counterpart of Limiter, shared by every
// server instance through Redis.
type RedisLimiter struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		keyPrefix: "ratelimit:",
	}
}

// Allow reports whether the key may make a request under limit requests per
// window, and how many tokens remain.
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	result, err := allowScript.Run(ctx, r.client,
		[]string{r.keyPrefix + key},
		limit, int(window.Seconds()), time.Now().Unix(),
	).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return false, 0, fmt.Errorf("unexpected rate limit script result: %v", result)
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	return allowed == 1, int(remaining), nil
}

// Reset clears the key's bucket.
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	prefixed := r.keyPrefix + key
	if err := r.client.Del(ctx, prefixed+":tokens", prefixed+":stamp").Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}

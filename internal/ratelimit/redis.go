package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and consumes a bucket in a single atomic step.
// Returns {allowed, remaining_tokens, retry_after_ms}.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (tonumber(nowData[1]) * 1000) + math.floor(tonumber(nowData[2]) / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
end

local allowed = 0
local retry = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  retry = math.ceil(((1 - tokens) / rate) * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, math.floor(tokens), retry}
`

// RedisLimiter keeps token buckets in Redis so limits are shared across instances.
type RedisLimiter struct {
	client    redis.UniversalClient
	script    *redis.Script
	keyPrefix string
}

// NewRedisLimiter creates a limiter storing buckets under keyPrefix.
func NewRedisLimiter(client redis.UniversalClient, keyPrefix string) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		script:    redis.NewScript(tokenBucketScript),
		keyPrefix: keyPrefix,
	}
}

// Allow runs the bucket script for key.
func (r *RedisLimiter) Allow(ctx context.Context, key string, perMinute int) (Decision, error) {
	if key == "" || perMinute <= 0 {
		return Decision{}, ErrInvalidLimit
	}
	if r == nil || r.client == nil {
		return Decision{}, errors.New("rate limiter not configured")
	}

	ratePerSecond := float64(perMinute) / 60
	ttl := bucketTTL(ratePerSecond, perMinute)

	res, err := r.script.Run(
		ctx,
		r.client,
		[]string{fmt.Sprintf("%s%s|%d", r.keyPrefix, key, perMinute)},
		ratePerSecond,
		perMinute,
		ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(res) < 3 {
		return Decision{}, errors.New("invalid rate limit script response")
	}

	return Decision{
		Allowed:    res[0] == 1,
		Limit:      perMinute,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// bucketTTL keeps a bucket around for twice the time it takes to refill from empty.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

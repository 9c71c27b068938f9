package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var ErrInvalidBucket = errors.New("invalid_bucket")

// gcraScript stores the theoretical arrival time (ms) of the next request.
// Replies {allowed, remaining, retry_after_ms}.
const gcraScript = `
local interval = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local tat = now
local stored = redis.call("GET", KEYS[1])
if stored then
  tat = tonumber(stored)
  if tat < now then
    tat = now
  end
end

local next_tat = tat + interval
local horizon = interval * capacity
local ahead = next_tat - now
if ahead > horizon then
  return {0, 0, ahead - horizon}
end

redis.call("SET", KEYS[1], math.floor(next_tat), "PX", math.floor(ahead))
return {1, math.floor((horizon - ahead) / interval), 0}
`

// Bucket holds Capacity tokens and regains one every Refill.
type Bucket struct {
	Capacity int
	Refill   time.Duration
}

func (b Bucket) validate() error {
	if b.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidBucket)
	}
	if b.Refill < time.Millisecond {
		return fmt.Errorf("%w: refill must be at least 1ms", ErrInvalidBucket)
	}
	return nil
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// TokenBucket is a Redis-backed limiter shared by every replica.
type TokenBucket struct {
	client redis.UniversalClient
	script *redis.Script
}

func NewTokenBucket(client redis.UniversalClient) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(gcraScript),
	}
}

// Allow spends one token of bucket b stored under key.
func (t *TokenBucket) Allow(ctx context.Context, key string, b Bucket) (*RateLimitResult, error) {
	denied := &RateLimitResult{Limit: b.Capacity}
	if t == nil || t.client == nil {
		return denied, ErrLockNotConfigured
	}
	if key == "" {
		return denied, ErrInvalidLockKey
	}
	if err := b.validate(); err != nil {
		return denied, err
	}

	reply, err := t.script.Run(ctx, t.client, []string{key}, b.Refill.Milliseconds(), b.Capacity).Int64Slice()
	if err != nil {
		return denied, fmt.Errorf("token bucket %s: %w", key, err)
	}
	if len(reply) != 3 {
		return denied, fmt.Errorf("token bucket %s: unexpected reply length %d", key, len(reply))
	}

	return &RateLimitResult{
		Allowed:    reply[0] == 1,
		Limit:      b.Capacity,
		Remaining:  int(reply[1]),
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockNotConfigured = errors.New("lock_not_configured")
	ErrInvalidLockKey    = errors.New("invalid_lock_key")
	ErrLockHeld          = errors.New("lock_held")
)

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`)

// Lease is proof of holding a lock until it expires or is released.
type Lease struct {
	Key   string
	Token string
}

// Locker hands out exclusive, expiring leases on Redis keys.
type Locker struct {
	client redis.UniversalClient
}

func NewLocker(client redis.UniversalClient) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// Acquire returns ErrLockHeld when another holder owns key.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	switch {
	case l == nil:
		return Lease{}, ErrLockNotConfigured
	case key == "":
		return Lease{}, ErrInvalidLockKey
	case ttl <= 0:
		return Lease{}, fmt.Errorf("lock %s: ttl must be positive", key)
	}

	lease := Lease{Key: key, Token: uuid.NewString()}
	err := l.client.SetArgs(ctx, key, lease.Token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return Lease{}, ErrLockHeld
	}
	if err != nil {
		return Lease{}, fmt.Errorf("lock %s: %w", key, err)
	}
	return lease, nil
}

// Release gives the lease back. It reports false when the lease had already
// expired or been taken over.
func (l *Locker) Release(ctx context.Context, lease Lease) (bool, error) {
	if l == nil || lease.Key == "" || lease.Token == "" {
		return false, nil
	}
	n, err := compareAndDelete.Run(ctx, l.client, []string{lease.Key}, lease.Token).Int()
	if err != nil {
		return false, fmt.Errorf("unlock %s: %w", lease.Key, err)
	}
	return n == 1, nil
}

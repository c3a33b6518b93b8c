package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockUnavailable = errors.New("lock client not configured")
	ErrLockKey         = errors.New("lock key is empty")
	ErrLockTTL         = errors.New("lock ttl must be positive")
)

// compareAndDelete removes the key only while it still holds the caller's
// lease token, so an expired holder never frees a newer lease.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short Redis leases. Vote casting and donor single-flight
// both sit on it.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// TryLock returns the lease token and true when the key was free.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	switch {
	case l == nil || l.client == nil:
		return "", false, ErrLockUnavailable
	case key == "":
		return "", false, ErrLockKey
	case ttl <= 0:
		return "", false, ErrLockTTL
	}

	token := ulid.Make().String()
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// Release is a no-op for an empty token or a lease that already moved on.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return compareAndDelete.Run(ctx, l.client, []string{key}, token).Err()
}

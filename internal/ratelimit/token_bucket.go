package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// takeToken refills by elapsed server time and takes one token. Redis
// truncates Lua numbers to integers, so the balance travels in milli-tokens.
// It returns {allowed, milli_tokens_left, now_ms}.
var takeToken = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now = (clock[1] * 1000) + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])

if tokens == nil then
  tokens = burst
else
  local elapsed = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (elapsed / 1000) * rate)
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, math.floor(tokens * 1000), now}
`)

var errBucketConfig = errors.New("token bucket needs a key, a positive rate and a positive burst")

// TokenBucket is a Redis-side token bucket shared by every API replica.
type TokenBucket struct {
	client *redis.Client
}

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client}
}

// Take spends one token from the bucket at key.
func (t *TokenBucket) Take(ctx context.Context, key string, rate float64, burst int) (Decision, error) {
	if t == nil || t.client == nil {
		return Decision{}, ErrLockUnavailable
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return Decision{}, errBucketConfig
	}

	ttl := bucketTTL(rate, burst)
	res, err := takeToken.Run(ctx, t.client, []string{key}, rate, burst, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("token bucket: unexpected reply %v", res)
	}

	left := float64(res[1]) / 1000
	d := Decision{
		Allowed:   res[0] == 1,
		Limit:     burst,
		Remaining: int(left),
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration((1 - left) / rate * float64(time.Second))
	}
	d.ResetAt = time.UnixMilli(res[2]).Add(d.RetryAfter)
	return d, nil
}

// bucketTTL keeps idle buckets around for twice their full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil(float64(burst) / rate * 2)
	return time.Duration(math.Max(seconds, 1)) * time.Second
}

package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Franc-dev/donate-artist/internal/config"
)

const (
	keyDonationClient   = "donation:ratelimit:%s"
	keyDonationInFlight = "donation:inflight:%s"
)

// DonationLimiter throttles donation submissions per client address.
type DonationLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewDonationLimiter(cfg config.Config, client *redis.Client) *DonationLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil || limitCfg.DonationRate <= 0 || limitCfg.DonationBurst <= 0 {
		return &DonationLimiter{}
	}
	return &DonationLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.DonationRate,
		burst:   limitCfg.DonationBurst,
	}
}

func (l *DonationLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *DonationLimiter) Allow(ctx context.Context, clientKey string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.Take(ctx, fmt.Sprintf(keyDonationClient, strings.TrimSpace(clientKey)), l.rate, l.burst)
}

// DonorLock holds one in-flight donation attempt per donor.
type DonorLock struct {
	locker *Locker
	ttl    time.Duration
	log    *zap.Logger
}

func NewDonorLock(cfg config.Config, client *redis.Client, log *zap.Logger) *DonorLock {
	ttl := cfg.RateLimit.InFlightLockTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DonorLock{locker: NewLocker(client), ttl: ttl, log: log.Named("ratelimit.donor_lock")}
}

// Acquire reports false when another attempt for donorKey is running. The
// returned release func is safe to call more than once.
func (d *DonorLock) Acquire(ctx context.Context, donorKey string) (func(context.Context), bool, error) {
	key := fmt.Sprintf(keyDonationInFlight, strings.ToLower(strings.TrimSpace(donorKey)))
	token, ok, err := d.locker.TryLock(ctx, key, d.ttl)
	if err != nil || !ok {
		return func(context.Context) {}, ok, err
	}
	return func(ctx context.Context) {
		// The key still expires after ttl if this fails.
		if err := d.locker.Release(ctx, key, token); err != nil {
			d.log.Warn("release donor lock failed", zap.String("key", key), zap.Error(err))
		}
	}, true, nil
}

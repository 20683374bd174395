package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Checker is satisfied by both Limiter and DistributedLimiter, so HTTP
// middleware doesn't need to know which backing store a deployment
// chose.
type Checker interface {
	Check(key string, profile Profile) Decision
}

// DistributedLimiter backs the same dual-window algorithm with Redis
// INCR+EXPIRE counters instead of in-process slices, for gateway
// deployments running more than one replica behind a shared cache. It is
// wired optionally per deployment config; single-instance deployments
// use the in-memory Limiter instead.
type DistributedLimiter struct {
	client        *redis.Client
	keyPrefix     string
	generalLimits Limits
	authLimits    Limits
}

// NewDistributed builds a DistributedLimiter against an already-connected
// Redis client.
func NewDistributed(client *redis.Client, keyPrefix string, general, auth Limits) *DistributedLimiter {
	if keyPrefix == "" {
		keyPrefix = "rampart:ratelimit:"
	}
	if general.PerMinute == 0 && general.PerHour == 0 {
		general = DefaultGeneralLimits
	}
	if auth.PerMinute == 0 && auth.PerHour == 0 {
		auth = DefaultAuthLimits
	}
	return &DistributedLimiter{client: client, keyPrefix: keyPrefix, generalLimits: general, authLimits: auth}
}

// Check satisfies Checker by delegating to CheckContext with a
// background context and failing open if Redis itself is unreachable —
// a rate limiter outage should never take the whole gateway down with
// it.
func (d *DistributedLimiter) Check(key string, profile Profile) Decision {
	dec, err := d.CheckContext(context.Background(), key, profile)
	if err != nil {
		slog.Error("distributed rate limit check failed, failing open", "error", err, "key", key, "profile", profile)
		return Decision{Allowed: true}
	}
	return dec
}

// CheckContext mirrors Limiter.Check but coordinates counters across
// every gateway replica sharing the same Redis instance.
func (d *DistributedLimiter) CheckContext(ctx context.Context, key string, profile Profile) (Decision, error) {
	limits := d.generalLimits
	if profile == ProfileAuth {
		limits = d.authLimits
	}

	minuteKey := fmt.Sprintf("%s%s:%s:m:%d", d.keyPrefix, profile, key, time.Now().Unix()/60)
	hourKey := fmt.Sprintf("%s%s:%s:h:%d", d.keyPrefix, profile, key, time.Now().Unix()/3600)

	minuteCount, err := d.incrWithExpiry(ctx, minuteKey, 60*time.Second)
	if err != nil {
		return Decision{}, fmt.Errorf("incrementing minute counter: %w", err)
	}
	if minuteCount > int64(limits.PerMinute) {
		return Decision{Allowed: false, Limit: limits.PerMinute, Remaining: 0, RetryAfterSeconds: 60, Window: "minute"}, nil
	}

	hourCount, err := d.incrWithExpiry(ctx, hourKey, time.Hour)
	if err != nil {
		return Decision{}, fmt.Errorf("incrementing hour counter: %w", err)
	}
	if hourCount > int64(limits.PerHour) {
		return Decision{Allowed: false, Limit: limits.PerHour, Remaining: 0, RetryAfterSeconds: 3600, Window: "hour"}, nil
	}

	return Decision{
		Allowed:   true,
		Limit:     limits.PerMinute,
		Remaining: int(int64(limits.PerMinute) - minuteCount),
	}, nil
}

func (d *DistributedLimiter) incrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := d.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		d.client.Expire(ctx, key, ttl)
	}
	return n, nil
}

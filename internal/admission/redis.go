package admission

import (
	"context"
	"time"

	"coderank/internal/common/cache"
)

const admitKeyPrefix = "execution:admit:"

// RedisGate counts submissions per owner in a fixed window shared by every replica.
type RedisGate struct {
	cache   cache.Cache
	policy  Policy
	timeout time.Duration
}

// NewRedisGate creates a Redis backed gate. timeout bounds each Redis round trip.
func NewRedisGate(cacheClient cache.Cache, policy Policy, timeout time.Duration) *RedisGate {
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return &RedisGate{cache: cacheClient, policy: policy.withDefaults(), timeout: timeout}
}

func (g *RedisGate) TryAdmit(ctx context.Context, ownerID string, role Role) (bool, error) {
	limit := g.policy.Limit(role)
	if limit <= 0 {
		return false, nil
	}

	ctxCache, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	key := admitKeyPrefix + ownerID
	acquired, err := g.cache.SetNX(ctxCache, key, 1, g.policy.Window)
	if err != nil {
		return false, err
	}
	if acquired {
		return true, nil
	}

	count, err := g.cache.Incr(ctxCache, key)
	if err != nil {
		return false, err
	}
	// A key that lost its ttl would never reset the window.
	if ttl, ttlErr := g.cache.TTL(ctxCache, key); ttlErr == nil && ttl < 0 {
		_ = g.cache.Expire(ctxCache, key, g.policy.Window)
	}
	return count <= int64(limit), nil
}

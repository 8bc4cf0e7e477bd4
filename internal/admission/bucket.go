package admission

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type ownerLimiter struct {
	limiter  *rate.Limiter
	role     Role
	lastSeen atomic.Int64
}

// BucketGate keeps one token bucket per owner in process memory. Each bucket
// refills at limit/window and holds at most limit tokens.
type BucketGate struct {
	policy   Policy
	limiters sync.Map
	now      func() time.Time
}

// NewBucketGate creates an in-process gate.
func NewBucketGate(policy Policy) *BucketGate {
	return &BucketGate{policy: policy.withDefaults(), now: time.Now}
}

func (g *BucketGate) TryAdmit(_ context.Context, ownerID string, role Role) (bool, error) {
	limit := g.policy.Limit(role)
	if limit <= 0 {
		return false, nil
	}
	l := g.limiterFor(ownerID, role, limit)
	now := g.now()
	l.lastSeen.Store(now.UnixNano())
	return l.limiter.AllowN(now, 1), nil
}

func (g *BucketGate) limiterFor(ownerID string, role Role, limit int) *ownerLimiter {
	if v, ok := g.limiters.Load(ownerID); ok {
		l := v.(*ownerLimiter)
		if l.role == role {
			return l
		}
	}
	every := rate.Every(g.policy.Window / time.Duration(limit))
	l := &ownerLimiter{limiter: rate.NewLimiter(every, limit), role: role}
	actual, loaded := g.limiters.LoadOrStore(ownerID, l)
	if loaded {
		existing := actual.(*ownerLimiter)
		if existing.role == role {
			return existing
		}
		// Role changed since the bucket was made.
		g.limiters.Store(ownerID, l)
	}
	return l
}

// Sweep drops buckets idle for longer than idle and returns how many were removed.
func (g *BucketGate) Sweep(idle time.Duration) int {
	cutoff := g.now().Add(-idle).UnixNano()
	removed := 0
	g.limiters.Range(func(key, value any) bool {
		if value.(*ownerLimiter).lastSeen.Load() < cutoff {
			g.limiters.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// StartCleanup sweeps idle buckets every interval until ctx is done.
func (g *BucketGate) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = g.policy.Window
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.Sweep(interval)
			}
		}
	}()
}

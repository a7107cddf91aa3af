package memory

import (
	"context"
	"math"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

type bucketsRepo struct {
	mu      sync.Mutex
	buckets map[string]expiring[bucket]
}

func (r *bucketsRepo) TryConsume(ctx context.Context, key string, capacity int, ratePerSecond float64, now time.Time, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.buckets[key]
	if !ok || !e.live(now) {
		e = expiring[bucket]{value: bucket{tokens: float64(capacity), lastRefill: now}}
	}

	b := &e.value
	if elapsed := now.Sub(b.lastRefill).Seconds(); elapsed > 0 {
		b.tokens = math.Min(float64(capacity), b.tokens+elapsed*ratePerSecond)
		b.lastRefill = now
	}

	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}
	e.deadline = deadline(now, ttl)
	r.buckets[key] = e
	return allowed, nil
}

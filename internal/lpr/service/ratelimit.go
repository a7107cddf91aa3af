package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/pkg/clock"
)

// RateLimiter applies a receipt's token bucket policy through the shared
// bucket store.
type RateLimiter struct {
	Buckets store.Buckets
	Clock   clock.Clock
}

// Allow consumes one token from the bucket for key.
func (r *RateLimiter) Allow(ctx context.Context, key string, p domain.Policy) (bool, error) {
	now := clock.Real().Now()
	if r.Clock != nil {
		now = r.Clock.Now()
	}
	return r.Buckets.TryConsume(ctx, key, p.Burst, p.RatePerSecond, now, bucketTTL(p))
}

// bucketTTL is how long an idle bucket takes to refill completely. After
// that a fresh bucket is indistinguishable from the stored one, so the
// state may expire.
func bucketTTL(p domain.Policy) time.Duration {
	refill := time.Duration(float64(p.Burst) / p.RatePerSecond * float64(time.Second))
	return refill + time.Minute
}

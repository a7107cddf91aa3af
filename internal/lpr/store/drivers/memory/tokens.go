package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/pkg/clock"
)

type (
	tokenMetadata = domain.TokenMetadata
	usage         = domain.Usage
)

type tokensRepo struct {
	clock clock.Clock

	mu       sync.RWMutex
	metadata map[string]expiring[tokenMetadata]
	usage    map[string]expiring[usage]
}

func (r *tokensRepo) PutMetadata(ctx context.Context, md domain.TokenMetadata, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	md.Origins = append([]string(nil), md.Origins...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[md.JTI] = expiring[tokenMetadata]{value: md, deadline: deadline(r.clock.Now(), ttl)}
	return nil
}

func (r *tokensRepo) GetMetadata(ctx context.Context, jti string) (domain.TokenMetadata, error) {
	if err := ctx.Err(); err != nil {
		return domain.TokenMetadata{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.metadata[jti]
	if !ok || !e.live(r.clock.Now()) {
		return domain.TokenMetadata{}, store.ErrNotFound
	}
	md := e.value
	md.Origins = append([]string(nil), md.Origins...)
	return md, nil
}

func (r *tokensRepo) RecordUsage(ctx context.Context, jti string, at time.Time, method, url string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	e := r.usage[jti]
	if !e.live(now) {
		e = expiring[usage]{}
	}
	e.value.Count++
	e.value.LastUsedAt = at
	e.value.LastRequestMethod = method
	e.value.LastRequestURL = url
	e.deadline = deadline(now, ttl)
	r.usage[jti] = e
	return nil
}

func (r *tokensRepo) GetUsage(ctx context.Context, jti string) (domain.Usage, error) {
	if err := ctx.Err(); err != nil {
		return domain.Usage{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.usage[jti]
	if !ok || !e.live(r.clock.Now()) {
		return domain.Usage{}, nil
	}
	return e.value, nil
}

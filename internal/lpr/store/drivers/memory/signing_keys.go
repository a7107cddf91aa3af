package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
)

type signingKey = domain.SigningKey

type signingKeysRepo struct {
	mu   sync.RWMutex
	keys map[string]signingKey
}

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, key domain.SigningKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[key.Kid]; ok {
		return store.ErrAlreadyExists
	}
	r.keys[key.Kid] = key
	return nil
}

func (r *signingKeysRepo) GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error) {
	if err := ctx.Err(); err != nil {
		return domain.SigningKey{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[kid]
	if !ok {
		return domain.SigningKey{}, store.ErrNotFound
	}
	return key, nil
}

func (r *signingKeysRepo) ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SigningKey, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b domain.SigningKey) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r *signingKeysRepo) RetireSigningKey(ctx context.Context, kid string, retiredAt, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[kid]
	if !ok {
		return store.ErrNotFound
	}
	if key.RetiredAt != nil {
		return nil
	}
	key.RetiredAt = &retiredAt
	key.ExpiresAt = &expiresAt
	r.keys[kid] = key
	return nil
}

func (r *signingKeysRepo) DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for kid, key := range r.keys {
		if key.IsExpired(now) {
			delete(r.keys, kid)
			n++
		}
	}
	return n, nil
}

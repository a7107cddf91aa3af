package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/pkg/clock"
)

type revocation = domain.RevocationEntry

var errClosed = errors.New("memory: store closed")

// subscriberBuffer bounds how far a slow subscriber may fall behind before
// messages to it are dropped. Dropped messages are still caught by the
// store lookup in the verification path.
const subscriberBuffer = 64

type revocationsRepo struct {
	clock clock.Clock

	mu      sync.RWMutex
	entries map[string]expiring[revocation]
	subs    map[chan revocation]struct{}
	closed  bool
}

func (r *revocationsRepo) RevokeIfAbsent(ctx context.Context, entry domain.RevocationEntry, ttl time.Duration) (domain.RevocationEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.RevocationEntry{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	if existing, ok := r.entries[entry.JTI]; ok && existing.live(now) {
		return existing.value, false, nil
	}
	r.entries[entry.JTI] = expiring[revocation]{value: entry, deadline: deadline(now, ttl)}
	return entry, true, nil
}

func (r *revocationsRepo) GetRevocation(ctx context.Context, jti string) (domain.RevocationEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.RevocationEntry{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[jti]
	if !ok || !e.live(r.clock.Now()) {
		return domain.RevocationEntry{}, store.ErrNotFound
	}
	return e.value, nil
}

func (r *revocationsRepo) Publish(ctx context.Context, entry domain.RevocationEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for ch := range r.subs {
		select {
		case ch <- entry:
		default:
		}
	}
	return nil
}

func (r *revocationsRepo) Subscribe(ctx context.Context) (<-chan domain.RevocationEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errClosed
	}

	ch := make(chan revocation, subscriberBuffer)
	r.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
	}()
	return ch, nil
}

func (r *revocationsRepo) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for ch := range r.subs {
		delete(r.subs, ch)
		close(ch)
	}
}

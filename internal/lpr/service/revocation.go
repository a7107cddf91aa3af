package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/pkg/clock"
)

// resubscribeDelay is how long Run waits before re-subscribing after the
// revocation stream breaks.
const resubscribeDelay = time.Second

// RevocationService writes revocations and keeps a local negative cache of
// revoked jtis fed by the shared pub/sub channel, so a revocation made on
// one node is rejected on every node without a store round trip.
type RevocationService struct {
	store     store.Revocations
	clock     clock.Clock
	logger    *slog.Logger
	retention time.Duration

	mu    sync.RWMutex
	cache map[string]time.Time // jti -> when the entry may be dropped
}

// NewRevocationService creates the service. Revocation records are kept for
// retention, which must outlive every receipt.
func NewRevocationService(revocations store.Revocations, c clock.Clock, retention time.Duration, logger *slog.Logger) *RevocationService {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RevocationService{
		store:     revocations,
		clock:     c,
		logger:    logger,
		retention: retention,
		cache:     make(map[string]time.Time),
	}
}

// Revoke persists entry unless the jti is already revoked, then broadcasts
// it. The returned entry is the one stored first; created is false for a
// repeated revocation.
func (s *RevocationService) Revoke(ctx context.Context, entry domain.RevocationEntry) (domain.RevocationEntry, bool, error) {
	stored, created, err := s.store.RevokeIfAbsent(ctx, entry, s.retention)
	if err != nil {
		return domain.RevocationEntry{}, false, err
	}
	s.remember(stored)

	if err := s.store.Publish(ctx, stored); err != nil {
		// The record is durable; other nodes still find it on lookup.
		s.logger.Warn("revocation broadcast failed", "jti", stored.JTI, "error", err)
	}
	return stored, created, nil
}

// IsRevoked consults the local cache, then the store.
func (s *RevocationService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if s.cached(jti) {
		return true, nil
	}

	entry, err := s.store.GetRevocation(ctx, jti)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.remember(entry)
	return true, nil
}

// Get returns the stored revocation for jti.
func (s *RevocationService) Get(ctx context.Context, jti string) (domain.RevocationEntry, error) {
	return s.store.GetRevocation(ctx, jti)
}

func (s *RevocationService) cached(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cache[jti]
	return ok
}

// remember caches a revocation until the receipt it names has expired;
// after that the expiry check rejects it first.
func (s *RevocationService) remember(e domain.RevocationEntry) {
	until := e.OriginalExpiresAt
	if until.IsZero() {
		until = s.clock.Now().Add(s.retention)
	}

	s.mu.Lock()
	s.cache[e.JTI] = until
	s.mu.Unlock()
}

// Cleanup drops cache entries for receipts that expired before now.
func (s *RevocationService) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for jti, until := range s.cache {
		if now.After(until) {
			delete(s.cache, jti)
			n++
		}
	}
	return n
}

// CacheSize reports the number of cached revocations.
func (s *RevocationService) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Run consumes the revocation stream until ctx is cancelled, re-subscribing
// whenever the stream breaks.
func (s *RevocationService) Run(ctx context.Context) {
	for ctx.Err() == nil {
		ch, err := s.store.Subscribe(ctx)
		if err != nil {
			s.logger.Error("revocation subscribe failed", "error", err)
		} else {
			s.logger.Debug("revocation stream subscribed")
			for entry := range ch {
				s.remember(entry)
			}
		}

		select {
		case <-ctx.Done():
		case <-s.clock.After(resubscribeDelay):
		}
	}
}

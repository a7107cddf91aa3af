// Package memory is a single-process driver for every store interface. It
// backs tests and single-node deployments; revocations published here are
// only seen by subscribers in the same process.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/pkg/clock"
)

type Store struct {
	clock clock.Clock

	tokens      *tokensRepo
	revocations *revocationsRepo
	buckets     *bucketsRepo
	audit       *auditRepo
	keys        *signingKeysRepo

	closeOnce sync.Once
}

var (
	_ store.State      = (*Store)(nil)
	_ store.AuditStore = (*Store)(nil)
	_ store.KeyStore   = (*Store)(nil)
)

// NewStore creates an empty store. TTLs are measured against c; nil uses
// the wall clock.
func NewStore(c clock.Clock) *Store {
	if c == nil {
		c = clock.Real()
	}
	return &Store{
		clock:       c,
		tokens:      &tokensRepo{clock: c, metadata: map[string]expiring[tokenMetadata]{}, usage: map[string]expiring[usage]{}},
		revocations: &revocationsRepo{clock: c, entries: map[string]expiring[revocation]{}, subs: map[chan revocation]struct{}{}},
		buckets:     &bucketsRepo{buckets: map[string]expiring[bucket]{}},
		audit:       &auditRepo{},
		keys:        &signingKeysRepo{keys: map[string]signingKey{}},
	}
}

func (s *Store) Tokens() store.Tokens           { return s.tokens }
func (s *Store) Revocations() store.Revocations { return s.revocations }
func (s *Store) Buckets() store.Buckets         { return s.buckets }
func (s *Store) Audit() store.AuditLog          { return s.audit }
func (s *Store) SigningKeys() store.SigningKeys { return s.keys }

// Close stops all revocation subscriptions.
func (s *Store) Close() error {
	s.closeOnce.Do(s.revocations.closeAll)
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// expiring wraps a value with its deadline. A zero deadline never expires.
type expiring[T any] struct {
	value    T
	deadline time.Time
}

func (e expiring[T]) live(now time.Time) bool {
	return e.deadline.IsZero() || now.Before(e.deadline)
}

func deadline(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

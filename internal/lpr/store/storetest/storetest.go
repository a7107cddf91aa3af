// Package storetest holds behavioural tests shared by every store driver.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
)

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// RunState exercises the Tokens, Revocations and Buckets repositories.
// newState must return an empty store.
func RunState(t *testing.T, newState func(t *testing.T) store.State) {
	t.Run("metadata", func(t *testing.T) {
		s := newState(t)
		ctx := context.Background()

		_, err := s.Tokens().GetMetadata(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)

		md := domain.TokenMetadata{
			JTI:              "jti-1",
			SubjectPseudonym: "sub",
			ScopeCount:       2,
			Origins:          []string{"https://a.example.com"},
			IssuedAt:         base,
			ExpiresAt:        base.Add(time.Hour),
			CorrelationID:    "cid-1",
			KeyID:            "kid-1",
		}
		require.NoError(t, s.Tokens().PutMetadata(ctx, md, time.Hour))

		got, err := s.Tokens().GetMetadata(ctx, "jti-1")
		require.NoError(t, err)
		require.Equal(t, md.SubjectPseudonym, got.SubjectPseudonym)
		require.Equal(t, md.Origins, got.Origins)
		require.True(t, md.ExpiresAt.Equal(got.ExpiresAt))
		require.Equal(t, md.KeyID, got.KeyID)
	})

	t.Run("usage", func(t *testing.T) {
		s := newState(t)
		ctx := context.Background()

		u, err := s.Tokens().GetUsage(ctx, "jti-1")
		require.NoError(t, err)
		require.Zero(t, u.Count)

		require.NoError(t, s.Tokens().RecordUsage(ctx, "jti-1", base, "GET", "/a", time.Hour))
		require.NoError(t, s.Tokens().RecordUsage(ctx, "jti-1", base.Add(time.Second), "POST", "/b", time.Hour))

		u, err = s.Tokens().GetUsage(ctx, "jti-1")
		require.NoError(t, err)
		require.EqualValues(t, 2, u.Count)
		require.Equal(t, "POST", u.LastRequestMethod)
		require.Equal(t, "/b", u.LastRequestURL)
		require.True(t, base.Add(time.Second).Equal(u.LastUsedAt))
	})

	t.Run("revoke is write once", func(t *testing.T) {
		s := newState(t)
		ctx := context.Background()

		_, err := s.Revocations().GetRevocation(ctx, "jti-1")
		require.ErrorIs(t, err, store.ErrNotFound)

		first := domain.RevocationEntry{JTI: "jti-1", RevokedAt: base, Reason: "first", RevokedBy: "alice"}
		got, created, err := s.Revocations().RevokeIfAbsent(ctx, first, time.Hour)
		require.NoError(t, err)
		require.True(t, created)
		require.Equal(t, "first", got.Reason)

		second := domain.RevocationEntry{JTI: "jti-1", RevokedAt: base.Add(time.Minute), Reason: "second", RevokedBy: "bob"}
		got, created, err = s.Revocations().RevokeIfAbsent(ctx, second, time.Hour)
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, "first", got.Reason)
		require.True(t, base.Equal(got.RevokedAt))

		stored, err := s.Revocations().GetRevocation(ctx, "jti-1")
		require.NoError(t, err)
		require.Equal(t, "alice", stored.RevokedBy)
	})

	t.Run("concurrent revoke creates one record", func(t *testing.T) {
		s := newState(t)
		ctx := context.Background()

		var created atomic.Int32
		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e := domain.RevocationEntry{JTI: "jti-race", RevokedAt: base, Reason: fmt.Sprint(i)}
				_, ok, err := s.Revocations().RevokeIfAbsent(ctx, e, time.Hour)
				if err == nil && ok {
					created.Add(1)
				}
			}()
		}
		wg.Wait()
		require.EqualValues(t, 1, created.Load())
	})

	t.Run("publish reaches subscribers", func(t *testing.T) {
		s := newState(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch, err := s.Revocations().Subscribe(ctx)
		require.NoError(t, err)

		entry := domain.RevocationEntry{JTI: "jti-pub", RevokedAt: base, OriginalExpiresAt: base.Add(time.Hour)}
		require.Eventually(t, func() bool {
			if err := s.Revocations().Publish(ctx, entry); err != nil {
				return false
			}
			select {
			case got := <-ch:
				return got.JTI == "jti-pub" && got.OriginalExpiresAt.Equal(entry.OriginalExpiresAt)
			case <-time.After(50 * time.Millisecond):
				return false
			}
		}, 5*time.Second, 10*time.Millisecond)

		cancel()
		require.Eventually(t, func() bool {
			select {
			case _, ok := <-ch:
				return !ok
			default:
				return false
			}
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("token bucket", func(t *testing.T) {
		s := newState(t)
		ctx := context.Background()
		b := s.Buckets()

		try := func(at time.Time) bool {
			ok, err := b.TryConsume(ctx, "bucket", 2, 2, at, time.Hour)
			require.NoError(t, err)
			return ok
		}

		require.True(t, try(base))
		require.True(t, try(base))
		require.False(t, try(base))
		require.True(t, try(base.Add(time.Second)))

		ok, err := b.TryConsume(ctx, "other", 2, 2, base, time.Hour)
		require.NoError(t, err)
		require.True(t, ok, "buckets are independent per key")
	})

	t.Run("token bucket is atomic", func(t *testing.T) {
		s := newState(t)
		ctx := context.Background()

		var allowed atomic.Int32
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.Buckets().TryConsume(ctx, "hot", 5, 0.001, base, time.Hour)
				if err == nil && ok {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		require.EqualValues(t, 5, allowed.Load())
	})
}

// RunAudit exercises the AuditLog repository.
func RunAudit(t *testing.T, newAudit func(t *testing.T) store.AuditLog) {
	entry := func(seq uint64, prev, hash, jti, cid string) domain.AuditEntry {
		return domain.AuditEntry{
			Sequence:      seq,
			When:          base.Add(time.Duration(seq) * time.Second),
			Who:           "sub",
			What:          "verify",
			EventType:     domain.EventVerified,
			Severity:      domain.SeverityInfo,
			Result:        domain.ResultSuccess,
			CorrelationID: cid,
			JTI:           jti,
			Details:       map[string]string{"n": fmt.Sprint(seq)},
			PreviousHash:  prev,
			EntryHash:     hash,
		}
	}

	t.Run("append requires current head", func(t *testing.T) {
		a := newAudit(t)
		ctx := context.Background()

		head, err := a.Head(ctx)
		require.NoError(t, err)
		require.Equal(t, store.AuditHead{}, head)

		require.NoError(t, a.AppendIfHead(ctx, head, entry(1, "genesis", "h1", "j1", "c1")))

		err = a.AppendIfHead(ctx, head, entry(1, "genesis", "h1x", "j1", "c1"))
		require.ErrorIs(t, err, store.ErrConflict)

		err = a.AppendIfHead(ctx, store.AuditHead{Sequence: 1, Hash: "h1"}, entry(3, "h1", "h3", "j1", "c1"))
		require.ErrorIs(t, err, store.ErrConflict, "sequence numbers must not skip")

		err = a.AppendIfHead(ctx, store.AuditHead{Sequence: 1, Hash: "wrong"}, entry(2, "wrong", "h2", "j1", "c1"))
		require.ErrorIs(t, err, store.ErrConflict)

		require.NoError(t, a.AppendIfHead(ctx, store.AuditHead{Sequence: 1, Hash: "h1"}, entry(2, "h1", "h2", "j2", "c1")))

		head, err = a.Head(ctx)
		require.NoError(t, err)
		require.Equal(t, store.AuditHead{Sequence: 2, Hash: "h2"}, head)
	})

	t.Run("range and listings", func(t *testing.T) {
		a := newAudit(t)
		ctx := context.Background()

		prev := store.AuditHead{}
		for i := uint64(1); i <= 6; i++ {
			jti := "even"
			if i%2 == 1 {
				jti = "odd"
			}
			prevHash := prev.Hash
			if prevHash == "" {
				prevHash = "genesis"
			}
			e := entry(i, prevHash, fmt.Sprintf("h%d", i), jti, "cid")
			require.NoError(t, a.AppendIfHead(ctx, prev, e))
			prev = store.AuditHead{Sequence: i, Hash: e.EntryHash}
		}

		all, err := a.Range(ctx, 2, 4)
		require.NoError(t, err)
		require.Len(t, all, 3)
		require.EqualValues(t, 2, all[0].Sequence)
		require.EqualValues(t, 4, all[2].Sequence)
		require.Equal(t, "h1", all[0].PreviousHash)
		require.Equal(t, map[string]string{"n": "2"}, all[0].Details)
		require.True(t, all[0].When.Equal(base.Add(2*time.Second)))

		beyond, err := a.Range(ctx, 5, 100)
		require.NoError(t, err)
		require.Len(t, beyond, 2)

		odd, err := a.ListByJTI(ctx, "odd", 0, 2)
		require.NoError(t, err)
		require.Len(t, odd, 2)
		require.EqualValues(t, 1, odd[0].Sequence)
		require.EqualValues(t, 3, odd[1].Sequence)

		rest, err := a.ListByJTI(ctx, "odd", odd[1].Sequence, 2)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		require.EqualValues(t, 5, rest[0].Sequence)

		byCID, err := a.ListByCorrelation(ctx, "cid", 4, 10)
		require.NoError(t, err)
		require.Len(t, byCID, 2)

		none, err := a.ListByCorrelation(ctx, "nope", 0, 10)
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("concurrent appends stay gap free", func(t *testing.T) {
		a := newAudit(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for w := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 5; i++ {
					for {
						head, err := a.Head(ctx)
						if err != nil {
							return
						}
						e := entry(head.Sequence+1, head.Hash, fmt.Sprintf("w%d-%d", w, i), "j", "c")
						err = a.AppendIfHead(ctx, head, e)
						if errors.Is(err, store.ErrConflict) {
							continue
						}
						break
					}
				}
			}()
		}
		wg.Wait()

		entries, err := a.Range(ctx, 1, 1000)
		require.NoError(t, err)
		require.Len(t, entries, 40)
		for i, e := range entries {
			require.EqualValues(t, i+1, e.Sequence)
			if i > 0 {
				require.Equal(t, entries[i-1].EntryHash, e.PreviousHash)
			}
		}
	})
}

// RunSigningKeys exercises the SigningKeys repository.
func RunSigningKeys(t *testing.T, newKeys func(t *testing.T) store.SigningKeys) {
	key := func(kid string, created time.Time) domain.SigningKey {
		return domain.SigningKey{
			ID:                  "id-" + kid,
			Kid:                 kid,
			Algorithm:           "EdDSA",
			PrivateKeyEncrypted: []byte("sealed-" + kid),
			CreatedAt:           created,
		}
	}

	t.Run("lifecycle", func(t *testing.T) {
		k := newKeys(t)
		ctx := context.Background()

		require.NoError(t, k.CreateSigningKey(ctx, key("old", base)))
		require.NoError(t, k.CreateSigningKey(ctx, key("new", base.Add(time.Hour))))
		require.ErrorIs(t, k.CreateSigningKey(ctx, key("old", base)), store.ErrAlreadyExists)

		list, err := k.ListSigningKeys(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, "new", list[0].Kid)
		require.Equal(t, []byte("sealed-new"), list[0].PrivateKeyEncrypted)

		_, err = k.GetSigningKeyByKid(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)

		retired := base.Add(2 * time.Hour)
		expires := retired.Add(24 * time.Hour)
		require.NoError(t, k.RetireSigningKey(ctx, "old", retired, expires))
		require.ErrorIs(t, k.RetireSigningKey(ctx, "missing", retired, expires), store.ErrNotFound)

		old, err := k.GetSigningKeyByKid(ctx, "old")
		require.NoError(t, err)
		require.False(t, old.IsActive())
		require.NotNil(t, old.ExpiresAt)
		require.True(t, expires.Equal(*old.ExpiresAt))

		n, err := k.DeleteExpiredSigningKeys(ctx, expires.Add(-time.Second))
		require.NoError(t, err)
		require.Zero(t, n)

		n, err = k.DeleteExpiredSigningKeys(ctx, expires)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		list, err = k.ListSigningKeys(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.True(t, list[0].IsActive())
	})
}

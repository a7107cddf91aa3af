package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store/drivers/memory"
	"github.com/aussiebroadwan/lpr/pkg/clock"
	"github.com/stretchr/testify/require"
)

func TestRevocationService_SharedAcrossNodes(t *testing.T) {
	t.Parallel()
	fc := clock.Fake(testStart)
	st := memory.NewStore(fc)
	t.Cleanup(func() { _ = st.Close() })

	nodeA := NewRevocationService(st.Revocations(), fc, time.Hour, nil)
	nodeB := NewRevocationService(st.Revocations(), fc, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go nodeB.Run(ctx)

	entry := domain.RevocationEntry{JTI: "jti-1", RevokedAt: testStart, OriginalExpiresAt: testStart.Add(10 * time.Minute)}

	// Wait for the subscription before publishing.
	require.Eventually(t, func() bool {
		if _, _, err := nodeA.Revoke(context.Background(), entry); err != nil {
			return false
		}
		return nodeB.CacheSize() == 1
	}, 2*time.Second, 10*time.Millisecond)

	revoked, err := nodeB.IsRevoked(context.Background(), "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = nodeB.IsRevoked(context.Background(), "jti-2")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRevocationService_CacheCleanup(t *testing.T) {
	t.Parallel()
	fc := clock.Fake(testStart)
	st := memory.NewStore(fc)
	s := NewRevocationService(st.Revocations(), fc, time.Hour, nil)
	ctx := context.Background()

	_, created, err := s.Revoke(ctx, domain.RevocationEntry{JTI: "short", OriginalExpiresAt: testStart.Add(time.Minute)})
	require.NoError(t, err)
	require.True(t, created)
	_, _, err = s.Revoke(ctx, domain.RevocationEntry{JTI: "long", OriginalExpiresAt: testStart.Add(30 * time.Minute)})
	require.NoError(t, err)
	_, _, err = s.Revoke(ctx, domain.RevocationEntry{JTI: "unknown-expiry"})
	require.NoError(t, err)
	require.Equal(t, 3, s.CacheSize())

	require.Zero(t, s.Cleanup(testStart.Add(time.Minute)))
	require.Equal(t, 1, s.Cleanup(testStart.Add(2*time.Minute)))
	require.Equal(t, 1, s.Cleanup(testStart.Add(31*time.Minute)))
	require.Equal(t, 1, s.Cleanup(testStart.Add(2*time.Hour)))
	require.Zero(t, s.CacheSize())

	// The store record outlives the cache entry.
	revoked, err := s.IsRevoked(ctx, "long")
	require.NoError(t, err)
	require.True(t, revoked)
	require.Equal(t, 1, s.CacheSize())
}

func TestRevocationService_FirstEntryWins(t *testing.T) {
	t.Parallel()
	fc := clock.Fake(testStart)
	st := memory.NewStore(fc)
	s := NewRevocationService(st.Revocations(), fc, time.Hour, nil)
	ctx := context.Background()

	first, created, err := s.Revoke(ctx, domain.RevocationEntry{JTI: "j", Reason: "first"})
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := s.Revoke(ctx, domain.RevocationEntry{JTI: "j", Reason: "second"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first, again)

	got, err := s.Get(ctx, "j")
	require.NoError(t, err)
	require.Equal(t, "first", got.Reason)
}

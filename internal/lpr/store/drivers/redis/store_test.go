package redis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/internal/lpr/store/storetest"
)

// startRedis runs a throwaway redis server and returns its URL. Tests are
// skipped when no container runtime is available.
func startRedis(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

var prefixes atomic.Int64

// newTestStore gives each test its own key prefix on the shared server.
func newTestStore(t *testing.T, url string) *Store {
	t.Helper()

	s, err := New(Config{URL: url, Prefix: fmt.Sprintf("test%d:", prefixes.Add(1))})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Ping(context.Background()))
	return s
}

func TestRedisStore(t *testing.T) {
	url := startRedis(t)

	t.Run("state", func(t *testing.T) {
		storetest.RunState(t, func(t *testing.T) store.State { return newTestStore(t, url) })
	})

	t.Run("audit", func(t *testing.T) {
		storetest.RunAudit(t, func(t *testing.T) store.AuditLog { return newTestStore(t, url).Audit() })
	})

	t.Run("metadata expires", func(t *testing.T) {
		s := newTestStore(t, url)
		ctx := context.Background()

		require.NoError(t, s.Tokens().PutMetadata(ctx, domain.TokenMetadata{JTI: "short"}, 100*time.Millisecond))
		require.Eventually(t, func() bool {
			_, err := s.Tokens().GetMetadata(ctx, "short")
			return errors.Is(err, store.ErrNotFound)
		}, 5*time.Second, 50*time.Millisecond)
	})

	t.Run("nodes share revocations", func(t *testing.T) {
		a := newTestStore(t, url)
		b := NewFromClient(a.Conn(), string(a.keys))
		ctx := context.Background()

		_, created, err := a.Revocations().RevokeIfAbsent(ctx, domain.RevocationEntry{JTI: "x", Reason: "leak"}, time.Minute)
		require.NoError(t, err)
		require.True(t, created)

		got, err := b.Revocations().GetRevocation(ctx, "x")
		require.NoError(t, err)
		require.Equal(t, "leak", got.Reason)

		ttl, err := a.Conn().TTL(ctx, a.keys.revoked("x")).Result()
		require.NoError(t, err)
		require.Greater(t, ttl, 50*time.Second)
	})
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(Config{URL: "not-a-url"})
	require.Error(t, err)

	_, err = New(Config{URL: "::", ClusterMode: true})
	require.Error(t, err)
}

func TestKeyspace(t *testing.T) {
	k := keyspace("p:")
	require.Equal(t, "p:revoked:abc", k.revoked("abc"))
	require.Equal(t, "p:{audit}:head", k.auditHead())
	require.Equal(t, "p:{audit}:jti:abc", k.auditByJTI("abc"))

	s := NewFromClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "")
	require.Equal(t, keyspace(DefaultPrefix), s.keys)
	require.NoError(t, s.Close())
}

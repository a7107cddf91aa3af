package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/internal/lpr/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestAudit(t *testing.T) {
	storetest.RunAudit(t, func(t *testing.T) store.AuditLog {
		return newTestStore(t).Audit()
	})
}

func TestSigningKeys(t *testing.T) {
	storetest.RunSigningKeys(t, func(t *testing.T) store.SigningKeys {
		return newTestStore(t).SigningKeys()
	})
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestAuditEntriesAreImmutable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := domain.AuditEntry{
		Sequence:     1,
		When:         time.Now(),
		EventType:    domain.EventIssued,
		Severity:     domain.SeverityInfo,
		Result:       domain.ResultSuccess,
		PreviousHash: "genesis",
		EntryHash:    "h1",
	}
	require.NoError(t, s.Audit().AppendIfHead(ctx, store.AuditHead{}, e))

	_, err := s.db.ExecContext(ctx, `UPDATE audit_entries SET who = 'mallory' WHERE sequence_number = 1`)
	require.Error(t, err)
	_, err = s.db.ExecContext(ctx, `DELETE FROM audit_entries`)
	require.Error(t, err)
}

func TestFileDatabaseSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lpr.db")
	ctx := context.Background()

	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.SigningKeys().CreateSigningKey(ctx, domain.SigningKey{
		ID: "id", Kid: "kid", Algorithm: "ES256", PrivateKeyEncrypted: []byte("x"), CreatedAt: time.Now(),
	}))
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	key, err := s.SigningKeys().GetSigningKeyByKid(ctx, "kid")
	require.NoError(t, err)
	require.Equal(t, "ES256", key.Algorithm)
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	// ErrConflict is returned when a compare-and-swap lost to a concurrent writer.
	ErrConflict = errors.New("store: conflict")
)

// State is the shared key-value substrate used by the verification hot path.
// Concrete drivers (memory, redis) implement this. Sub-repositories keep the
// concerns apart so each can be faked independently in tests.
type State interface {
	Tokens() Tokens
	Revocations() Revocations
	Buckets() Buckets

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// AuditStore holds the append-only audit ledger.
type AuditStore interface {
	Audit() AuditLog
	Close() error
	Ping(ctx context.Context) error
}

// KeyStore holds encrypted signing keys shared by every node.
type KeyStore interface {
	SigningKeys() SigningKeys
	Close() error
	Ping(ctx context.Context) error
}

type Tokens interface {
	// PutMetadata stores the issuance record for md.JTI, expiring after ttl.
	PutMetadata(ctx context.Context, md domain.TokenMetadata, ttl time.Duration) error

	// GetMetadata returns ErrNotFound when no record exists.
	GetMetadata(ctx context.Context, jti string) (domain.TokenMetadata, error)

	// RecordUsage increments the usage counter and records the last request.
	// The usage record expires with ttl.
	RecordUsage(ctx context.Context, jti string, at time.Time, method, url string, ttl time.Duration) error

	// GetUsage returns a zero Usage when the receipt was never used.
	GetUsage(ctx context.Context, jti string) (domain.Usage, error)
}

type Revocations interface {
	// RevokeIfAbsent writes entry unless a revocation for the same jti exists.
	// It returns the stored entry and whether this call created it, so
	// repeated revocations never overwrite the first record.
	RevokeIfAbsent(ctx context.Context, entry domain.RevocationEntry, ttl time.Duration) (domain.RevocationEntry, bool, error)

	// GetRevocation returns ErrNotFound when jti is not revoked.
	GetRevocation(ctx context.Context, jti string) (domain.RevocationEntry, error)

	// Publish broadcasts a revocation to every subscriber, including other nodes.
	Publish(ctx context.Context, entry domain.RevocationEntry) error

	// Subscribe streams published revocations until ctx is cancelled, at which
	// point the channel is closed.
	Subscribe(ctx context.Context) (<-chan domain.RevocationEntry, error)
}

type Buckets interface {
	// TryConsume refills the bucket for key lazily at now, then takes one
	// token if at least one is available. The read-modify-write is atomic per
	// key. Idle buckets expire after ttl.
	TryConsume(ctx context.Context, key string, capacity int, ratePerSecond float64, now time.Time, ttl time.Duration) (bool, error)
}

// AuditHead identifies the newest entry of the ledger. The zero value means
// the ledger is empty.
type AuditHead struct {
	Sequence uint64
	Hash     string
}

type AuditLog interface {
	// Head returns the newest entry's sequence number and hash.
	Head(ctx context.Context) (AuditHead, error)

	// AppendIfHead stores entry only if the ledger head still equals prev and
	// entry.Sequence is prev.Sequence+1. Otherwise it returns ErrConflict.
	AppendIfHead(ctx context.Context, prev AuditHead, entry domain.AuditEntry) error

	// Range returns entries with from <= sequence <= to in sequence order.
	Range(ctx context.Context, from, to uint64) ([]domain.AuditEntry, error)

	// ListByJTI returns up to limit entries for jti with sequence > after.
	ListByJTI(ctx context.Context, jti string, after uint64, limit int) ([]domain.AuditEntry, error)

	// ListByCorrelation returns up to limit entries for cid with sequence > after.
	ListByCorrelation(ctx context.Context, cid string, after uint64, limit int) ([]domain.AuditEntry, error)
}

type SigningKeys interface {
	// CreateSigningKey stores a new signing key with encrypted private key material.
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error

	// GetSigningKeyByKid fetches a signing key by its key identifier.
	GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error)

	// ListSigningKeys returns all stored keys, retired ones included, newest first.
	ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error)

	// RetireSigningKey stops kid from signing. It keeps verifying until expiresAt.
	RetireSigningKey(ctx context.Context, kid string, retiredAt, expiresAt time.Time) error

	// DeleteExpiredSigningKeys removes keys whose grace window ended before now.
	DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error)
}

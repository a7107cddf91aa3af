// Package redis shares receipt state between verifying nodes through Redis:
// metadata and usage records, write-once revocations with pub/sub fan-out,
// Lua token buckets and a compare-and-swap audit ledger.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/lpr/internal/lpr/store"
)

// DefaultPrefix namespaces every key written by the driver.
const DefaultPrefix = "lpr:"

type Config struct {
	URL         string
	PoolSize    int
	ClusterMode bool
	// Prefix is prepended to every key and channel name.
	Prefix string
}

type Store struct {
	rdb    redis.UniversalClient
	keys   keyspace
	closer func() error
}

var (
	_ store.State      = (*Store)(nil)
	_ store.AuditStore = (*Store)(nil)
)

// New connects to the server or cluster named by cfg.URL.
func New(cfg Config) (*Store, error) {
	var rdb redis.UniversalClient
	if cfg.ClusterMode {
		opts, err := redis.ParseClusterURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse cluster url: %w", err)
		}
		if cfg.PoolSize > 0 {
			opts.PoolSize = cfg.PoolSize
		}
		rdb = redis.NewClusterClient(opts)
	} else {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		if cfg.PoolSize > 0 {
			opts.PoolSize = cfg.PoolSize
		}
		rdb = redis.NewClient(opts)
	}

	s := NewFromClient(rdb, cfg.Prefix)
	s.closer = rdb.Close
	return s, nil
}

// NewFromClient wraps an existing client. Close does not close rdb.
func NewFromClient(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		rdb:    rdb,
		keys:   keyspace(prefix),
		closer: func() error { return nil },
	}
}

func (s *Store) Conn() redis.UniversalClient { return s.rdb }

func (s *Store) Tokens() store.Tokens           { return &tokensRepo{rdb: s.rdb, keys: s.keys} }
func (s *Store) Revocations() store.Revocations { return &revocationsRepo{rdb: s.rdb, keys: s.keys} }
func (s *Store) Buckets() store.Buckets         { return &bucketsRepo{rdb: s.rdb, keys: s.keys} }
func (s *Store) Audit() store.AuditLog          { return &auditRepo{rdb: s.rdb, keys: s.keys} }

func (s *Store) Close() error { return s.closer() }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// keyspace builds key names. Audit keys share the {audit} hash tag so the
// append script touches a single cluster slot.
type keyspace string

func (k keyspace) metadata(jti string) string { return string(k) + "meta:" + jti }
func (k keyspace) usage(jti string) string    { return string(k) + "usage:" + jti }
func (k keyspace) revoked(jti string) string  { return string(k) + "revoked:" + jti }
func (k keyspace) revocationChannel() string  { return string(k) + "revocations" }
func (k keyspace) bucket(key string) string   { return string(k) + "bucket:" + key }
func (k keyspace) auditHead() string          { return string(k) + "{audit}:head" }
func (k keyspace) auditEntries() string       { return string(k) + "{audit}:entries" }
func (k keyspace) auditByJTI(jti string) string {
	return string(k) + "{audit}:jti:" + jti
}
func (k keyspace) auditByCorrelation(cid string) string {
	return string(k) + "{audit}:cid:" + cid
}

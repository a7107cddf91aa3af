package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/internal/lpr/store/drivers/memory"
	"github.com/aussiebroadwan/lpr/internal/lpr/store/drivers/redis"
	"github.com/aussiebroadwan/lpr/internal/lpr/store/drivers/sqlite"
	"github.com/aussiebroadwan/lpr/pkg/clock"
)

// stores holds the opened substrates. Drivers shared by several roles are
// opened once.
type stores struct {
	state store.State
	audit store.AuditStore
	keys  store.SigningKeys // nil when keys come from files

	closers []func() error
}

func openStores(cfg *Config, c clock.Clock, logger *slog.Logger) (_ *stores, err error) {
	s := &stores{}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	var (
		mem  *memory.Store
		rds  *redis.Store
		lite *sqlite.Store
	)
	memoryStore := func() *memory.Store {
		if mem == nil {
			mem = memory.NewStore(c)
			s.closers = append(s.closers, mem.Close)
		}
		return mem
	}
	redisStore := func() (*redis.Store, error) {
		if rds == nil {
			var err error
			rds, err = redis.New(redis.Config{
				URL:         cfg.Redis.URL,
				PoolSize:    cfg.Redis.PoolSize,
				ClusterMode: cfg.Redis.ClusterMode,
				Prefix:      cfg.Redis.Prefix,
			})
			if err != nil {
				return nil, err
			}
			s.closers = append(s.closers, rds.Close)
		}
		return rds, nil
	}
	sqliteStore := func() (*sqlite.Store, error) {
		if lite == nil {
			var err error
			lite, err = sqlite.NewStore(cfg.SQLite.Path)
			if err != nil {
				return nil, fmt.Errorf("failed to open database: %w", err)
			}
			s.closers = append(s.closers, lite.Close)
			if err := lite.ApplyMigrations(); err != nil {
				return nil, fmt.Errorf("failed to apply database migrations: %w", err)
			}
			logger.Info("database migrations applied successfully", "path", cfg.SQLite.Path)
		}
		return lite, nil
	}

	switch cfg.Store.Driver {
	case "redis":
		if s.state, err = redisStore(); err != nil {
			return nil, err
		}
	default:
		s.state = memoryStore()
		logger.Warn("memory store in use: revocations and rate limits are not shared between nodes")
	}

	switch cfg.Audit.Driver {
	case "redis":
		if s.audit, err = redisStore(); err != nil {
			return nil, err
		}
	case "sqlite":
		if s.audit, err = sqliteStore(); err != nil {
			return nil, err
		}
	default:
		s.audit = memoryStore()
	}

	if cfg.Keys.Source == "sqlite" {
		db, err := sqliteStore()
		if err != nil {
			return nil, err
		}
		s.keys = db.SigningKeys()
	}

	return s, nil
}

// Close closes every opened driver in reverse order.
func (s *stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

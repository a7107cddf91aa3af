package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/lpr/internal/lpr/service"
	"github.com/aussiebroadwan/lpr/pkg/clock"
)

// Operator exposes key management and audit verification to the CLI
// without starting the HTTP server.
type Operator struct {
	Keys  *service.KeyRotationService
	Audit *service.AuditService

	stores *stores
}

// NewOperator opens the configured stores and key source. Keys are loaded
// verify-only so a source without an active key can still be inspected.
func NewOperator(ctx context.Context, cfg *Config, logger *slog.Logger) (_ *Operator, err error) {
	sec, err := loadSecrets(cfg)
	if err != nil {
		return nil, err
	}

	c := clock.Real()
	st, err := openStores(cfg, c, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = st.Close()
		}
	}()

	src, err := keySource(cfg, st.keys, sec)
	if err != nil {
		return nil, err
	}
	km, err := initKeyManager(ctx, cfg, src, c, true, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}

	audit := &service.AuditService{Log: st.audit.Audit(), Clock: c, SignatureKey: sec.auditKey}
	rotation := &service.KeyRotationService{
		KeyManager:  km,
		Audit:       audit,
		Algorithm:   cfg.Keys.Algorithm,
		GracePeriod: cfg.Keys.GracePeriod,
		Clock:       c,
	}
	if st.keys != nil {
		rotation.Keys = st.keys
		rotation.Encrypter = sec.encrypter
	} else {
		rotation.Dir = cfg.Keys.Dir
	}

	return &Operator{Keys: rotation, Audit: audit, stores: st}, nil
}

func (o *Operator) Close() error { return o.stores.Close() }

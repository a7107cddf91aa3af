package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/lpr/internal/lpr/service"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/pkg/clock"
	"github.com/aussiebroadwan/lpr/pkg/cryptox"
	"github.com/aussiebroadwan/lpr/pkg/idx"
	"github.com/aussiebroadwan/lpr/pkg/jwtx"
)

// secrets are the keys loaded from files at startup. Secrets are never
// generated here; `lprd keys generate` provisions them.
type secrets struct {
	master    []byte // nil when no master key file is configured
	encrypter *cryptox.KeyEncrypter
	auditKey  []byte
}

func loadSecrets(cfg *Config) (*secrets, error) {
	s := &secrets{}
	if cfg.Secrets.MasterKeyFile == "" {
		return s, nil
	}

	master, err := cryptox.LoadSecret(cfg.Secrets.MasterKeyFile)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	s.master = master

	if s.encrypter, err = cryptox.NewKeyEncrypter(master); err != nil {
		return nil, err
	}
	if s.auditKey, err = cryptox.DeriveKey(master, service.AuditSignatureInfo, 32); err != nil {
		return nil, err
	}
	return s, nil
}

func loadPseudonymizer(cfg *Config) (*cryptox.Pseudonymizer, error) {
	key, err := cryptox.LoadSecret(cfg.Secrets.PseudonymKeyFile)
	if err != nil {
		return nil, fmt.Errorf("pseudonym key: %w", err)
	}
	return cryptox.NewPseudonymizer(key)
}

// keySource picks where signing keys are read from.
func keySource(cfg *Config, keys store.SigningKeys, sec *secrets) (jwtx.KeySource, error) {
	if cfg.Keys.Source == "sqlite" {
		if sec.encrypter == nil {
			return nil, errors.New("secrets.masterKeyFile is required to unseal stored keys")
		}
		return jwtx.StoreKeySource{Store: store.NewKeyStoreAdapter(keys), Encrypter: sec.encrypter}, nil
	}
	return jwtx.DirKeySource{Dir: cfg.Keys.Dir, GracePeriod: cfg.Keys.GracePeriod}, nil
}

// initKeyManager loads signing and verification keys from the configured
// source. Startup fails without an active key unless verifyOnly is set.
func initKeyManager(ctx context.Context, cfg *Config, src jwtx.KeySource, c clock.Clock, verifyOnly bool, logger *slog.Logger) (*jwtx.KeyManager, error) {
	km, err := jwtx.NewKeyManager(ctx, jwtx.KeyManagerOptions{
		Source:     src,
		Now:        c.Now,
		VerifyOnly: verifyOnly,
	})
	if errors.Is(err, jwtx.ErrNoSigner) {
		return nil, fmt.Errorf("no active signing key in %s source: run `lprd keys generate`: %w", cfg.Keys.Source, err)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("signing keys loaded",
		"source", cfg.Keys.Source,
		"signers", km.NumSigners(),
		"kids", km.KeySet().KIDs(),
		"grace_period", cfg.Keys.GracePeriod,
	)
	return km, nil
}

// GenerateResult lists what GenerateKeys provisioned.
type GenerateResult struct {
	MasterKeyFile    string
	PseudonymKeyFile string
	Kid              string
}

// GenerateKeys provisions the master secret, the pseudonymisation secret and
// a first signing key. Existing secret files are kept; a signing key is
// only created when the source has no active one.
func GenerateKeys(ctx context.Context, cfg *Config, logger *slog.Logger) (*GenerateResult, error) {
	res := &GenerateResult{}
	for _, f := range []struct {
		path string
		out  *string
	}{
		{cfg.Secrets.MasterKeyFile, &res.MasterKeyFile},
		{cfg.Secrets.PseudonymKeyFile, &res.PseudonymKeyFile},
	} {
		if f.path == "" {
			continue
		}
		err := cryptox.WriteSecret(f.path)
		switch {
		case err == nil:
			*f.out = f.path
		case errors.Is(err, os.ErrExist):
			logger.Info("secret already present", "path", f.path)
		default:
			return nil, err
		}
	}

	sec, err := loadSecrets(cfg)
	if err != nil {
		return nil, err
	}

	now := clock.Real().Now()
	switch cfg.Keys.Source {
	case "sqlite":
		st, err := openStores(cfg, clock.Real(), logger)
		if err != nil {
			return nil, err
		}
		defer st.Close()

		src, err := keySource(cfg, st.keys, sec)
		if err != nil {
			return nil, err
		}
		if hasSigner(ctx, src) {
			logger.Info("active signing key already present")
			return res, nil
		}
		record, err := jwtx.SealKey(sec.encrypter, idx.New().String(), cfg.Keys.Algorithm, now)
		if err != nil {
			return nil, err
		}
		if err := st.keys.CreateSigningKey(ctx, store.SigningKeyFromRecord(record)); err != nil {
			return nil, err
		}
		res.Kid = record.Kid

	default:
		if hasSigner(ctx, jwtx.DirKeySource{Dir: cfg.Keys.Dir, GracePeriod: cfg.Keys.GracePeriod}) {
			logger.Info("active signing key already present", "dir", cfg.Keys.Dir)
			return res, nil
		}
		kid, err := jwtx.NewKeyID()
		if err != nil {
			return nil, err
		}
		pemData, err := jwtx.GenerateKey(cfg.Keys.Algorithm)
		if err != nil {
			return nil, err
		}
		if _, err := jwtx.WriteKeyFile(cfg.Keys.Dir, kid, cfg.Keys.Algorithm, pemData); err != nil {
			return nil, err
		}
		res.Kid = kid
	}

	logger.Info("signing key generated", "kid", res.Kid, "algorithm", cfg.Keys.Algorithm, "source", cfg.Keys.Source)
	return res, nil
}

func hasSigner(ctx context.Context, src jwtx.KeySource) bool {
	records, err := src.LoadKeys(ctx)
	if err != nil {
		return false
	}
	for _, r := range records {
		if r.RetiredAt == nil && len(r.PrivateKeyPEM) > 0 {
			return true
		}
	}
	return false
}

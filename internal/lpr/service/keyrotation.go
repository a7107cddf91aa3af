package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/pkg/clock"
	"github.com/aussiebroadwan/lpr/pkg/cryptox"
	"github.com/aussiebroadwan/lpr/pkg/idx"
	"github.com/aussiebroadwan/lpr/pkg/jwtx"
)

// DefaultKeyGracePeriod keeps retired keys verifying for twice the default
// maximum receipt lifetime.
const DefaultKeyGracePeriod = 48 * time.Hour

var (
	ErrKeyAlreadyRetired = errors.New("signing key is already retired")
	ErrKeyNotFound       = errors.New("signing key not found")
)

// KeyRotationService creates and retires receipt signing keys.
//
// With Keys set, private keys are sealed with Encrypter and stored in the
// shared key store. Otherwise they are PEM files under Dir, the layout read
// by jwtx.DirKeySource. Either way the KeyManager is reloaded afterwards;
// other nodes pick the change up on their next housekeeping reload.
type KeyRotationService struct {
	Keys      store.SigningKeys     // nil for file mode
	Encrypter *cryptox.KeyEncrypter // required with Keys
	Dir       string                // file mode key directory

	KeyManager  *jwtx.KeyManager
	Audit       *AuditService // optional
	Algorithm   string
	GracePeriod time.Duration
	Clock       clock.Clock
}

// RotateKeyRequest represents a request to rotate signing keys.
type RotateKeyRequest struct {
	// RetireExisting retires every currently active key once the new one is
	// in place. If false the new key signs alongside the existing ones.
	RetireExisting bool

	// Actor is recorded in the audit log.
	Actor string
}

// RotateKeyResponse represents the result of a key rotation operation.
type RotateKeyResponse struct {
	NewKey      domain.SigningKey   `json:"new_key"`
	RetiredKeys []domain.SigningKey `json:"retired_keys,omitempty"`
	ActiveKeys  int                 `json:"active_keys"`
}

func (s *KeyRotationService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *KeyRotationService) grace() time.Duration {
	if s.GracePeriod <= 0 {
		return DefaultKeyGracePeriod
	}
	return s.GracePeriod
}

func (s *KeyRotationService) algorithm() string {
	if s.Algorithm == "" {
		return jwtx.AlgorithmES256
	}
	return s.Algorithm
}

// RotateKey generates a new signing key and optionally retires existing keys.
func (s *KeyRotationService) RotateKey(ctx context.Context, req RotateKeyRequest) (*RotateKeyResponse, error) {
	if s.KeyManager == nil {
		return nil, ErrKeyManagerMissing
	}

	var (
		resp *RotateKeyResponse
		err  error
	)
	if s.Keys != nil {
		resp, err = s.rotateStored(ctx, req)
	} else {
		resp, err = s.rotateFiles(req)
	}
	if err != nil {
		return nil, err
	}

	if err := s.KeyManager.Reload(ctx); err != nil {
		return nil, fmt.Errorf("reload keys after rotation: %w", err)
	}
	resp.ActiveKeys = s.KeyManager.NumSigners()

	retired := make([]string, len(resp.RetiredKeys))
	for i, k := range resp.RetiredKeys {
		retired[i] = k.Kid
	}
	if err := s.audit(ctx, req.Actor, "signing key rotated", resp.NewKey.Kid, map[string]string{
		"algorithm": resp.NewKey.Algorithm,
		"retired":   strings.Join(retired, ","),
	}); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *KeyRotationService) rotateStored(ctx context.Context, req RotateKeyRequest) (*RotateKeyResponse, error) {
	if s.Encrypter == nil {
		return nil, errors.New("key encrypter is required for stored keys")
	}

	now := s.now()
	var active []domain.SigningKey
	if req.RetireExisting {
		keys, err := s.Keys.ListSigningKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list signing keys: %w", err)
		}
		for _, k := range keys {
			if k.IsActive() {
				active = append(active, k)
			}
		}
	}

	record, err := jwtx.SealKey(s.Encrypter, idx.New().String(), s.algorithm(), now)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	newKey := store.SigningKeyFromRecord(record)
	if err := s.Keys.CreateSigningKey(ctx, newKey); err != nil {
		return nil, fmt.Errorf("failed to store signing key: %w", err)
	}

	expires := now.Add(s.grace())
	retired := make([]domain.SigningKey, 0, len(active))
	for _, k := range active {
		if err := s.Keys.RetireSigningKey(ctx, k.Kid, now, expires); err != nil {
			return nil, fmt.Errorf("failed to retire key %s: %w", k.Kid, err)
		}
		k.RetiredAt, k.ExpiresAt = &now, &expires
		retired = append(retired, redacted(k))
	}

	return &RotateKeyResponse{NewKey: redacted(newKey), RetiredKeys: retired}, nil
}

func (s *KeyRotationService) rotateFiles(req RotateKeyRequest) (*RotateKeyResponse, error) {
	if s.Dir == "" {
		return nil, errors.New("key directory is required for file keys")
	}

	now := s.now()
	previous := s.KeyManager.ActiveKIDs()

	kid, err := jwtx.NewKeyID()
	if err != nil {
		return nil, err
	}
	pemData, err := jwtx.GenerateKey(s.algorithm())
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	if _, err := jwtx.WriteKeyFile(s.Dir, kid, s.algorithm(), pemData); err != nil {
		return nil, fmt.Errorf("failed to write signing key: %w", err)
	}

	resp := &RotateKeyResponse{
		NewKey: domain.SigningKey{Kid: kid, Algorithm: s.algorithm(), CreatedAt: now},
	}
	if !req.RetireExisting {
		return resp, nil
	}

	expires := now.Add(s.grace())
	for _, old := range previous {
		if err := jwtx.RetireKeyFile(s.Dir, old, now); err != nil {
			return nil, fmt.Errorf("failed to retire key %s: %w", old, err)
		}
		resp.RetiredKeys = append(resp.RetiredKeys, domain.SigningKey{Kid: old, RetiredAt: &now, ExpiresAt: &expires})
	}
	return resp, nil
}

// ListSigningKeys returns the known signing keys, newest first where the
// source records creation time. Private material is never returned.
func (s *KeyRotationService) ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	if s.Keys != nil {
		keys, err := s.Keys.ListSigningKeys(ctx)
		if err != nil {
			return nil, err
		}
		for i := range keys {
			keys[i] = redacted(keys[i])
		}
		return keys, nil
	}

	if s.Dir == "" {
		return nil, errors.New("key directory is required for file keys")
	}
	records, err := jwtx.DirKeySource{Dir: s.Dir, GracePeriod: s.grace()}.LoadKeys(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]domain.SigningKey, len(records))
	for i, r := range records {
		keys[i] = domain.SigningKey{
			Kid:       r.Kid,
			Algorithm: r.Algorithm,
			CreatedAt: r.CreatedAt,
			RetiredAt: r.RetiredAt,
			ExpiresAt: r.ExpiresAt,
		}
	}
	return keys, nil
}

// RetireKey stops kid from signing without generating a replacement. The
// key keeps verifying for the grace period.
func (s *KeyRotationService) RetireKey(ctx context.Context, kid, actor string) error {
	if s.KeyManager == nil {
		return ErrKeyManagerMissing
	}

	now := s.now()
	if s.Keys != nil {
		key, err := s.Keys.GetSigningKeyByKid(ctx, kid)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
		}
		if err != nil {
			return fmt.Errorf("failed to get key: %w", err)
		}
		if !key.IsActive() {
			return fmt.Errorf("%w: %s", ErrKeyAlreadyRetired, kid)
		}
		if err := s.Keys.RetireSigningKey(ctx, kid, now, now.Add(s.grace())); err != nil {
			return fmt.Errorf("failed to retire key: %w", err)
		}
	} else {
		err := jwtx.RetireKeyFile(s.Dir, kid, now)
		if errors.Is(err, jwtx.ErrNoKey) {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
		}
		if err != nil {
			return fmt.Errorf("failed to retire key: %w", err)
		}
	}

	if err := s.KeyManager.Reload(ctx); err != nil {
		return fmt.Errorf("reload keys after retirement: %w", err)
	}
	return s.audit(ctx, actor, "signing key retired", kid, nil)
}

func (s *KeyRotationService) audit(ctx context.Context, actor, what, kid string, details map[string]string) error {
	if s.Audit == nil {
		return nil
	}
	if actor == "" {
		actor = "operator"
	}
	if details == nil {
		details = map[string]string{}
	}
	details["kid"] = kid

	_, err := s.Audit.Append(context.WithoutCancel(ctx), domain.AuditRecord{
		EventType: domain.EventKeyRotated,
		Result:    domain.ResultSuccess,
		Who:       actor,
		What:      what,
		Why:       "key management",
		How:       "keys",
		Details:   details,
	})
	return err
}

// redacted drops the sealed private key before a key leaves the service.
func redacted(k domain.SigningKey) domain.SigningKey {
	k.PrivateKeyEncrypted = nil
	return k
}

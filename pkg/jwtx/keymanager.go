package jwtx

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/aussiebroadwan/lpr/pkg/cryptox"
)

// KeyRecord is one key as supplied by a KeySource. A record with a private
// key and no RetiredAt can sign. Records with RetiredAt set, or with only a
// public JWK, verify until ExpiresAt.
type KeyRecord struct {
	Kid           string
	Algorithm     string
	PrivateKeyPEM []byte
	Public        *JWK
	CreatedAt     time.Time
	RetiredAt     *time.Time
	ExpiresAt     *time.Time
}

// KeySource supplies signing and verification keys from outside the process.
type KeySource interface {
	LoadKeys(ctx context.Context) ([]KeyRecord, error)
}

// KeyManager holds the active signers and the verification KeySet for an
// instance. Keys always come from a KeySource and are never generated here,
// so every instance sharing a source signs and verifies with the same keys.
type KeyManager struct {
	source KeySource
	now    func() time.Time
	keys   *KeySet

	mu      sync.RWMutex
	signers []Signer
}

// KeyManagerOptions configures NewKeyManager.
type KeyManagerOptions struct {
	// Source provides the key records. Required.
	Source KeySource

	// Now overrides the clock used to drop expired records.
	Now func() time.Time

	// VerifyOnly allows starting with no active signer, for nodes that
	// only verify receipts.
	VerifyOnly bool
}

// NewKeyManager loads keys from opts.Source. It fails when no active signer
// is available unless VerifyOnly is set.
func NewKeyManager(ctx context.Context, opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("jwtx: key source is required")
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	km := &KeyManager{
		source: opts.Source,
		now:    opts.Now,
		keys:   NewKeySet(),
	}
	if err := km.Reload(ctx); err != nil {
		return nil, err
	}
	if !opts.VerifyOnly && km.NumSigners() == 0 {
		return nil, ErrNoSigner
	}
	return km, nil
}

// Reload re-reads the source and swaps the signer list and KeySet. On error
// the previous keys stay in place.
func (km *KeyManager) Reload(ctx context.Context) error {
	records, err := km.source.LoadKeys(ctx)
	if err != nil {
		return fmt.Errorf("jwtx: load keys: %w", err)
	}

	now := km.now()
	keyset := NewKeySet()
	signers := make([]Signer, 0, len(records))

	for _, rec := range records {
		if rec.ExpiresAt != nil && !rec.ExpiresAt.After(now) {
			continue
		}

		if len(rec.PrivateKeyPEM) == 0 {
			if rec.Public == nil {
				return fmt.Errorf("jwtx: key %s has no key material", rec.Kid)
			}
			if err := keyset.AddJWK(*rec.Public); err != nil {
				return fmt.Errorf("jwtx: key %s: %w", rec.Kid, err)
			}
			continue
		}

		signer, err := NewSigner(rec.Algorithm, rec.Kid, rec.PrivateKeyPEM)
		if err != nil {
			return fmt.Errorf("jwtx: key %s: %w", rec.Kid, err)
		}
		if err := keyset.AddSigner(signer); err != nil {
			return fmt.Errorf("jwtx: key %s: %w", rec.Kid, err)
		}
		if rec.RetiredAt == nil {
			signers = append(signers, signer)
		}
	}

	km.mu.Lock()
	km.signers = signers
	km.mu.Unlock()
	km.keys.Replace(keyset)
	return nil
}

// KeySet returns the verification keys, active and retired.
func (km *KeyManager) KeySet() *KeySet { return km.keys }

// IsReady returns true if at least one verification key is loaded.
func (km *KeyManager) IsReady() bool { return km.keys.IsReady() }

// Signer returns a randomly selected active signer, or nil if there is none.
func (km *KeyManager) Signer() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	default:
		return km.signers[rand.IntN(len(km.signers))]
	}
}

// NumSigners returns the number of active signing keys.
func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

// ActiveKIDs lists the kids that currently sign.
func (km *KeyManager) ActiveKIDs() []string {
	km.mu.RLock()
	defer km.mu.RUnlock()

	kids := make([]string, 0, len(km.signers))
	for _, s := range km.signers {
		kids = append(kids, s.KID())
	}
	return kids
}

// Encode signs claims with one of the active keys.
func (km *KeyManager) Encode(claims Claims) (string, error) {
	return Encode(claims, km.Signer())
}

// Decode verifies a receipt against all loaded verification keys.
func (km *KeyManager) Decode(token string) (*Claims, error) {
	return Decode(token, km.keys)
}

// NewKeyID creates a random key identifier: "lpr-{128-bit token}".
func NewKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("failed to generate random key ID: %w", err)
	}
	return "lpr-" + token, nil
}

// GenerateKey creates fresh private key material for alg. Only provisioning
// tools and the rotation service call this.
func GenerateKey(alg string) ([]byte, error) {
	switch alg {
	case AlgorithmES256:
		return cryptox.GenerateES256Key()
	case AlgorithmEdDSA:
		return cryptox.GenerateEd25519Key()
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupported, alg)
	}
}

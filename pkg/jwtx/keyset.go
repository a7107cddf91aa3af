package jwtx

import (
	"slices"
	"sync"
)

// KeySet holds the public verification keys in memory. It is safe for
// concurrent use and is swapped wholesale on key reload.
type KeySet struct {
	mu   sync.RWMutex
	jwks map[string]JWK
	pub  map[string]any // kid: *ecdsa.PublicKey | ed25519.PublicKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{
		jwks: make(map[string]JWK),
		pub:  make(map[string]any),
	}
}

// AddSigner registers a Signer's public JWK into the KeySet.
func (k *KeySet) AddSigner(s Signer) error {
	return k.AddJWK(s.PublicJWK())
}

// AddJWK adds a JWK to the KeySet and parses it into a usable crypto key.
func (k *KeySet) AddJWK(j JWK) error {
	key, err := j.PublicKey()
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[j.Kid] = key
	k.jwks[j.Kid] = j
	return nil
}

// Get returns the public key for the given kid.
func (k *KeySet) Get(kid string) (any, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrNoKey
}

// PublicJWKS returns a snapshot of the KeySet's JWKS for HTTP serving,
// ordered by kid.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := JWKS{Keys: make([]JWK, 0, len(k.jwks))}
	for _, kid := range k.kidsLocked() {
		out.Keys = append(out.Keys, k.jwks[kid])
	}
	return out
}

// KIDs lists the loaded key ids in sorted order.
func (k *KeySet) KIDs() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.kidsLocked()
}

func (k *KeySet) kidsLocked() []string {
	kids := make([]string, 0, len(k.jwks))
	for kid := range k.jwks {
		kids = append(kids, kid)
	}
	slices.Sort(kids)
	return kids
}

// IsReady returns true if the KeySet has at least one key loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub) > 0
}

// Replace swaps in the keys of other atomically.
func (k *KeySet) Replace(other *KeySet) {
	other.mu.RLock()
	pub := make(map[string]any, len(other.pub))
	jwks := make(map[string]JWK, len(other.jwks))
	for kid, key := range other.pub {
		pub[kid] = key
		jwks[kid] = other.jwks[kid]
	}
	other.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub = pub
	k.jwks = jwks
}

package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Pseudonymizer maps real identifiers to stable keyed hashes. The output
// is deterministic for the same key and input and cannot be reversed
// without the key.
type Pseudonymizer struct {
	key []byte
}

// NewPseudonymizer builds a Pseudonymizer. The key must be at least
// MinSecretSize bytes.
func NewPseudonymizer(key []byte) (*Pseudonymizer, error) {
	if len(key) < MinSecretSize {
		return nil, ErrWeakSecret
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Pseudonymizer{key: k}, nil
}

// Pseudonym returns base64url(HMAC-SHA256(key, id)).
func (p *Pseudonymizer) Pseudonym(id string) string {
	return base64.RawURLEncoding.EncodeToString(Sum(p.key, []byte(id)))
}

// Sum computes HMAC-SHA256 of msg under key.
func Sum(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

// Equal compares two MACs in constant time.
func Equal(a, b []byte) bool {
	return hmac.Equal(a, b)
}

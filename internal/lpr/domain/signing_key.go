package domain

import "time"

// SigningKey is a receipt signing key stored with its private half sealed.
// Retired keys keep verifying until ExpiresAt, then housekeeping deletes them.
type SigningKey struct {
	ID                  string     // ULID
	Kid                 string     // key identifier in JWKS (e.g. "lpr-abc123")
	Algorithm           string     // ES256 or EdDSA
	PrivateKeyEncrypted []byte     // AES-256-GCM sealed PKCS8 PEM
	CreatedAt           time.Time  // when the key was created
	RetiredAt           *time.Time // nil while the key signs
	ExpiresAt           *time.Time // end of the verification grace window, set on retirement
}

// IsActive returns true if the key still signs.
func (k *SigningKey) IsActive() bool {
	return k.RetiredAt == nil
}

// IsExpired returns true once the grace window has passed.
func (k *SigningKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

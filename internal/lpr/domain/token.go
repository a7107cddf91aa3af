package domain

import (
	"time"

	"github.com/aussiebroadwan/lpr/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
)

// Token is a Limited Permission Receipt as signed and presented.
type Token struct {
	JTI                   string
	Version               string
	SubjectPseudonym      string
	IssuedAt              time.Time
	ExpiresAt             time.Time
	DeviceFingerprintHash string
	Origins               []string
	Scopes                []Scope
	Policy                Policy
	CorrelationID         string
	// ParentSessionID is kept for audit only and never used for authorization.
	ParentSessionID string
}

// Expired reports whether now is strictly after the expiry instant.
func (t Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Claims converts the receipt into its signed payload.
func (t Token) Claims() jwtx.Claims {
	scopes := make([]jwtx.ScopeClaim, len(t.Scopes))
	for i, s := range t.Scopes {
		scopes[i] = jwtx.ScopeClaim{Method: s.Method, URL: s.URLPattern, Desc: s.Description}
	}

	return jwtx.Claims{
		ID:                t.JTI,
		Version:           t.Version,
		Subject:           t.SubjectPseudonym,
		IssuedAt:          jwt.NewNumericDate(t.IssuedAt),
		ExpiresAt:         jwt.NewNumericDate(t.ExpiresAt),
		DeviceFingerprint: t.DeviceFingerprintHash,
		Origins:           t.Origins,
		Scopes:            scopes,
		Policy: jwtx.PolicyClaim{
			RatePerSecond:      t.Policy.RatePerSecond,
			Burst:              t.Policy.Burst,
			RequireDeviceMatch: t.Policy.RequireDeviceMatch,
			AllowConcurrent:    t.Policy.AllowConcurrent,
			MaxPayloadBytes:    t.Policy.MaxPayloadBytes,
			HumanSpeedJitter:   t.Policy.HumanSpeedJitter,
		},
		CorrelationID:   t.CorrelationID,
		ParentSessionID: t.ParentSessionID,
	}
}

// TokenFromClaims rebuilds a receipt from a verified payload.
func TokenFromClaims(c *jwtx.Claims) Token {
	scopes := make([]Scope, len(c.Scopes))
	for i, s := range c.Scopes {
		scopes[i] = Scope{Method: s.Method, URLPattern: s.URL, Description: s.Desc}
	}

	return Token{
		JTI:                   c.ID,
		Version:               c.Version,
		SubjectPseudonym:      c.Subject,
		IssuedAt:              c.IssuedAt.Time.UTC(),
		ExpiresAt:             c.ExpiresAt.Time.UTC(),
		DeviceFingerprintHash: c.DeviceFingerprint,
		Origins:               c.Origins,
		Scopes:                scopes,
		Policy: Policy{
			RatePerSecond:      c.Policy.RatePerSecond,
			Burst:              c.Policy.Burst,
			RequireDeviceMatch: c.Policy.RequireDeviceMatch,
			AllowConcurrent:    c.Policy.AllowConcurrent,
			MaxPayloadBytes:    c.Policy.MaxPayloadBytes,
			HumanSpeedJitter:   c.Policy.HumanSpeedJitter,
		},
		CorrelationID:   c.CorrelationID,
		ParentSessionID: c.ParentSessionID,
	}
}

// TokenMetadata is the record persisted at issuance, keyed by jti.
type TokenMetadata struct {
	JTI                   string    `json:"jti"`
	SubjectPseudonym      string    `json:"sub"`
	ScopeCount            int       `json:"scope_count"`
	Origins               []string  `json:"origins"`
	DeviceFingerprintHash string    `json:"dfp"`
	IssuedAt              time.Time `json:"iat"`
	ExpiresAt             time.Time `json:"exp"`
	CorrelationID         string    `json:"cid"`
	ParentSessionID       string    `json:"psid,omitempty"`
	KeyID                 string    `json:"kid,omitempty"`
}

// MetadataFor derives the issuance record for t.
func MetadataFor(t Token, kid string) TokenMetadata {
	return TokenMetadata{
		JTI:                   t.JTI,
		SubjectPseudonym:      t.SubjectPseudonym,
		ScopeCount:            len(t.Scopes),
		Origins:               t.Origins,
		DeviceFingerprintHash: t.DeviceFingerprintHash,
		IssuedAt:              t.IssuedAt,
		ExpiresAt:             t.ExpiresAt,
		CorrelationID:         t.CorrelationID,
		ParentSessionID:       t.ParentSessionID,
		KeyID:                 kid,
	}
}

// Usage are the statistics updated after each successful verification.
type Usage struct {
	Count             int64
	LastUsedAt        time.Time
	LastRequestURL    string
	LastRequestMethod string
}

// TokenState is the lifecycle state reported by Status.
type TokenState string

const (
	StateActive   TokenState = "active"
	StateRevoked  TokenState = "revoked"
	StateExpired  TokenState = "expired"
	StateNotFound TokenState = "notFound"
)

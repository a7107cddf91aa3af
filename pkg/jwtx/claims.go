package jwtx

import (
	"github.com/golang-jwt/jwt/v5"
)

// PayloadVersion is the current receipt payload schema version.
const PayloadVersion = "1"

// ScopeClaim is a single (method, url pattern) grant on the wire.
type ScopeClaim struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Desc   string `json:"desc,omitempty"`
}

// PolicyClaim carries the behavioural policy signed into a receipt.
type PolicyClaim struct {
	RatePerSecond      float64 `json:"rate"`
	Burst              int     `json:"burst"`
	RequireDeviceMatch bool    `json:"device_match"`
	AllowConcurrent    bool    `json:"concurrent"`
	MaxPayloadBytes    int64   `json:"max_payload"`
	HumanSpeedJitter   bool    `json:"jitter"`
}

// Claims is the signed payload of a Limited Permission Receipt.
//
// Field order is the canonical wire order: encoding/json emits struct
// fields in declaration order, so the signed bytes are stable for equal
// values. Do not reorder.
type Claims struct {
	ID                string           `json:"jti"`
	Version           string           `json:"ver"`
	Subject           string           `json:"sub"`
	IssuedAt          *jwt.NumericDate `json:"iat"`
	ExpiresAt         *jwt.NumericDate `json:"exp"`
	DeviceFingerprint string           `json:"dfp"`
	Origins           []string         `json:"origins"`
	Scopes            []ScopeClaim     `json:"scopes"`
	Policy            PolicyClaim      `json:"policy"`
	CorrelationID     string           `json:"cid"`
	ParentSessionID   string           `json:"psid,omitempty"`
}

// The jwt.Claims interface. Expiry is checked by the caller's pipeline, not
// by the parser, so these are plain accessors.

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c Claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c Claims) GetIssuer() (string, error)                   { return "", nil }
func (c Claims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }

// validateShape rejects payloads that parsed as JSON but are not receipts.
func (c *Claims) validateShape() error {
	switch {
	case c.ID == "":
		return ErrMissingClaim("jti")
	case c.Version == "":
		return ErrMissingClaim("ver")
	case c.Subject == "":
		return ErrMissingClaim("sub")
	case c.IssuedAt == nil:
		return ErrMissingClaim("iat")
	case c.ExpiresAt == nil:
		return ErrMissingClaim("exp")
	case len(c.Scopes) == 0:
		return ErrMissingClaim("scopes")
	}
	return nil
}

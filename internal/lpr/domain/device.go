package domain

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// DeviceFingerprint is the client attribute set presented at issuance and
// verification. Only its stable core subset feeds the binding hash; the
// probe fields are accepted but never hashed since they vary between
// sessions on the same device.
type DeviceFingerprint struct {
	UserAgent        string `json:"user_agent"`
	AcceptLanguage   string `json:"accept_language"`
	Platform         string `json:"platform"`
	ScreenResolution string `json:"screen_resolution"`

	Timezone string `json:"timezone,omitempty"`
	Canvas   string `json:"canvas,omitempty"`
	WebGL    string `json:"webgl,omitempty"`
	Audio    string `json:"audio,omitempty"`
}

// fingerprintDomainKey separates device hashes from every other BLAKE3
// use. Changing it invalidates every issued binding.
var fingerprintDomainKey = [32]byte{
	'l', 'p', 'r', '.', 'd', 'e', 'v', 'i', 'c', 'e', '-', 'f', 'i', 'n', 'g', 'e',
	'r', 'p', 'r', 'i', 'n', 't', '.', 'v', '1', 0, 0, 0, 0, 0, 0, 0,
}

// Validate requires a user agent; the rest of the stable subset may be empty.
func (f DeviceFingerprint) Validate() error {
	if strings.TrimSpace(f.UserAgent) == "" {
		return fmt.Errorf("%w: user agent is required", ErrInvalidDevice)
	}
	return nil
}

// StableHash returns base64url(BLAKE3-keyed(stable subset)). Fields are
// normalised and length-prefixed so no two distinct inputs share an encoding.
func (f DeviceFingerprint) StableHash() string {
	h, err := blake3.NewKeyed(fingerprintDomainKey[:])
	if err != nil {
		panic("domain: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	for _, field := range []string{
		collapseSpaces(f.UserAgent),
		normaliseLanguage(f.AcceptLanguage),
		strings.ToLower(strings.TrimSpace(f.Platform)),
		strings.ToLower(strings.ReplaceAll(f.ScreenResolution, " ", "")),
	} {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(field)))
		h.Write(n[:])
		h.Write([]byte(field))
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// MatchesHash compares the stable hash against a stored one in constant time.
func (f DeviceFingerprint) MatchesHash(stored string) bool {
	return subtle.ConstantTimeCompare([]byte(f.StableHash()), []byte(stored)) == 1
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normaliseLanguage lower-cases the list and strips whitespace, so
// "en-US, en;q=0.9" and "en-us,en;q=0.9" hash the same.
func normaliseLanguage(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

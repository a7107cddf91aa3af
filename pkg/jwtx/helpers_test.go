package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/lpr/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T, alg string) jwtx.Signer {
	t.Helper()
	pemKey, err := jwtx.GenerateKey(alg)
	require.NoError(t, err)
	kid, err := jwtx.NewKeyID()
	require.NoError(t, err)
	s, err := jwtx.NewSigner(alg, kid, pemKey)
	require.NoError(t, err)
	return s
}

func sampleClaims(now time.Time) jwtx.Claims {
	return jwtx.Claims{
		ID:                "jti-abc",
		Version:           jwtx.PayloadVersion,
		Subject:           "pseudo-subject",
		IssuedAt:          jwt.NewNumericDate(now),
		ExpiresAt:         jwt.NewNumericDate(now.Add(30 * time.Minute)),
		DeviceFingerprint: "dfp-hash",
		Origins:           []string{"https://app.example.com", "https://*.example.org"},
		Scopes: []jwtx.ScopeClaim{
			{Method: "GET", URL: "https://api.example.com/users/*", Desc: "read users"},
			{Method: "POST", URL: "https://api.example.com/messages"},
		},
		Policy: jwtx.PolicyClaim{
			RatePerSecond:      2,
			Burst:              5,
			RequireDeviceMatch: true,
			MaxPayloadBytes:    1 << 20,
		},
		CorrelationID:   "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV",
		ParentSessionID: "sess-1",
	}
}

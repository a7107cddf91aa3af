package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/lpr/pkg/codec"
)

func sampleToken() Token {
	iat := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Token{
		JTI:                   "01HZX0000000000000000000AA",
		Version:               "1",
		SubjectPseudonym:      "pseudo",
		IssuedAt:              iat,
		ExpiresAt:             iat.Add(time.Hour),
		DeviceFingerprintHash: "dfp",
		Origins:               []string{"https://app.example.com"},
		Scopes:                []Scope{{Method: "GET", URLPattern: "/users/*", Description: "read users"}},
		Policy:                DefaultPolicy(),
		CorrelationID:         "corr-1",
		ParentSessionID:       "sess-1",
	}
}

func TestToken_ClaimsRoundTrip(t *testing.T) {
	tok := sampleToken()
	claims := tok.Claims()
	require.Equal(t, tok, TokenFromClaims(&claims))
}

func TestToken_Expired(t *testing.T) {
	tok := sampleToken()
	require.False(t, tok.Expired(tok.ExpiresAt))
	require.True(t, tok.Expired(tok.ExpiresAt.Add(time.Nanosecond)))
}

func TestMetadataFor(t *testing.T) {
	tok := sampleToken()
	md := MetadataFor(tok, "lpr-kid")
	require.Equal(t, 1, md.ScopeCount)
	require.Equal(t, "lpr-kid", md.KeyID)
	require.Equal(t, tok.ExpiresAt, md.ExpiresAt)
}

func TestAuditEntry_BodyIgnoresHashesAndEmptyDetails(t *testing.T) {
	e := AuditEntry{
		Sequence:  7,
		When:      time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC),
		EventType: EventVerified,
		Severity:  SeverityInfo,
		Result:    ResultSuccess,
		Details:   map[string]string{},
	}
	withNil := e
	withNil.Details = nil
	withNil.EntryHash = "h"
	withNil.Signature = "s"

	a, err := codec.Marshal(e.Body())
	require.NoError(t, err)
	b, err := codec.Marshal(withNil.Body())
	require.NoError(t, err)
	require.Equal(t, a, b)

	e.Details = map[string]string{"reason": "x"}
	c, err := codec.Marshal(e.Body())
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestSigningKey_Lifecycle(t *testing.T) {
	now := time.Now()
	k := &SigningKey{CreatedAt: now}
	require.True(t, k.IsActive())
	require.False(t, k.IsExpired(now))

	exp := now.Add(time.Hour)
	k.RetiredAt = &now
	k.ExpiresAt = &exp
	require.False(t, k.IsActive())
	require.False(t, k.IsExpired(now))
	require.True(t, k.IsExpired(exp))
}

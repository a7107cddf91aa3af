package http_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	lprhttp "github.com/aussiebroadwan/lpr/internal/lpr/http"
	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/service"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/internal/lpr/store/drivers/memory"
	"github.com/aussiebroadwan/lpr/pkg/clock"
	"github.com/aussiebroadwan/lpr/pkg/cryptox"
	"github.com/aussiebroadwan/lpr/pkg/httpx"
	"github.com/aussiebroadwan/lpr/pkg/idx"
	"github.com/aussiebroadwan/lpr/pkg/jwtx"
	"github.com/aussiebroadwan/lpr/pkg/lprsdk"
	"github.com/aussiebroadwan/lpr/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const (
	apiToken = "collaborator-token-0123456789"
	origin   = "https://shop.example.com"
)

type testServer struct {
	clock  *clock.FakeClock
	client *lprsdk.Client
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	fc := clock.Fake(time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC))
	st := memory.NewStore(fc)
	t.Cleanup(func() { _ = st.Close() })

	enc, err := cryptox.NewKeyEncrypter(bytes.Repeat([]byte{3}, cryptox.MinSecretSize))
	require.NoError(t, err)
	first, err := jwtx.SealKey(enc, idx.New().String(), jwtx.AlgorithmES256, fc.Now())
	require.NoError(t, err)
	require.NoError(t, st.SigningKeys().CreateSigningKey(ctx, store.SigningKeyFromRecord(first)))

	km, err := jwtx.NewKeyManager(ctx, jwtx.KeyManagerOptions{
		Source: jwtx.StoreKeySource{Store: store.NewKeyStoreAdapter(st.SigningKeys()), Encrypter: enc},
		Now:    fc.Now,
	})
	require.NoError(t, err)

	pseudonymizer, err := cryptox.NewPseudonymizer(bytes.Repeat([]byte{9}, cryptox.MinSecretSize))
	require.NoError(t, err)

	audit := &service.AuditService{Log: st.Audit(), Clock: fc, SignatureKey: []byte("audit-key")}
	lpr, err := service.NewLPRService(service.Options{
		Store:         st,
		Audit:         audit,
		Revocations:   service.NewRevocationService(st.Revocations(), fc, domain.DefaultTTLBounds.RetentionTTL(), slogx.Discard()),
		RateLimiter:   &service.RateLimiter{Buckets: st.Buckets(), Clock: fc},
		Keys:          km,
		Pseudonymizer: pseudonymizer,
		Clock:         fc,
		StoreTimeout:  time.Second,
	})
	require.NoError(t, err)

	router := lprhttp.NewRouter(km, []httpx.APIToken{httpx.NewAPIToken("checkout", apiToken)}, "test", st, st, slogx.Discard())
	router.LPRService = lpr
	router.AuditService = audit
	router.KeyRotationService = &service.KeyRotationService{
		Keys:       st.SigningKeys(),
		Encrypter:  enc,
		KeyManager: km,
		Audit:      audit,
		Algorithm:  jwtx.AlgorithmES256,
		Clock:      fc,
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{clock: fc, client: lprsdk.NewClient(srv.URL, apiToken)}
}

func device() lprsdk.DeviceFingerprint {
	return lprsdk.DeviceFingerprint{
		UserAgent:        "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) Safari/605.1.15",
		AcceptLanguage:   "en-AU",
		Platform:         "MacIntel",
		ScreenResolution: "2560x1440",
	}
}

func issueRequest() lprsdk.IssueRequest {
	return lprsdk.IssueRequest{
		SubjectID:  "customer-981",
		Device:     device(),
		Scopes:     []lprsdk.Scope{{Method: "POST", URL: "/cart/*"}, {Method: "GET", URL: "/products/*"}},
		Origins:    []string{origin},
		TTLSeconds: 900,
	}
}

func verifyRequest(token, method, url string) lprsdk.VerifyRequest {
	d := device()
	return lprsdk.VerifyRequest{Token: token, Method: method, URL: url, Origin: origin, Device: &d}
}

func TestReceiptLifecycle(t *testing.T) {
	t.Parallel()
	s := setupServer(t)
	ctx := context.Background()

	issued, err := s.client.Issue(ctx, issueRequest())
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token)
	require.Len(t, issued.JTI, 22)
	require.Equal(t, 15*time.Minute, issued.ExpiresAt.Sub(issued.IssuedAt))
	require.Equal(t, domain.DefaultPolicy().Burst, issued.Policy.Burst)

	verified, err := s.client.Verify(ctx, verifyRequest(issued.Token, "POST", "https://shop.example.com/cart/items"))
	require.NoError(t, err)
	require.True(t, verified.Valid)
	require.Equal(t, issued.JTI, verified.JTI)
	require.NotEqual(t, "customer-981", verified.SubjectPseudonym)

	status, err := s.client.Status(ctx, issued.JTI)
	require.NoError(t, err)
	require.Equal(t, lprsdk.StateActive, status.State)
	require.EqualValues(t, 1, status.Usage.Count)
	require.Equal(t, "POST", status.Usage.LastRequestMethod)
	require.Equal(t, 2, status.ScopeCount)

	revoked, err := s.client.Revoke(ctx, issued.JTI, "user logged out")
	require.NoError(t, err)
	require.False(t, revoked.Duplicate)
	require.Equal(t, "checkout", revoked.Revocation.RevokedBy)

	again, err := s.client.Revoke(ctx, issued.JTI, "second attempt")
	require.NoError(t, err)
	require.True(t, again.Duplicate)
	require.Equal(t, "user logged out", again.Revocation.Reason)

	_, err = s.client.Verify(ctx, verifyRequest(issued.Token, "POST", "https://shop.example.com/cart/items"))
	require.ErrorIs(t, err, lprsdk.ErrRevoked)
	require.True(t, lprsdk.IsRejection(err))

	status, err = s.client.Status(ctx, issued.JTI)
	require.NoError(t, err)
	require.Equal(t, lprsdk.StateRevoked, status.State)
	require.NotNil(t, status.Revocation)

	trail, err := s.client.AuditTrail(ctx, lprsdk.AuditQuery{JTI: issued.JTI})
	require.NoError(t, err)
	var events []string
	for _, e := range trail.Entries {
		events = append(events, e.EventType)
	}
	require.Equal(t, []string{
		string(domain.EventIssued),
		string(domain.EventVerified),
		string(domain.EventRevoked),
		string(domain.EventRevokeDuplicate),
		string(domain.EventRevokedUse),
	}, events)

	report, err := s.client.VerifyAuditChain(ctx, lprsdk.VerifyChainRequest{})
	require.NoError(t, err)
	require.True(t, report.Valid)
	require.Equal(t, len(trail.Entries), report.Checked)
}

func TestVerify_Rejections(t *testing.T) {
	t.Parallel()
	s := setupServer(t)
	ctx := context.Background()

	issued, err := s.client.Issue(ctx, issueRequest())
	require.NoError(t, err)

	otherDevice := device()
	otherDevice.Platform = "Win32"

	tests := []struct {
		name   string
		req    lprsdk.VerifyRequest
		want   *lprsdk.APIError
		status int
	}{
		{
			name:   "malformed",
			req:    verifyRequest("not-a-receipt", "GET", "/products/1"),
			want:   lprsdk.ErrMalformed,
			status: http.StatusBadRequest,
		},
		{
			name: "wrong origin",
			req: func() lprsdk.VerifyRequest {
				r := verifyRequest(issued.Token, "GET", "/products/1")
				r.Origin = "https://evil.example.com"
				return r
			}(),
			want:   lprsdk.ErrOriginNotAllowed,
			status: http.StatusForbidden,
		},
		{
			name:   "outside scopes",
			req:    verifyRequest(issued.Token, "DELETE", "/cart/items"),
			want:   lprsdk.ErrScopeNotAllowed,
			status: http.StatusForbidden,
		},
		{
			name: "different device",
			req: func() lprsdk.VerifyRequest {
				r := verifyRequest(issued.Token, "GET", "/products/1")
				r.Device = &otherDevice
				return r
			}(),
			want:   lprsdk.ErrDeviceMismatch,
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.client.Verify(ctx, tt.req)
			require.ErrorIs(t, err, tt.want)

			var apiErr *lprsdk.APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tt.status, apiErr.StatusCode)
		})
	}

	s.clock.Advance(16 * time.Minute)
	_, err = s.client.Verify(ctx, verifyRequest(issued.Token, "GET", "/products/1"))
	require.ErrorIs(t, err, lprsdk.ErrExpired)
}

func TestVerify_RateLimited(t *testing.T) {
	t.Parallel()
	s := setupServer(t)
	ctx := context.Background()

	req := issueRequest()
	req.Policy = &lprsdk.Policy{RatePerSecond: 1, Burst: 2, RequireDeviceMatch: true}
	issued, err := s.client.Issue(ctx, req)
	require.NoError(t, err)

	for range 2 {
		_, err := s.client.Verify(ctx, verifyRequest(issued.Token, "GET", "/products/1"))
		require.NoError(t, err)
	}

	_, err = s.client.Verify(ctx, verifyRequest(issued.Token, "GET", "/products/1"))
	require.ErrorIs(t, err, lprsdk.ErrRateLimitExceeded)
	require.False(t, lprsdk.IsRejection(err))
}

func TestIssue_InvalidRequests(t *testing.T) {
	t.Parallel()
	s := setupServer(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*lprsdk.IssueRequest)
	}{
		{"no subject", func(r *lprsdk.IssueRequest) { r.SubjectID = "" }},
		{"no scopes", func(r *lprsdk.IssueRequest) { r.Scopes = nil }},
		{"no origins", func(r *lprsdk.IssueRequest) { r.Origins = nil }},
		{"bad method", func(r *lprsdk.IssueRequest) { r.Scopes[0].Method = "FETCH" }},
		{"bad policy", func(r *lprsdk.IssueRequest) { r.Policy = &lprsdk.Policy{RatePerSecond: 0, Burst: 1} }},
		{"negative ttl", func(r *lprsdk.IssueRequest) { r.TTLSeconds = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := issueRequest()
			tt.mutate(&req)

			_, err := s.client.Issue(ctx, req)
			require.ErrorIs(t, err, lprsdk.ErrInvalidRequest)
		})
	}
}

func TestIssue_HugeTTLIsClampedToMax(t *testing.T) {
	t.Parallel()
	s := setupServer(t)
	ctx := context.Background()

	req := issueRequest()
	// Overflows time.Duration when converted to nanoseconds.
	req.TTLSeconds = 9_300_000_000_000

	issued, err := s.client.Issue(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultTTLBounds.Max, issued.ExpiresAt.Sub(issued.IssuedAt))
}

func TestAuthentication(t *testing.T) {
	t.Parallel()
	s := setupServer(t)
	ctx := context.Background()

	anonymous := lprsdk.NewClient(s.client.BaseURL, "wrong-token")
	_, err := anonymous.Issue(ctx, issueRequest())

	var apiErr *lprsdk.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, lprsdk.CodeInvalidToken, apiErr.Code)

	// Public endpoints need no token.
	jwks, err := anonymous.GetJWKS(ctx)
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 1)
}

func TestStatus_Unknown(t *testing.T) {
	t.Parallel()
	s := setupServer(t)

	status, err := s.client.Status(context.Background(), "never-issued")
	require.NoError(t, err)
	require.Equal(t, lprsdk.StateNotFound, status.State)
	require.Nil(t, status.ExpiresAt)
}

func TestKeyRotation(t *testing.T) {
	t.Parallel()
	s := setupServer(t)
	ctx := context.Background()

	before, err := s.client.Issue(ctx, issueRequest())
	require.NoError(t, err)

	rotated, err := s.client.RotateKey(ctx, lprsdk.RotateKeyRequest{RetireExisting: true})
	require.NoError(t, err)
	require.Len(t, rotated.RetiredKeys, 1)
	require.Equal(t, before.KeyID, rotated.RetiredKeys[0].Kid)
	require.NotNil(t, rotated.RetiredKeys[0].ExpiresAt)

	after, err := s.client.Issue(ctx, issueRequest())
	require.NoError(t, err)
	require.Equal(t, rotated.NewKey.Kid, after.KeyID)

	// Receipts signed by the retired key verify during the grace period.
	_, err = s.client.Verify(ctx, verifyRequest(before.Token, "GET", "/products/1"))
	require.NoError(t, err)

	jwks, err := s.client.GetJWKS(ctx)
	require.NoError(t, err)
	require.Len(t, jwks.Keys, 2)

	keys, err := s.client.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	require.ErrorIs(t, s.client.RetireKey(ctx, before.KeyID), lprsdk.ErrInvalidRequest)
	require.ErrorIs(t, s.client.RetireKey(ctx, "missing-kid"), lprsdk.ErrNotFound)
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s := setupServer(t)
	ctx := context.Background()

	live, err := s.client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := s.client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks.Store)
	require.Equal(t, "ok", ready.Checks.Signer)
}

func TestRequestIDPropagation(t *testing.T) {
	t.Parallel()
	s := setupServer(t)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, s.client.BaseURL+"/livez", nil)
	require.NoError(t, err)
	req.Header.Set(slogx.RequestIDHeader, "req-7f3a")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "req-7f3a", resp.Header.Get(slogx.RequestIDHeader))
}

package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/internal/lpr/store/drivers/memory"
	"github.com/aussiebroadwan/lpr/pkg/clock"
	"github.com/aussiebroadwan/lpr/pkg/cryptox"
	"github.com/aussiebroadwan/lpr/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	testOrigin = "https://app.example.com"
	testUA     = "Mozilla/5.0 (X11; Linux x86_64) Firefox/140.0"
)

type fixture struct {
	clock       *clock.FakeClock
	store       *memory.Store
	audit       *AuditService
	revocations *RevocationService
	keys        *jwtx.KeyManager
	svc         *LPRService
}

func newKeyManager(t *testing.T, c clock.Clock, kid string) *jwtx.KeyManager {
	t.Helper()

	pemData, err := jwtx.GenerateKey(jwtx.AlgorithmES256)
	require.NoError(t, err)

	km, err := jwtx.NewKeyManager(context.Background(), jwtx.KeyManagerOptions{
		Source: jwtx.StaticKeySource{{Kid: kid, Algorithm: jwtx.AlgorithmES256, PrivateKeyPEM: pemData}},
		Now:    c.Now,
	})
	require.NoError(t, err)
	return km
}

func newFixture(t *testing.T, configure ...func(*Options)) *fixture {
	t.Helper()

	fc := clock.Fake(testStart)
	st := memory.NewStore(fc)
	t.Cleanup(func() { _ = st.Close() })

	pseudonymizer, err := cryptox.NewPseudonymizer(bytes.Repeat([]byte{7}, cryptox.MinSecretSize))
	require.NoError(t, err)

	f := &fixture{
		clock:       fc,
		store:       st,
		audit:       &AuditService{Log: st.Audit(), Clock: fc, SignatureKey: []byte("audit-signature-key")},
		revocations: NewRevocationService(st.Revocations(), fc, domain.DefaultTTLBounds.RetentionTTL(), nil),
		keys:        newKeyManager(t, fc, "test-key"),
	}

	opts := Options{
		Store:         st,
		Audit:         f.audit,
		Revocations:   f.revocations,
		RateLimiter:   &RateLimiter{Buckets: st.Buckets(), Clock: fc},
		Keys:          f.keys,
		Pseudonymizer: pseudonymizer,
		Clock:         fc,
		StoreTimeout:  time.Second,
		JitterMin:     100 * time.Millisecond,
		JitterMax:     100 * time.Millisecond,
	}
	for _, fn := range configure {
		fn(&opts)
	}

	f.svc, err = NewLPRService(opts)
	require.NoError(t, err)
	return f
}

func device() domain.DeviceFingerprint {
	return domain.DeviceFingerprint{
		UserAgent:        testUA,
		AcceptLanguage:   "en-AU,en;q=0.9",
		Platform:         "Linux",
		ScreenResolution: "1920x1080",
	}
}

func scope(t *testing.T, method, pattern string) domain.Scope {
	t.Helper()
	s, err := domain.NewScope(method, pattern, "")
	require.NoError(t, err)
	return s
}

func (f *fixture) issue(t *testing.T, mutate ...func(*IssueRequest)) *Issued {
	t.Helper()

	req := IssueRequest{
		SubjectID: "user-42",
		Device:    device(),
		Scopes:    []domain.Scope{scope(t, "GET", "/users/*")},
		Origins:   []string{testOrigin},
		TTL:       10 * time.Minute,
	}
	for _, fn := range mutate {
		fn(&req)
	}

	issued, err := f.svc.Issue(context.Background(), req)
	require.NoError(t, err)
	return issued
}

func verifyReq(token string) VerifyRequest {
	d := device()
	return VerifyRequest{
		Token:  token,
		Method: "GET",
		URL:    "https://api.example.com/users/123",
		Origin: testOrigin,
		Device: &d,
	}
}

func (f *fixture) events(t *testing.T, jti string) []domain.EventType {
	t.Helper()
	page, err := f.svc.AuditTrail(context.Background(), AuditQuery{JTI: jti})
	require.NoError(t, err)

	out := make([]domain.EventType, len(page.Entries))
	for i, e := range page.Entries {
		out[i] = e.EventType
	}
	return out
}

func TestIssue(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	issued := f.issue(t)
	tok := issued.Token

	require.Len(t, tok.JTI, 22)
	require.Equal(t, jwtx.PayloadVersion, tok.Version)
	require.Equal(t, "test-key", issued.KeyID)
	require.Equal(t, testStart, tok.IssuedAt)
	require.Equal(t, testStart.Add(10*time.Minute), tok.ExpiresAt)
	require.NotEqual(t, "user-42", tok.SubjectPseudonym)
	require.Equal(t, device().StableHash(), tok.DeviceFingerprintHash)
	require.Equal(t, domain.DefaultPolicy(), tok.Policy)
	require.NotEmpty(t, tok.CorrelationID)
	require.Equal(t, 2, strings.Count(issued.Serialized, "."))
	require.NotContains(t, issued.Serialized, "user-42")

	md, err := f.store.Tokens().GetMetadata(context.Background(), tok.JTI)
	require.NoError(t, err)
	require.Equal(t, tok.CorrelationID, md.CorrelationID)
	require.Equal(t, "test-key", md.KeyID)

	require.Equal(t, []domain.EventType{domain.EventIssued}, f.events(t, tok.JTI))

	t.Run("subjects share a pseudonym", func(t *testing.T) {
		again := f.issue(t)
		require.Equal(t, tok.SubjectPseudonym, again.Token.SubjectPseudonym)
		require.NotEqual(t, tok.JTI, again.Token.JTI)
	})

	t.Run("correlation id is kept when supplied", func(t *testing.T) {
		got := f.issue(t, func(r *IssueRequest) { r.CorrelationID = "flow-1" })
		require.Equal(t, "flow-1", got.Token.CorrelationID)
	})
}

func TestIssue_TTLClamp(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name string
		ttl  time.Duration
		want time.Duration
	}{
		{"zero uses default", 0, time.Hour},
		{"below minimum", time.Minute, 5 * time.Minute},
		{"above maximum", 48 * time.Hour, 24 * time.Hour},
		{"within bounds", 30 * time.Minute, 30 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.issue(t, func(r *IssueRequest) { r.TTL = tt.ttl })
			require.Equal(t, tt.want, got.Token.ExpiresAt.Sub(got.Token.IssuedAt))
		})
	}
}

func TestIssue_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*IssueRequest)
		want   error
	}{
		{"missing subject", func(r *IssueRequest) { r.SubjectID = " " }, domain.ErrInvalidSubject},
		{"missing user agent", func(r *IssueRequest) { r.Device = domain.DeviceFingerprint{} }, domain.ErrInvalidDevice},
		{"no scopes", func(r *IssueRequest) { r.Scopes = nil }, domain.ErrNoScopes},
		{"bad scope method", func(r *IssueRequest) { r.Scopes = []domain.Scope{{Method: "TRACE", URLPattern: "/x"}} }, domain.ErrInvalidScope},
		{"no origins", func(r *IssueRequest) { r.Origins = nil }, domain.ErrNoOrigins},
		{"origin without scheme", func(r *IssueRequest) { r.Origins = []string{"example.com"} }, domain.ErrInvalidOrigin},
		{"zero rate policy", func(r *IssueRequest) { r.Policy = &domain.Policy{Burst: 1} }, domain.ErrInvalidPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := IssueRequest{
				SubjectID: "user-42",
				Device:    device(),
				Scopes:    []domain.Scope{scope(t, "GET", "/users/*")},
				Origins:   []string{testOrigin},
			}
			tt.mutate(&req)

			_, err := f.svc.Issue(context.Background(), req)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerify_Success(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	issued := f.issue(t)

	tok, err := f.svc.Verify(context.Background(), verifyReq(issued.Serialized))
	require.NoError(t, err)
	require.Equal(t, issued.Token.JTI, tok.JTI)
	require.Equal(t, issued.Token.Scopes, tok.Scopes)
	require.Equal(t, issued.Token.ExpiresAt, tok.ExpiresAt)

	usage, err := f.store.Tokens().GetUsage(context.Background(), tok.JTI)
	require.NoError(t, err)
	require.EqualValues(t, 1, usage.Count)
	require.Equal(t, "GET", usage.LastRequestMethod)

	require.Equal(t, []domain.EventType{domain.EventIssued, domain.EventVerified}, f.events(t, tok.JTI))
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	issued := f.issue(t)

	f.clock.Advance(10 * time.Minute)
	_, err := f.svc.Verify(context.Background(), verifyReq(issued.Serialized))
	require.NoError(t, err, "valid at exactly exp")

	f.clock.Advance(time.Second)
	_, err = f.svc.Verify(context.Background(), verifyReq(issued.Serialized))
	require.ErrorIs(t, err, ErrExpired)
	require.Equal(t, KindExpired, Kind(err))
}

func TestVerify_Signature(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	issued := f.issue(t)
	parts := strings.Split(issued.Serialized, ".")
	require.Len(t, parts, 3)

	t.Run("altered signature", func(t *testing.T) {
		sig := []byte(parts[2])
		i := len(sig) / 2
		if sig[i] == 'A' {
			sig[i] = 'B'
		} else {
			sig[i] = 'A'
		}
		tampered := parts[0] + "." + parts[1] + "." + string(sig)

		_, err := f.svc.Verify(context.Background(), verifyReq(tampered))
		require.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("payload from another receipt", func(t *testing.T) {
		other := strings.Split(f.issue(t).Serialized, ".")
		spliced := parts[0] + "." + other[1] + "." + parts[2]

		_, err := f.svc.Verify(context.Background(), verifyReq(spliced))
		require.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("unknown key", func(t *testing.T) {
		foreign := newKeyManager(t, f.clock, "foreign-key")
		token, err := foreign.Encode(issued.Token.Claims())
		require.NoError(t, err)

		_, err = f.svc.Verify(context.Background(), verifyReq(token))
		require.ErrorIs(t, err, ErrSignatureInvalid)
		require.Equal(t, KindSignatureInvalid, Kind(err))
	})

	t.Run("malformed", func(t *testing.T) {
		for _, token := range []string{"", "not-a-token", "a.b.c", parts[0] + "." + parts[1]} {
			_, err := f.svc.Verify(context.Background(), verifyReq(token))
			require.ErrorIs(t, err, ErrMalformed, token)
		}
	})
}

func TestVerify_Revocation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	issued := f.issue(t)
	jti := issued.Token.JTI

	res, err := f.svc.Revoke(context.Background(), RevokeRequest{JTI: jti, Reason: "lost laptop", RevokedBy: "admin"})
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.Equal(t, issued.Token.ExpiresAt, res.Entry.OriginalExpiresAt)
	require.Equal(t, issued.Token.SubjectPseudonym, res.Entry.SubjectPseudonym)

	_, err = f.svc.Verify(context.Background(), verifyReq(issued.Serialized))
	require.ErrorIs(t, err, ErrRevoked)

	t.Run("sticky for a node without the cached entry", func(t *testing.T) {
		fresh := NewRevocationService(f.store.Revocations(), f.clock, time.Hour, nil)
		revoked, err := fresh.IsRevoked(context.Background(), jti)
		require.NoError(t, err)
		require.True(t, revoked)
	})

	t.Run("expiry is checked first", func(t *testing.T) {
		f.clock.Advance(11 * time.Minute)
		_, err := f.svc.Verify(context.Background(), verifyReq(issued.Serialized))
		require.ErrorIs(t, err, ErrExpired)
	})
}

func TestRevoke_Idempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	issued := f.issue(t)
	jti := issued.Token.JTI

	first, err := f.svc.Revoke(context.Background(), RevokeRequest{JTI: jti, Reason: "first", RevokedBy: "a"})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	second, err := f.svc.Revoke(context.Background(), RevokeRequest{JTI: jti, Reason: "second", RevokedBy: "b"})
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Equal(t, first.Entry, second.Entry)

	require.Equal(t, []domain.EventType{
		domain.EventIssued,
		domain.EventRevoked,
		domain.EventRevokeDuplicate,
	}, f.events(t, jti))

	t.Run("unknown jti", func(t *testing.T) {
		res, err := f.svc.Revoke(context.Background(), RevokeRequest{JTI: "never-issued", Reason: "precaution"})
		require.NoError(t, err)
		require.Equal(t, f.clock.Now().Add(domain.DefaultTTLBounds.Max), res.Entry.OriginalExpiresAt)
		require.Empty(t, res.Entry.SubjectPseudonym)
	})

	t.Run("empty jti", func(t *testing.T) {
		_, err := f.svc.Revoke(context.Background(), RevokeRequest{})
		require.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestVerify_OriginAndScope(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	issued := f.issue(t, func(r *IssueRequest) {
		r.Scopes = []domain.Scope{scope(t, "GET", "/users/*"), scope(t, "POST", "/messages")}
		r.Policy = &domain.Policy{RatePerSecond: 100, Burst: 100}
	})

	tests := []struct {
		name   string
		mutate func(*VerifyRequest)
		want   error
	}{
		{"granted read", func(r *VerifyRequest) {}, nil},
		{"granted write", func(r *VerifyRequest) { r.Method, r.URL = "POST", "/messages" }, nil},
		{"wrong method", func(r *VerifyRequest) { r.Method = "DELETE" }, ErrScopeNotAllowed},
		{"wrong path", func(r *VerifyRequest) { r.URL = "/accounts/1" }, ErrScopeNotAllowed},
		{"write to read path", func(r *VerifyRequest) { r.Method = "POST" }, ErrScopeNotAllowed},
		{"foreign origin", func(r *VerifyRequest) { r.Origin = "https://evil.example.com" }, ErrOriginNotAllowed},
		{"missing origin", func(r *VerifyRequest) { r.Origin = "" }, ErrOriginNotAllowed},
		{"origin checked before scope", func(r *VerifyRequest) { r.Origin, r.Method = "https://evil.example.com", "DELETE" }, ErrOriginNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := verifyReq(issued.Serialized)
			tt.mutate(&req)

			_, err := f.svc.Verify(context.Background(), req)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}

	page, err := f.svc.AuditTrail(context.Background(), AuditQuery{JTI: issued.Token.JTI})
	require.NoError(t, err)
	var violations int
	for _, e := range page.Entries {
		if e.EventType == domain.EventScopeViolation {
			violations++
			require.Equal(t, domain.SeverityCritical, e.Severity)
			require.Equal(t, domain.ResultFailure, e.Result)
		}
	}
	require.Equal(t, 3, violations)
}

func TestVerify_DeviceBinding(t *testing.T) {
	t.Parallel()

	other := device()
	other.UserAgent = "curl/8.0"

	t.Run("enforced by policy", func(t *testing.T) {
		f := newFixture(t)
		issued := f.issue(t)

		req := verifyReq(issued.Serialized)
		req.Device = &other
		_, err := f.svc.Verify(context.Background(), req)
		require.ErrorIs(t, err, ErrDeviceMismatch)
		require.Equal(t, KindDeviceMismatch, Kind(err))

		probe := device()
		probe.Canvas = "changed-every-session"
		req.Device = &probe
		_, err = f.svc.Verify(context.Background(), req)
		require.NoError(t, err, "probe fields are not bound")
	})

	t.Run("skipped without a presented fingerprint", func(t *testing.T) {
		f := newFixture(t)
		issued := f.issue(t)

		req := verifyReq(issued.Serialized)
		req.Device = nil
		_, err := f.svc.Verify(context.Background(), req)
		require.NoError(t, err)
	})

	t.Run("disabled by policy", func(t *testing.T) {
		f := newFixture(t)
		issued := f.issue(t, func(r *IssueRequest) {
			r.Policy = &domain.Policy{RatePerSecond: 1, Burst: 5}
		})

		req := verifyReq(issued.Serialized)
		req.Device = &other
		_, err := f.svc.Verify(context.Background(), req)
		require.NoError(t, err)
	})
}

func TestVerify_RateLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	issued := f.issue(t, func(r *IssueRequest) {
		r.Policy = &domain.Policy{RatePerSecond: 1, Burst: 2, RequireDeviceMatch: true}
	})
	req := verifyReq(issued.Serialized)

	for range 2 {
		_, err := f.svc.Verify(context.Background(), req)
		require.NoError(t, err)
	}
	_, err := f.svc.Verify(context.Background(), req)
	require.ErrorIs(t, err, ErrRateLimitExceeded)

	f.clock.Advance(500 * time.Millisecond)
	_, err = f.svc.Verify(context.Background(), req)
	require.ErrorIs(t, err, ErrRateLimitExceeded)

	f.clock.Advance(500 * time.Millisecond)
	_, err = f.svc.Verify(context.Background(), req)
	require.NoError(t, err)

	t.Run("rejections before the bucket do not consume", func(t *testing.T) {
		fresh := f.issue(t, func(r *IssueRequest) {
			r.Policy = &domain.Policy{RatePerSecond: 1, Burst: 1}
		})
		bad := verifyReq(fresh.Serialized)
		bad.Method = "DELETE"
		for range 3 {
			_, err := f.svc.Verify(context.Background(), bad)
			require.ErrorIs(t, err, ErrScopeNotAllowed)
		}
		_, err := f.svc.Verify(context.Background(), verifyReq(fresh.Serialized))
		require.NoError(t, err)
	})
}

func TestVerify_Jitter(t *testing.T) {
	t.Parallel()
	jittery := func(r *IssueRequest) {
		r.Policy = &domain.Policy{RatePerSecond: 1, Burst: 5, HumanSpeedJitter: true}
	}

	t.Run("completes after the delay", func(t *testing.T) {
		f := newFixture(t)
		issued := f.issue(t, jittery)

		done := make(chan error, 1)
		go func() {
			_, err := f.svc.Verify(context.Background(), verifyReq(issued.Serialized))
			done <- err
		}()

		f.clock.WaitForTimers(1)
		select {
		case <-done:
			t.Fatal("verification finished before the jitter elapsed")
		default:
		}
		f.clock.Advance(100 * time.Millisecond)
		require.NoError(t, <-done)
	})

	t.Run("cancellation aborts", func(t *testing.T) {
		f := newFixture(t)
		issued := f.issue(t, jittery)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := f.svc.Verify(ctx, verifyReq(issued.Serialized))
			done <- err
		}()

		f.clock.WaitForTimers(1)
		cancel()
		err := <-done
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, KindStoreUnavailable, Kind(err))

		events := f.events(t, issued.Token.JTI)
		require.Equal(t, domain.EventVerifyAborted, events[len(events)-1])

		usage, err := f.store.Tokens().GetUsage(context.Background(), issued.Token.JTI)
		require.NoError(t, err)
		require.Zero(t, usage.Count)
	})
}

type failingRevocations struct {
	store.Revocations
	err error
}

func (f failingRevocations) GetRevocation(context.Context, string) (domain.RevocationEntry, error) {
	return domain.RevocationEntry{}, f.err
}

type stalledRevocations struct {
	store.Revocations
}

func (stalledRevocations) GetRevocation(ctx context.Context, _ string) (domain.RevocationEntry, error) {
	<-ctx.Done()
	return domain.RevocationEntry{}, ctx.Err()
}

func TestVerify_StoreUnavailable(t *testing.T) {
	t.Parallel()

	t.Run("store error fails closed", func(t *testing.T) {
		f := newFixture(t)
		issued := f.issue(t)

		broken := NewRevocationService(failingRevocations{f.store.Revocations(), errors.New("connection refused")}, f.clock, time.Hour, nil)
		f.svc.revocations = broken

		_, err := f.svc.Verify(context.Background(), verifyReq(issued.Serialized))
		require.ErrorIs(t, err, ErrStoreUnavailable)
		require.Equal(t, KindStoreUnavailable, Kind(err))

		events := f.events(t, issued.Token.JTI)
		require.Equal(t, domain.EventVerifyUnavailable, events[len(events)-1])
	})

	t.Run("slow store times out", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.StoreTimeout = 10 * time.Millisecond })
		issued := f.issue(t)
		f.svc.revocations = NewRevocationService(stalledRevocations{f.store.Revocations()}, f.clock, time.Hour, nil)

		_, err := f.svc.Verify(context.Background(), verifyReq(issued.Serialized))
		require.ErrorIs(t, err, ErrStoreUnavailable)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		events := f.events(t, issued.Token.JTI)
		require.Equal(t, domain.EventVerifyUnavailable, events[len(events)-1])
	})
}

func TestStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	active := f.issue(t)
	revoked := f.issue(t)
	_, err := f.svc.Revoke(ctx, RevokeRequest{JTI: revoked.Token.JTI, Reason: "test"})
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, verifyReq(active.Serialized))
	require.NoError(t, err)

	st, err := f.svc.Status(ctx, active.Token.JTI)
	require.NoError(t, err)
	require.Equal(t, domain.StateActive, st.State)
	require.EqualValues(t, 1, st.Usage.Count)
	require.Nil(t, st.Revocation)

	st, err = f.svc.Status(ctx, revoked.Token.JTI)
	require.NoError(t, err)
	require.Equal(t, domain.StateRevoked, st.State)
	require.Equal(t, "test", st.Revocation.Reason)

	st, err = f.svc.Status(ctx, "missing")
	require.NoError(t, err)
	require.Equal(t, domain.StateNotFound, st.State)

	f.clock.Advance(11 * time.Minute)
	st, err = f.svc.Status(ctx, active.Token.JTI)
	require.NoError(t, err)
	require.Equal(t, domain.StateExpired, st.State)

	_, err = f.svc.Status(ctx, "")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNewLPRService_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	base := Options{
		Store:         f.store,
		Audit:         f.audit,
		Revocations:   f.revocations,
		RateLimiter:   &RateLimiter{Buckets: f.store.Buckets()},
		Keys:          f.keys,
		Pseudonymizer: f.svc.pseudonymizer,
	}

	svc, err := NewLPRService(base)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultTTLBounds, svc.TTLBounds())
	require.Equal(t, DefaultStoreTimeout, svc.storeTimeout)

	noKeys := base
	noKeys.Keys = nil
	_, err = NewLPRService(noKeys)
	require.ErrorIs(t, err, ErrKeyManagerMissing)

	badTTL := base
	badTTL.TTL = domain.TTLBounds{Min: time.Hour, Default: time.Minute, Max: 2 * time.Hour}
	_, err = NewLPRService(badTTL)
	require.ErrorIs(t, err, domain.ErrInvalidPolicy)

	badJitter := base
	badJitter.JitterMin, badJitter.JitterMax = time.Second, time.Millisecond
	_, err = NewLPRService(badJitter)
	require.Error(t, err)
}

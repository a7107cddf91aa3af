package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/store"
	"github.com/aussiebroadwan/lpr/pkg/clock"
	"github.com/aussiebroadwan/lpr/pkg/cryptox"
	"github.com/aussiebroadwan/lpr/pkg/idx"
	"github.com/aussiebroadwan/lpr/pkg/jwtx"
	"github.com/aussiebroadwan/lpr/pkg/slogx"
)

const (
	DefaultStoreTimeout = 50 * time.Millisecond
	DefaultJitterMin    = 100 * time.Millisecond
	DefaultJitterMax    = 500 * time.Millisecond
)

// Options configures NewLPRService. Store, Audit, Revocations, RateLimiter,
// Keys and Pseudonymizer are required.
type Options struct {
	Store         store.State
	Audit         *AuditService
	Revocations   *RevocationService
	RateLimiter   *RateLimiter
	Keys          *jwtx.KeyManager
	Pseudonymizer *cryptox.Pseudonymizer

	Clock         clock.Clock
	TTL           domain.TTLBounds
	DefaultPolicy *domain.Policy

	// StoreTimeout bounds every substrate round trip on the verification path.
	StoreTimeout time.Duration
	JitterMin    time.Duration
	JitterMax    time.Duration
}

// LPRService issues and verifies Limited Permission Receipts.
type LPRService struct {
	store         store.State
	audit         *AuditService
	revocations   *RevocationService
	limiter       *RateLimiter
	keys          *jwtx.KeyManager
	pseudonymizer *cryptox.Pseudonymizer

	clock         clock.Clock
	ttl           domain.TTLBounds
	defaultPolicy domain.Policy
	storeTimeout  time.Duration
	jitterMin     time.Duration
	jitterMax     time.Duration
}

// NewLPRService validates opts and applies defaults.
func NewLPRService(opts Options) (*LPRService, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("lpr: store is required")
	case opts.Audit == nil:
		return nil, errors.New("lpr: audit service is required")
	case opts.Revocations == nil:
		return nil, errors.New("lpr: revocation service is required")
	case opts.RateLimiter == nil:
		return nil, errors.New("lpr: rate limiter is required")
	case opts.Keys == nil:
		return nil, ErrKeyManagerMissing
	case opts.Pseudonymizer == nil:
		return nil, errors.New("lpr: pseudonymizer is required")
	}

	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.TTL == (domain.TTLBounds{}) {
		opts.TTL = domain.DefaultTTLBounds
	}
	if err := opts.TTL.Validate(); err != nil {
		return nil, err
	}

	policy := domain.DefaultPolicy()
	if opts.DefaultPolicy != nil {
		policy = *opts.DefaultPolicy
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("lpr: default policy: %w", err)
	}

	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.JitterMin <= 0 && opts.JitterMax <= 0 {
		opts.JitterMin, opts.JitterMax = DefaultJitterMin, DefaultJitterMax
	}
	if opts.JitterMax < opts.JitterMin {
		return nil, fmt.Errorf("lpr: jitter max %s below min %s", opts.JitterMax, opts.JitterMin)
	}

	return &LPRService{
		store:         opts.Store,
		audit:         opts.Audit,
		revocations:   opts.Revocations,
		limiter:       opts.RateLimiter,
		keys:          opts.Keys,
		pseudonymizer: opts.Pseudonymizer,
		clock:         opts.Clock,
		ttl:           opts.TTL,
		defaultPolicy: policy,
		storeTimeout:  opts.StoreTimeout,
		jitterMin:     opts.JitterMin,
		jitterMax:     opts.JitterMax,
	}, nil
}

// TTLBounds returns the issuance lifetime limits in force.
func (s *LPRService) TTLBounds() domain.TTLBounds { return s.ttl }

// storeCall runs fn with the per-call store timeout. Any failure becomes
// ErrStoreUnavailable.
func (s *LPRService) storeCall(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
	}
	return nil
}

// appendAudit writes an audit entry. It ignores cancellation of ctx so a
// caller giving up never suppresses the record of what happened.
func (s *LPRService) appendAudit(ctx context.Context, rec domain.AuditRecord) error {
	return s.storeCall(context.WithoutCancel(ctx), "audit append", func(ctx context.Context) error {
		_, err := s.audit.Append(ctx, rec)
		return err
	})
}

// IssueRequest asks for a new receipt.
type IssueRequest struct {
	SubjectID       string
	Device          domain.DeviceFingerprint
	Scopes          []domain.Scope
	Origins         []string
	Policy          *domain.Policy
	TTL             time.Duration
	ParentSessionID string
	// CorrelationID links the receipt's audit entries; generated when empty.
	CorrelationID string
}

// Issued is a signed receipt.
type Issued struct {
	Token      domain.Token
	Serialized string
	KeyID      string
}

// Issue builds, signs and records a receipt. Requested lifetimes are
// clamped into the configured bounds; impossible requests are rejected.
func (s *LPRService) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	if strings.TrimSpace(req.SubjectID) == "" {
		return nil, domain.ErrInvalidSubject
	}
	if err := req.Device.Validate(); err != nil {
		return nil, err
	}
	if len(req.Scopes) == 0 {
		return nil, domain.ErrNoScopes
	}

	scopes := make([]domain.Scope, len(req.Scopes))
	for i, sc := range req.Scopes {
		normalised, err := domain.NewScope(sc.Method, sc.URLPattern, sc.Description)
		if err != nil {
			return nil, err
		}
		scopes[i] = normalised
	}

	origins, err := domain.NewOriginAllowlist(req.Origins)
	if err != nil {
		return nil, err
	}

	policy := s.defaultPolicy
	if req.Policy != nil {
		policy = *req.Policy
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	jti, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, fmt.Errorf("lpr: generate jti: %w", err)
	}

	cid := req.CorrelationID
	if cid == "" {
		cid = idx.New().String()
	}

	// Receipt timestamps carry whole seconds.
	now := s.clock.Now().Truncate(time.Second)
	token := domain.Token{
		JTI:                   jti,
		Version:               jwtx.PayloadVersion,
		SubjectPseudonym:      s.pseudonymizer.Pseudonym(req.SubjectID),
		IssuedAt:              now,
		ExpiresAt:             now.Add(s.ttl.Clamp(req.TTL)),
		DeviceFingerprintHash: req.Device.StableHash(),
		Origins:               origins,
		Scopes:                scopes,
		Policy:                policy,
		CorrelationID:         cid,
		ParentSessionID:       req.ParentSessionID,
	}

	signer := s.keys.Signer()
	if signer == nil {
		return nil, jwtx.ErrNoSigner
	}
	serialized, err := jwtx.Encode(token.Claims(), signer)
	if err != nil {
		return nil, fmt.Errorf("lpr: sign receipt: %w", err)
	}

	md := domain.MetadataFor(token, signer.KID())
	if err := s.storeCall(ctx, "put metadata", func(ctx context.Context) error {
		return s.store.Tokens().PutMetadata(ctx, md, s.ttl.RetentionTTL())
	}); err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, domain.AuditRecord{
		EventType:     domain.EventIssued,
		Result:        domain.ResultSuccess,
		Who:           token.SubjectPseudonym,
		What:          fmt.Sprintf("issued receipt with %d scopes", len(scopes)),
		Where:         strings.Join(origins, " "),
		Why:           "delegated authority granted",
		How:           "issue",
		CorrelationID: cid,
		JTI:           jti,
		Details: map[string]string{
			"expires_at": token.ExpiresAt.Format(time.RFC3339),
			"kid":        signer.KID(),
		},
	}); err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("receipt issued",
		slog.String("jti", jti),
		slog.String("correlation_id", cid),
		slog.Time("expires_at", token.ExpiresAt),
	)
	return &Issued{Token: token, Serialized: serialized, KeyID: signer.KID()}, nil
}

// VerifyRequest is a receipt presented with the request it should authorise.
type VerifyRequest struct {
	Token  string
	Method string
	URL    string
	Origin string
	// Device is compared with the bound fingerprint when the policy asks.
	Device *domain.DeviceFingerprint
}

// Verify runs the verification pipeline. Checks run in a fixed order and
// the first failure wins: signature, expiry, revocation, origin, scope,
// device, rate limit. Every outcome is written to the audit log.
func (s *LPRService) Verify(ctx context.Context, req VerifyRequest) (*domain.Token, error) {
	token, err := s.verify(ctx, req)

	rec := domain.AuditRecord{
		Who:   "unknown",
		What:  req.Method + " " + req.URL,
		Where: req.Origin,
		How:   "verify",
	}
	if token != nil {
		rec.Who = token.SubjectPseudonym
		rec.CorrelationID = token.CorrelationID
		rec.JTI = token.JTI
	}

	l := slogx.FromContext(ctx)
	if err != nil {
		rec.EventType = failureEvent(err)
		rec.Result = domain.ResultFailure
		rec.Why = string(Kind(err))
		if auditErr := s.appendAudit(ctx, rec); auditErr != nil {
			l.Error("audit append failed for rejected receipt", "jti", rec.JTI, "error", auditErr)
		}

		attrs := []any{"jti", rec.JTI, "kind", Kind(err), "correlation_id", rec.CorrelationID}
		if Kind(err) == KindStoreUnavailable {
			l.Error("receipt verification unavailable", append(attrs, "error", err)...)
		} else {
			l.Warn("receipt rejected", attrs...)
		}
		return nil, err
	}

	rec.EventType = domain.EventVerified
	rec.Result = domain.ResultSuccess
	rec.Why = "authorised"
	if err := s.appendAudit(ctx, rec); err != nil {
		l.Error("audit append failed for verified receipt", "jti", rec.JTI, "error", err)
		return nil, err
	}
	return token, nil
}

// verify runs the checks. It returns the decoded token, when there is one,
// alongside any failure so the caller can attribute the audit entry.
func (s *LPRService) verify(ctx context.Context, req VerifyRequest) (*domain.Token, error) {
	claims, err := s.keys.Decode(req.Token)
	switch {
	case errors.Is(err, jwtx.ErrInvalidSig):
		return nil, fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	token := domain.TokenFromClaims(claims)

	if token.Expired(s.clock.Now()) {
		return &token, ErrExpired
	}

	var revoked bool
	if err := s.storeCall(ctx, "revocation lookup", func(ctx context.Context) error {
		revoked, err = s.revocations.IsRevoked(ctx, token.JTI)
		return err
	}); err != nil {
		return &token, err
	}
	if revoked {
		return &token, ErrRevoked
	}

	if !domain.OriginAllowed(token.Origins, req.Origin) {
		return &token, ErrOriginNotAllowed
	}

	if !domain.AnyScopeMatches(token.Scopes, req.Method, req.URL) {
		return &token, ErrScopeNotAllowed
	}

	if token.Policy.RequireDeviceMatch && req.Device != nil {
		if !req.Device.MatchesHash(token.DeviceFingerprintHash) {
			return &token, ErrDeviceMismatch
		}
	}

	var allowed bool
	if err := s.storeCall(ctx, "rate limit", func(ctx context.Context) error {
		allowed, err = s.limiter.Allow(ctx, token.JTI, token.Policy)
		return err
	}); err != nil {
		return &token, err
	}
	if !allowed {
		return &token, ErrRateLimitExceeded
	}

	if token.Policy.HumanSpeedJitter {
		if err := s.jitter(ctx); err != nil {
			return &token, err
		}
	}

	now := s.clock.Now()
	if err := s.storeCall(ctx, "record usage", func(ctx context.Context) error {
		return s.store.Tokens().RecordUsage(ctx, token.JTI, now, req.Method, req.URL, s.ttl.RetentionTTL())
	}); err != nil {
		slogx.FromContext(ctx).Error("usage update failed", "jti", token.JTI, "error", err)
	}
	return &token, nil
}

// jitter sleeps for a random duration in [jitterMin, jitterMax] or until
// ctx is done.
func (s *LPRService) jitter(ctx context.Context) error {
	d := s.jitterMin
	if spread := s.jitterMax - s.jitterMin; spread > 0 {
		d += rand.N(spread + 1)
	}

	select {
	case <-s.clock.After(d):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("verification aborted during jitter: %w", ctx.Err())
	}
}

// RevokeRequest names the receipt to revoke.
type RevokeRequest struct {
	JTI       string
	Reason    string
	RevokedBy string
}

// RevokeResult reports the stored revocation.
type RevokeResult struct {
	Entry     domain.RevocationEntry
	Duplicate bool
}

// Revoke marks a receipt revoked on every node. Revoking twice succeeds and
// keeps the first record. Store failures are returned, never hidden.
func (s *LPRService) Revoke(ctx context.Context, req RevokeRequest) (*RevokeResult, error) {
	jti := strings.TrimSpace(req.JTI)
	if jti == "" {
		return nil, fmt.Errorf("%w: jti is required", ErrInvalidRequest)
	}

	now := s.clock.Now()
	entry := domain.RevocationEntry{
		JTI:       jti,
		RevokedAt: now,
		Reason:    req.Reason,
		RevokedBy: req.RevokedBy,
		// Unknown receipts are revoked for the longest lifetime one could have.
		OriginalExpiresAt: now.Add(s.ttl.Max),
	}

	var cid string
	var md domain.TokenMetadata
	err := s.storeCall(ctx, "get metadata", func(ctx context.Context) (err error) {
		md, err = s.store.Tokens().GetMetadata(ctx, jti)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if md.JTI != "" {
		entry.OriginalExpiresAt = md.ExpiresAt
		entry.SubjectPseudonym = md.SubjectPseudonym
		cid = md.CorrelationID
	}

	var stored domain.RevocationEntry
	var created bool
	if err := s.storeCall(ctx, "revoke", func(ctx context.Context) (err error) {
		stored, created, err = s.revocations.Revoke(ctx, entry)
		return err
	}); err != nil {
		return nil, err
	}

	event := domain.EventRevoked
	what := "receipt revoked"
	if !created {
		event = domain.EventRevokeDuplicate
		what = "duplicate revocation ignored"
	}
	if err := s.appendAudit(ctx, domain.AuditRecord{
		EventType:     event,
		Result:        domain.ResultSuccess,
		Who:           req.RevokedBy,
		What:          what,
		Why:           req.Reason,
		How:           "revoke",
		CorrelationID: cid,
		JTI:           jti,
		Details:       map[string]string{"first_revoked_at": stored.RevokedAt.Format(time.RFC3339Nano)},
	}); err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("receipt revoked", "jti", jti, "duplicate", !created, "correlation_id", cid)
	return &RevokeResult{Entry: stored, Duplicate: !created}, nil
}

// StatusResult describes a receipt's lifecycle state.
type StatusResult struct {
	State      domain.TokenState
	Metadata   *domain.TokenMetadata
	Revocation *domain.RevocationEntry
	Usage      domain.Usage
}

// Status reports whether jti is active, revoked, expired or unknown.
func (s *LPRService) Status(ctx context.Context, jti string) (*StatusResult, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil, fmt.Errorf("%w: jti is required", ErrInvalidRequest)
	}

	res := &StatusResult{State: domain.StateNotFound}
	err := s.storeCall(ctx, "status", func(ctx context.Context) error {
		md, err := s.store.Tokens().GetMetadata(ctx, jti)
		switch {
		case err == nil:
			res.Metadata = &md
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		rev, err := s.revocations.Get(ctx, jti)
		switch {
		case err == nil:
			res.Revocation = &rev
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		res.Usage, err = s.store.Tokens().GetUsage(ctx, jti)
		return err
	})
	if err != nil {
		return nil, err
	}

	switch {
	case res.Revocation != nil:
		res.State = domain.StateRevoked
	case res.Metadata == nil:
		res.State = domain.StateNotFound
	case s.clock.Now().After(res.Metadata.ExpiresAt):
		res.State = domain.StateExpired
	default:
		res.State = domain.StateActive
	}
	return res, nil
}

// AuditTrail returns a page of audit entries for a receipt or correlation id.
func (s *LPRService) AuditTrail(ctx context.Context, q AuditQuery) (AuditPage, error) {
	return s.audit.Trail(ctx, q)
}

package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
)

// Verification failures. Each maps to exactly one ErrorKind.
var (
	ErrMalformed         = errors.New("malformed")
	ErrSignatureInvalid  = errors.New("signature_invalid")
	ErrExpired           = errors.New("expired")
	ErrRevoked           = errors.New("revoked")
	ErrOriginNotAllowed  = errors.New("origin_not_allowed")
	ErrScopeNotAllowed   = errors.New("scope_not_allowed")
	ErrDeviceMismatch    = errors.New("device_mismatch")
	ErrRateLimitExceeded = errors.New("rate_limit_exceeded")
	ErrStoreUnavailable  = errors.New("store_unavailable")
)

var (
	ErrInvalidRequest    = errors.New("invalid_request")
	ErrNotFound          = errors.New("not_found")
	ErrAuditContention   = errors.New("audit: too many concurrent appends")
	ErrKeyManagerMissing = errors.New("key manager is required")
)

// ErrorKind is the stable classification of a verification outcome that
// callers map to transport status codes.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindMalformed         ErrorKind = "malformed"
	KindSignatureInvalid  ErrorKind = "signature_invalid"
	KindExpired           ErrorKind = "expired"
	KindRevoked           ErrorKind = "revoked"
	KindOriginNotAllowed  ErrorKind = "origin_not_allowed"
	KindScopeNotAllowed   ErrorKind = "scope_not_allowed"
	KindDeviceMismatch    ErrorKind = "device_mismatch"
	KindRateLimitExceeded ErrorKind = "rate_limit_exceeded"
	KindStoreUnavailable  ErrorKind = "store_unavailable"
)

var kinds = []struct {
	err   error
	kind  ErrorKind
	event domain.EventType
}{
	{ErrMalformed, KindMalformed, domain.EventMalformed},
	{ErrSignatureInvalid, KindSignatureInvalid, domain.EventSignatureInvalid},
	{ErrExpired, KindExpired, domain.EventExpired},
	{ErrRevoked, KindRevoked, domain.EventRevokedUse},
	{ErrOriginNotAllowed, KindOriginNotAllowed, domain.EventOriginMismatch},
	{ErrScopeNotAllowed, KindScopeNotAllowed, domain.EventScopeViolation},
	{ErrDeviceMismatch, KindDeviceMismatch, domain.EventDeviceMismatch},
	{ErrRateLimitExceeded, KindRateLimitExceeded, domain.EventRateLimited},
	{ErrStoreUnavailable, KindStoreUnavailable, domain.EventVerifyUnavailable},
}

// Kind classifies err. Anything unrecognised, cancellation included, is
// KindStoreUnavailable: a verification that could not complete is a denial.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindStoreUnavailable
}

// failureEvent picks the audit event recording a failed verification.
func failureEvent(err error) domain.EventType {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if !errors.Is(err, ErrStoreUnavailable) {
			return domain.EventVerifyAborted
		}
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.event
		}
	}
	return domain.EventVerifyUnavailable
}

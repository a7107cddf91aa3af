package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/lpr/internal/lpr/domain"
	"github.com/aussiebroadwan/lpr/internal/lpr/service"
	"github.com/aussiebroadwan/lpr/pkg/lprsdk"
	"github.com/aussiebroadwan/lpr/pkg/slogx"
)

var validationErrors = []error{
	domain.ErrInvalidScope,
	domain.ErrInvalidOrigin,
	domain.ErrInvalidPolicy,
	domain.ErrInvalidDevice,
	domain.ErrInvalidSubject,
	domain.ErrNoScopes,
	domain.ErrNoOrigins,
	service.ErrInvalidRequest,
	service.ErrKeyAlreadyRetired,
}

var kindErrors = map[service.ErrorKind]*lprsdk.APIError{
	service.KindMalformed:         lprsdk.ErrMalformed,
	service.KindSignatureInvalid:  lprsdk.ErrSignatureInvalid,
	service.KindExpired:           lprsdk.ErrExpired,
	service.KindRevoked:           lprsdk.ErrRevoked,
	service.KindOriginNotAllowed:  lprsdk.ErrOriginNotAllowed,
	service.KindScopeNotAllowed:   lprsdk.ErrScopeNotAllowed,
	service.KindDeviceMismatch:    lprsdk.ErrDeviceMismatch,
	service.KindRateLimitExceeded: lprsdk.ErrRateLimitExceeded,
}

// writeServiceError maps a service error to its response. Validation
// failures echo the error text; everything else uses a fixed description
// so internal details never reach the caller.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			lprsdk.NewAPIError(http.StatusBadRequest, lprsdk.CodeInvalidRequest, err.Error()).WriteError(w)
			return
		}
	}
	if errors.Is(err, service.ErrKeyNotFound) || errors.Is(err, service.ErrNotFound) {
		lprsdk.ErrNotFound.WriteError(w)
		return
	}
	if apiErr, ok := kindErrors[service.Kind(err)]; ok {
		apiErr.WriteError(w)
		return
	}

	slogx.FromContext(r.Context()).Error("request failed", "error", err)
	switch {
	case errors.Is(err, service.ErrStoreUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		lprsdk.ErrStoreUnavailable.WriteError(w)
	default:
		lprsdk.ErrServerError.WriteError(w)
	}
}

// writeDecodeError rejects a body that could not be decoded.
func writeDecodeError(w http.ResponseWriter, err error) {
	lprsdk.NewAPIError(http.StatusBadRequest, lprsdk.CodeInvalidRequest, err.Error()).WriteError(w)
}

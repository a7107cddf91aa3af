package lprsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/lpr/pkg/httpx"
)

// Error codes. The verification codes name the first check a receipt failed.
const (
	CodeMalformed         = "malformed"
	CodeSignatureInvalid  = "signature_invalid"
	CodeExpired           = "expired"
	CodeRevoked           = "revoked"
	CodeOriginNotAllowed  = "origin_not_allowed"
	CodeScopeNotAllowed   = "scope_not_allowed"
	CodeDeviceMismatch    = "device_mismatch"
	CodeRateLimitExceeded = "rate_limit_exceeded"
	CodeStoreUnavailable  = "store_unavailable"

	CodeInvalidRequest = "invalid_request"
	CodeInvalidToken   = "invalid_token"
	CodeNotFound       = "not_found"
	CodeServerError    = "server_error"
)

// APIError is a non-2xx response. It is written by the server and returned
// by the client.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is one of the Code* constants
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Code, e.Description)
}

// Is matches another *APIError by code, so errors.Is(err, lprsdk.ErrRevoked)
// works on errors returned by the client.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// NewAPIError creates a new APIError with the given status code, code, and description.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Description: description}
}

// Predefined errors, one per code, with the status the server uses for it.
var (
	ErrMalformed         = NewAPIError(http.StatusBadRequest, CodeMalformed, "receipt is malformed")
	ErrSignatureInvalid  = NewAPIError(http.StatusBadRequest, CodeSignatureInvalid, "receipt signature is invalid")
	ErrExpired           = NewAPIError(http.StatusUnauthorized, CodeExpired, "receipt has expired")
	ErrRevoked           = NewAPIError(http.StatusUnauthorized, CodeRevoked, "receipt has been revoked")
	ErrDeviceMismatch    = NewAPIError(http.StatusUnauthorized, CodeDeviceMismatch, "device does not match the receipt")
	ErrOriginNotAllowed  = NewAPIError(http.StatusForbidden, CodeOriginNotAllowed, "origin is not allowed by the receipt")
	ErrScopeNotAllowed   = NewAPIError(http.StatusForbidden, CodeScopeNotAllowed, "request is outside the receipt's scopes")
	ErrRateLimitExceeded = NewAPIError(http.StatusTooManyRequests, CodeRateLimitExceeded, "receipt rate limit exceeded")
	ErrStoreUnavailable  = NewAPIError(http.StatusServiceUnavailable, CodeStoreUnavailable, "verification could not be completed")

	ErrInvalidRequest = NewAPIError(http.StatusBadRequest, CodeInvalidRequest, "the request is malformed or missing required parameters")
	ErrNotFound       = NewAPIError(http.StatusNotFound, CodeNotFound, "resource not found")
	ErrServerError    = NewAPIError(http.StatusInternalServerError, CodeServerError, "internal server error")
)

// IsRejection reports whether err is a verification rejection that retrying
// with the same receipt cannot fix. Store outages and rate limiting are not
// rejections.
func IsRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case CodeMalformed, CodeSignatureInvalid, CodeExpired, CodeRevoked,
		CodeOriginNotAllowed, CodeScopeNotAllowed, CodeDeviceMismatch:
		return true
	}
	return false
}

// parseErrorResponse converts a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp httpx.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return NewAPIError(resp.StatusCode, errResp.Error, errResp.ErrorDescription)
	}

	// Fallback: create generic error from status code
	return NewAPIError(resp.StatusCode, CodeServerError,
		fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
}

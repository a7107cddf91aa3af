package domain

import "errors"

// Validation errors returned by the constructors in this package. They are
// raised at the issuance boundary, never inside the verification pipeline.
var (
	ErrInvalidScope   = errors.New("invalid_scope")
	ErrInvalidOrigin  = errors.New("invalid_origin")
	ErrInvalidPolicy  = errors.New("invalid_policy")
	ErrInvalidDevice  = errors.New("invalid_device_fingerprint")
	ErrInvalidSubject = errors.New("invalid_subject")
	ErrNoScopes       = errors.New("no_scopes")
	ErrNoOrigins      = errors.New("no_origins")
)

package jwtx

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrNoKey       = errors.New("jwtx: key not found")
	ErrNoSigner    = errors.New("jwtx: no active signing key")
	ErrUnsupported = errors.New("jwtx: unsupported algorithm")
)

// ErrMissingClaim reports a required payload field that is absent.
func ErrMissingClaim(name string) error {
	return fmt.Errorf("%w: missing %q", ErrMalformed, name)
}

package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// MaxTokenLength bounds the size of a serialised receipt accepted by Decode.
const MaxTokenLength = 16 << 10

var validMethods = []string{AlgorithmES256, AlgorithmEdDSA}

// Encode signs claims with s and returns the compact header.payload.signature form.
func Encode(claims Claims, s Signer) (string, error) {
	if s == nil {
		return "", ErrNoSigner
	}
	if err := claims.validateShape(); err != nil {
		return "", err
	}
	return s.Sign(claims)
}

// Decode parses and verifies a compact receipt against keys.
//
// Errors wrap ErrMalformed when the structure cannot be parsed and
// ErrInvalidSig when the signature does not verify, including when the
// kid is not in keys. Expiry is not checked here.
func Decode(token string, keys *KeySet) (*Claims, error) {
	if token == "" || len(token) > MaxTokenLength || strings.Count(token, ".") != 2 {
		return nil, ErrMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(validMethods),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrUnknownKID
		}

		pub, err := keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("%w %q", ErrUnknownKID, kid)
		}

		// The key type must agree with the header alg.
		switch pub.(type) {
		case *ecdsa.PublicKey:
			if t.Method.Alg() != AlgorithmES256 {
				return nil, fmt.Errorf("%w: kid %q is not %s", ErrInvalidSig, kid, t.Method.Alg())
			}
		case ed25519.PublicKey:
			if t.Method.Alg() != AlgorithmEdDSA {
				return nil, fmt.Errorf("%w: kid %q is not %s", ErrInvalidSig, kid, t.Method.Alg())
			}
		}
		return pub, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	if err := claims.validateShape(); err != nil {
		return nil, err
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSig, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

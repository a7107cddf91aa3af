package cryptox

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

// MinSecretSize is the minimum accepted length of a secret, in bytes.
const MinSecretSize = 32

// EncodedSecretPrefix marks a secret file holding base64url text. Files
// without it are taken as raw bytes.
const EncodedSecretPrefix = "b64:"

var (
	ErrWeakSecret     = errors.New("cryptox: secret too short")
	ErrSecretEncoding = errors.New("cryptox: malformed encoded secret")
)

// LoadSecret reads a secret from a file. The file holds either raw bytes or
// EncodedSecretPrefix followed by base64url text; surrounding whitespace is
// ignored. Secrets are never generated here, a missing file is an error.
func LoadSecret(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("cryptox: secret path is empty")
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("cryptox: read secret: %w", err)
	}
	return ParseSecret(data)
}

// ParseSecret decodes secret material in the format written by WriteSecret.
func ParseSecret(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(data)
	if encoded, ok := bytes.CutPrefix(data, []byte(EncodedSecretPrefix)); ok {
		decoded, err := base64.RawURLEncoding.DecodeString(string(encoded))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSecretEncoding, err)
		}
		data = decoded
	}
	if len(data) < MinSecretSize {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrWeakSecret, len(data), MinSecretSize)
	}
	return data, nil
}

// WriteSecret generates a fresh 256-bit secret and writes it base64url
// encoded, behind EncodedSecretPrefix, to path with 0600 permissions. It refuses to overwrite.
func WriteSecret(path string) error {
	buf := make([]byte, TokenSize256)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("cryptox: generate secret: %w", err)
	}

	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("cryptox: create secret file: %w", err)
	}
	defer f.Close()

	_, err = f.WriteString(EncodedSecretPrefix + base64.RawURLEncoding.EncodeToString(buf) + "\n")
	return err
}

// DeriveKey expands a master secret into a purpose-bound subkey using
// HKDF-SHA256. Different info strings yield independent keys.
func DeriveKey(secret []byte, info string, size int) ([]byte, error) {
	out := make([]byte, size)
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("cryptox: derive %q: %w", info, err)
	}
	return out, nil
}

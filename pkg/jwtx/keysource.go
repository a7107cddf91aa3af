package jwtx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aussiebroadwan/lpr/pkg/cryptox"
)

// SigningKeyRecord represents a signing key stored in a database with its
// private key sealed by a cryptox.KeyEncrypter.
type SigningKeyRecord struct {
	ID                  string
	Kid                 string
	Algorithm           string
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	RetiredAt           *time.Time
	ExpiresAt           *time.Time
}

// KeyStore is the minimal persistence contract for database-held keys.
// It lets jwtx load keys without depending on the store package.
type KeyStore interface {
	// ListSigningKeys returns every key that has not been deleted,
	// including retired ones still inside their grace window.
	ListSigningKeys(ctx context.Context) ([]SigningKeyRecord, error)
}

// StoreKeySource loads encrypted keys from a KeyStore.
type StoreKeySource struct {
	Store     KeyStore
	Encrypter *cryptox.KeyEncrypter
}

func (s StoreKeySource) LoadKeys(ctx context.Context) ([]KeyRecord, error) {
	rows, err := s.Store.ListSigningKeys(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]KeyRecord, 0, len(rows))
	for _, row := range rows {
		pemData, err := s.Encrypter.Decrypt(row.PrivateKeyEncrypted)
		if err != nil {
			return nil, fmt.Errorf("decrypt key %s: %w", row.Kid, err)
		}
		out = append(out, KeyRecord{
			Kid:           row.Kid,
			Algorithm:     row.Algorithm,
			PrivateKeyPEM: pemData,
			CreatedAt:     row.CreatedAt,
			RetiredAt:     row.RetiredAt,
			ExpiresAt:     row.ExpiresAt,
		})
	}
	return out, nil
}

// SealKey generates a new key for alg and returns it as a record ready to
// be stored, sealed with enc.
func SealKey(enc *cryptox.KeyEncrypter, id, alg string, now time.Time) (SigningKeyRecord, error) {
	kid, err := NewKeyID()
	if err != nil {
		return SigningKeyRecord{}, err
	}
	pemData, err := GenerateKey(alg)
	if err != nil {
		return SigningKeyRecord{}, err
	}
	sealed, err := enc.Encrypt(pemData)
	if err != nil {
		return SigningKeyRecord{}, fmt.Errorf("jwtx: seal key: %w", err)
	}
	return SigningKeyRecord{
		ID:                  id,
		Kid:                 kid,
		Algorithm:           alg,
		PrivateKeyEncrypted: sealed,
		CreatedAt:           now,
	}, nil
}

// DirKeySource reads keys from a mounted secret directory:
//
//	<dir>/<kid>.<alg>.pem          active private key
//	<dir>/retired/<kid>.<alg>.pem  retired, verifies until mtime+GracePeriod
//	<dir>/public/<kid>.json        public JWK, verify only
type DirKeySource struct {
	Dir         string
	GracePeriod time.Duration
}

const (
	retiredDir = "retired"
	publicDir  = "public"
)

func (d DirKeySource) LoadKeys(_ context.Context) ([]KeyRecord, error) {
	active, err := d.readPEMs(d.Dir, false)
	if err != nil {
		return nil, err
	}
	retired, err := d.readPEMs(filepath.Join(d.Dir, retiredDir), true)
	if err != nil {
		return nil, err
	}
	public, err := d.readJWKs(filepath.Join(d.Dir, publicDir))
	if err != nil {
		return nil, err
	}

	out := append(active, retired...)
	return append(out, public...), nil
}

func (d DirKeySource) readPEMs(dir string, retired bool) ([]KeyRecord, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) && retired {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jwtx: read key dir: %w", err)
	}

	var out []KeyRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pem") {
			continue
		}
		kid, alg, ok := splitKeyFileName(e.Name())
		if !ok {
			return nil, fmt.Errorf("jwtx: key file %q is not <kid>.<alg>.pem", e.Name())
		}

		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}

		rec := KeyRecord{
			Kid:           kid,
			Algorithm:     alg,
			PrivateKeyPEM: data,
			CreatedAt:     info.ModTime().UTC(),
		}
		if retired {
			at := info.ModTime().UTC()
			exp := at.Add(d.GracePeriod)
			rec.RetiredAt = &at
			rec.ExpiresAt = &exp
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kid < out[j].Kid })
	return out, nil
}

func (d DirKeySource) readJWKs(dir string) ([]KeyRecord, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []KeyRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var jwk JWK
		if err := json.Unmarshal(data, &jwk); err != nil {
			return nil, fmt.Errorf("jwtx: parse %s: %w", e.Name(), err)
		}
		out = append(out, KeyRecord{Kid: jwk.Kid, Algorithm: jwk.Alg, Public: &jwk})
	}
	return out, nil
}

// WriteKeyFile stores a new active private key in dir and returns its path.
func WriteKeyFile(dir, kid, alg string, pemData []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, kid+"."+alg+".pem")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	defer f.Close()
	_, err = f.Write(pemData)
	return path, err
}

// RetireKeyFile moves an active key into the retired directory. Its
// modification time is reset so the grace window starts now.
func RetireKeyFile(dir, kid string, now time.Time) error {
	matches, err := filepath.Glob(filepath.Join(dir, kid+".*.pem"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", ErrNoKey, kid)
	}
	if err := os.MkdirAll(filepath.Join(dir, retiredDir), 0o700); err != nil {
		return err
	}

	dst := filepath.Join(dir, retiredDir, filepath.Base(matches[0]))
	if err := os.Rename(matches[0], dst); err != nil {
		return err
	}
	return os.Chtimes(dst, now, now)
}

func splitKeyFileName(name string) (kid, alg string, ok bool) {
	base := strings.TrimSuffix(name, ".pem")
	i := strings.LastIndex(base, ".")
	if i <= 0 || i == len(base)-1 {
		return "", "", false
	}
	return base[:i], base[i+1:], true
}

// StaticKeySource serves a fixed set of records. Useful for tests and for
// embedding keys supplied by another secret manager.
type StaticKeySource []KeyRecord

func (s StaticKeySource) LoadKeys(context.Context) ([]KeyRecord, error) {
	return append([]KeyRecord(nil), s...), nil
}

package cryptox_test

import (
	"encoding/base64"
	"os"
	"strings"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/lpr/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestWriteAndLoadSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "master.key")

	require.NoError(t, cryptox.WriteSecret(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), cryptox.EncodedSecretPrefix))

	secret, err := cryptox.LoadSecret(path)
	require.NoError(t, err)
	require.Len(t, secret, cryptox.TokenSize256)

	// Never clobber an existing secret.
	require.Error(t, cryptox.WriteSecret(path))
}

func TestLoadSecret_MissingFileIsAnError(t *testing.T) {
	_, err := cryptox.LoadSecret(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)

	_, err = cryptox.LoadSecret("")
	require.Error(t, err)
}

func TestParseSecret(t *testing.T) {
	raw := []byte("0123456789abcdef0123456789abcdef-raw")
	got, err := cryptox.ParseSecret(append(raw, '\n'))
	require.NoError(t, err)
	require.Equal(t, raw, got)

	// Raw material that happens to be valid base64url is kept as is.
	hex := []byte(strings.Repeat("0123456789abcdef", 4))
	got, err = cryptox.ParseSecret(hex)
	require.NoError(t, err)
	require.Equal(t, hex, got)

	key := []byte(strings.Repeat("k", 32))
	got, err = cryptox.ParseSecret([]byte(cryptox.EncodedSecretPrefix + base64.RawURLEncoding.EncodeToString(key) + "\n"))
	require.NoError(t, err)
	require.Equal(t, key, got)

	_, err = cryptox.ParseSecret([]byte(cryptox.EncodedSecretPrefix + "not base64!"))
	require.ErrorIs(t, err, cryptox.ErrSecretEncoding)

	_, err = cryptox.ParseSecret([]byte("short"))
	require.ErrorIs(t, err, cryptox.ErrWeakSecret)
}

func TestDeriveKey_IsPurposeBound(t *testing.T) {
	a, err := cryptox.DeriveKey(testMaster, "purpose-a", 32)
	require.NoError(t, err)
	a2, err := cryptox.DeriveKey(testMaster, "purpose-a", 32)
	require.NoError(t, err)
	b, err := cryptox.DeriveKey(testMaster, "purpose-b", 32)
	require.NoError(t, err)

	require.Equal(t, a, a2)
	require.NotEqual(t, a, b)
}

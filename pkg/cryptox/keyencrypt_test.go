package cryptox_test

import (
	"bytes"
	"testing"

	"github.com/aussiebroadwan/lpr/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

var testMaster = bytes.Repeat([]byte{0x42}, 32)

func TestKeyEncrypter_RoundTrip(t *testing.T) {
	enc, err := cryptox.NewKeyEncrypter(testMaster)
	require.NoError(t, err)

	pemKey, err := cryptox.GenerateES256Key()
	require.NoError(t, err)

	sealed1, err := enc.Encrypt(pemKey)
	require.NoError(t, err)
	sealed2, err := enc.Encrypt(pemKey)
	require.NoError(t, err)
	require.NotEqual(t, sealed1, sealed2, "nonce must differ per encryption")

	plain, err := enc.Decrypt(sealed1)
	require.NoError(t, err)
	require.Equal(t, pemKey, plain)
}

func TestKeyEncrypter_WrongMasterFails(t *testing.T) {
	enc, err := cryptox.NewKeyEncrypter(testMaster)
	require.NoError(t, err)
	other, err := cryptox.NewKeyEncrypter(bytes.Repeat([]byte{0x43}, 32))
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("private"))
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	require.Error(t, err)

	_, err = enc.Decrypt([]byte("short"))
	require.Error(t, err)
}

func TestKeyEncrypter_RejectsWeakMaster(t *testing.T) {
	_, err := cryptox.NewKeyEncrypter([]byte("too-short"))
	require.ErrorIs(t, err, cryptox.ErrWeakSecret)
}

package jwtx_test

import (
	"encoding/json"
	"testing"

	"github.com/aussiebroadwan/lpr/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestKeySet_PublishesSortedJWKS(t *testing.T) {
	es := newTestSigner(t, jwtx.AlgorithmES256)
	ed := newTestSigner(t, jwtx.AlgorithmEdDSA)

	keys := jwtx.NewKeySet()
	require.False(t, keys.IsReady())
	require.NoError(t, keys.AddSigner(es))
	require.NoError(t, keys.AddSigner(ed))
	require.True(t, keys.IsReady())

	jwks := keys.PublicJWKS()
	require.Len(t, jwks.Keys, 2)
	require.Less(t, jwks.Keys[0].Kid, jwks.Keys[1].Kid)

	for _, k := range jwks.Keys {
		switch k.Alg {
		case jwtx.AlgorithmES256:
			require.Equal(t, "EC", k.Kty)
			require.Equal(t, "P-256", k.Crv)
			require.NotEmpty(t, k.Y)
		case jwtx.AlgorithmEdDSA:
			require.Equal(t, "OKP", k.Kty)
			require.Equal(t, "Ed25519", k.Crv)
			require.Empty(t, k.Y)
		}
	}
}

func TestJWK_JSONRoundTripIntoKeySet(t *testing.T) {
	signer := newTestSigner(t, jwtx.AlgorithmES256)

	raw, err := json.Marshal(signer.PublicJWK())
	require.NoError(t, err)

	var jwk jwtx.JWK
	require.NoError(t, json.Unmarshal(raw, &jwk))

	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddJWK(jwk))
	_, err = keys.Get(signer.KID())
	require.NoError(t, err)

	_, err = keys.Get("missing")
	require.ErrorIs(t, err, jwtx.ErrNoKey)
}

func TestJWK_RejectsUnsupported(t *testing.T) {
	_, err := jwtx.JWK{Kty: "RSA"}.PublicKey()
	require.Error(t, err)

	_, err = jwtx.JWK{Kty: "EC", Crv: "P-384"}.PublicKey()
	require.Error(t, err)

	_, err = jwtx.JWK{Kty: "EC", Crv: "P-256", X: "AA", Y: "AA"}.PublicKey()
	require.Error(t, err, "point not on curve")
}

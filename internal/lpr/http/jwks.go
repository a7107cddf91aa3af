package http

import (
	"net/http"

	"github.com/aussiebroadwan/lpr/pkg/httpx"
	"github.com/aussiebroadwan/lpr/pkg/jwtx"
	"github.com/aussiebroadwan/lpr/pkg/lprsdk"
)

// JWKSHandler exposes the public keys receipts are verified with. Retired
// keys stay listed until their grace period ends.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify receipts.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	lprsdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get].
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, lprsdk.JWKSResponse(keys.PublicJWKS()))
	}
}

package http

import (
	"net/http"

	"github.com/aussiebroadwan/lpr/internal/lpr/service"
	"github.com/aussiebroadwan/lpr/pkg/httpx"
	"github.com/aussiebroadwan/lpr/pkg/lprsdk"
)

// KeyRotationHandler handles receipt signing key operations for both stored
// and file-backed keys.
type KeyRotationHandler struct {
	KeyRotationService *service.KeyRotationService
}

var errKeysUnavailable = lprsdk.NewAPIError(http.StatusNotImplemented, lprsdk.CodeServerError, "key management is not enabled on this node")

// HandleRotate handles POST /v1/keys/rotate
//
//	@Summary		Rotate signing keys
//	@Description	Generate a new signing key and optionally retire the active ones
//	@Tags			Keys
//	@Accept			json
//	@Produce		json
//	@Param			body	body		lprsdk.RotateKeyRequest	true	"Rotation options"
//	@Success		200		{object}	lprsdk.RotateKeyResponse
//	@Failure		400		{object}	httpx.ErrorResponse	"Bad Request"
//	@Failure		401		{object}	httpx.ErrorResponse	"Unauthorized"
//	@Failure		500		{object}	httpx.ErrorResponse	"Internal Server Error"
//	@Failure		501		{object}	httpx.ErrorResponse	"Key management disabled"
//	@Security		BearerAuth
//	@Router			/v1/keys/rotate [post]
func (h *KeyRotationHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	if h.KeyRotationService == nil {
		errKeysUnavailable.WriteError(w)
		return
	}

	var req lprsdk.RotateKeyRequest
	if err := httpx.DecodeJSON(w, r, &req, 0); err != nil {
		writeDecodeError(w, err)
		return
	}

	resp, err := h.KeyRotationService.RotateKey(r.Context(), service.RotateKeyRequest{
		RetireExisting: req.RetireExisting,
		Actor:          httpx.CallerFromContext(r.Context()),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, lprsdk.RotateKeyResponse{
		NewKey:      signingKeyToSDK(resp.NewKey),
		RetiredKeys: signingKeysToSDK(resp.RetiredKeys),
		ActiveKeys:  resp.ActiveKeys,
	})
}

// HandleListKeys handles GET /v1/keys
//
//	@Summary		List signing keys
//	@Description	List all signing keys with their status
//	@Tags			Keys
//	@Produce		json
//	@Success		200	{array}		lprsdk.SigningKeyInfo
//	@Failure		401	{object}	httpx.ErrorResponse	"Unauthorized"
//	@Failure		500	{object}	httpx.ErrorResponse
//	@Failure		501	{object}	httpx.ErrorResponse	"Key management disabled"
//	@Security		BearerAuth
//	@Router			/v1/keys [get]
func (h *KeyRotationHandler) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	if h.KeyRotationService == nil {
		errKeysUnavailable.WriteError(w)
		return
	}

	keys, err := h.KeyRotationService.ListSigningKeys(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, signingKeysToSDK(keys))
}

// HandleRetireKey handles POST /v1/keys/{kid}/retire
//
//	@Summary		Retire a signing key
//	@Description	Stop a key from signing without generating a new one. It keeps verifying for the grace period.
//	@Tags			Keys
//	@Param			kid	path	string	true	"Key ID to retire"
//	@Success		204	"No Content - key retired successfully"
//	@Failure		400	{object}	httpx.ErrorResponse	"Key already retired"
//	@Failure		401	{object}	httpx.ErrorResponse	"Unauthorized"
//	@Failure		404	{object}	httpx.ErrorResponse	"Key not found"
//	@Failure		501	{object}	httpx.ErrorResponse	"Key management disabled"
//	@Security		BearerAuth
//	@Router			/v1/keys/{kid}/retire [post]
func (h *KeyRotationHandler) HandleRetireKey(w http.ResponseWriter, r *http.Request) {
	if h.KeyRotationService == nil {
		errKeysUnavailable.WriteError(w)
		return
	}

	if err := h.KeyRotationService.RetireKey(r.Context(), r.PathValue("kid"), httpx.CallerFromContext(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Return 204 No Content on success
	w.WriteHeader(http.StatusNoContent)
}

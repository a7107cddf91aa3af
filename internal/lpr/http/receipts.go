package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/lpr/internal/lpr/service"
	"github.com/aussiebroadwan/lpr/pkg/httpx"
	"github.com/aussiebroadwan/lpr/pkg/lprsdk"
)

// ReceiptsHandler serves receipt issuance, verification, revocation and
// status. Every endpoint requires a collaborator API token.
type ReceiptsHandler struct {
	LPRService *service.LPRService
}

// HandleIssue handles POST /v1/receipts
//
//	@Summary		Issue a receipt
//	@Description	Issue a signed receipt granting an agent limited permissions on behalf of a verified session
//	@Tags			Receipts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		lprsdk.IssueRequest	true	"Receipt parameters"
//	@Success		201		{object}	lprsdk.IssueResponse
//	@Failure		400		{object}	httpx.ErrorResponse	"Bad Request"
//	@Failure		401		{object}	httpx.ErrorResponse	"Unauthorized"
//	@Failure		503		{object}	httpx.ErrorResponse	"Store unavailable"
//	@Security		BearerAuth
//	@Router			/v1/receipts [post]
func (h *ReceiptsHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	var req lprsdk.IssueRequest
	if err := httpx.DecodeJSON(w, r, &req, 0); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.TTLSeconds < 0 {
		lprsdk.NewAPIError(http.StatusBadRequest, lprsdk.CodeInvalidRequest, "ttl_seconds must not be negative").WriteError(w)
		return
	}

	// Requests beyond the maximum lifetime are clamped to it; capping before
	// the conversion keeps huge values from overflowing.
	ttl := h.LPRService.TTLBounds().Max
	if req.TTLSeconds < int(ttl/time.Second) {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	issued, err := h.LPRService.Issue(r.Context(), service.IssueRequest{
		SubjectID:       req.SubjectID,
		Device:          deviceFromSDK(req.Device),
		Scopes:          scopesFromSDK(req.Scopes),
		Origins:         req.Origins,
		Policy:          policyFromSDK(req.Policy),
		TTL:             ttl,
		ParentSessionID: req.ParentSessionID,
		CorrelationID:   req.CorrelationID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	t := issued.Token
	httpx.WriteJSON(w, http.StatusCreated, lprsdk.IssueResponse{
		Token:         issued.Serialized,
		JTI:           t.JTI,
		KeyID:         issued.KeyID,
		IssuedAt:      t.IssuedAt,
		ExpiresAt:     t.ExpiresAt,
		CorrelationID: t.CorrelationID,
		Scopes:        scopesToSDK(t.Scopes),
		Origins:       t.Origins,
		Policy:        policyToSDK(t.Policy),
	})
}

// HandleVerify handles POST /v1/receipts/verify
//
//	@Summary		Verify a receipt
//	@Description	Check a receipt against the request an agent is about to make. Rejections carry the reason code.
//	@Tags			Receipts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		lprsdk.VerifyRequest	true	"Receipt and request"
//	@Success		200		{object}	lprsdk.VerifyResponse
//	@Failure		400		{object}	httpx.ErrorResponse	"Malformed or bad signature"
//	@Failure		401		{object}	httpx.ErrorResponse	"Expired, revoked or device mismatch"
//	@Failure		403		{object}	httpx.ErrorResponse	"Origin or scope not allowed"
//	@Failure		429		{object}	httpx.ErrorResponse	"Receipt rate limit exceeded"
//	@Failure		503		{object}	httpx.ErrorResponse	"Verification could not complete"
//	@Security		BearerAuth
//	@Router			/v1/receipts/verify [post]
func (h *ReceiptsHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req lprsdk.VerifyRequest
	if err := httpx.DecodeJSON(w, r, &req, 0); err != nil {
		writeDecodeError(w, err)
		return
	}

	vr := service.VerifyRequest{
		Token:  strings.TrimSpace(req.Token),
		Method: req.Method,
		URL:    req.URL,
		Origin: req.Origin,
	}
	if req.Device != nil {
		d := deviceFromSDK(*req.Device)
		vr.Device = &d
	}

	token, err := h.LPRService.Verify(r.Context(), vr)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, lprsdk.VerifyResponse{
		Valid:            true,
		JTI:              token.JTI,
		SubjectPseudonym: token.SubjectPseudonym,
		CorrelationID:    token.CorrelationID,
		ExpiresAt:        token.ExpiresAt,
		Scopes:           scopesToSDK(token.Scopes),
		Policy:           policyToSDK(token.Policy),
	})
}

// HandleRevoke handles POST /v1/receipts/{jti}/revoke
//
//	@Summary		Revoke a receipt
//	@Description	Revoke a receipt on every node. Revoking twice succeeds and reports the first revocation.
//	@Tags			Receipts
//	@Accept			json
//	@Produce		json
//	@Param			jti		path		string					true	"Receipt id"
//	@Param			body	body		lprsdk.RevokeRequest	false	"Revocation reason"
//	@Success		200		{object}	lprsdk.RevokeResponse
//	@Failure		400		{object}	httpx.ErrorResponse
//	@Failure		401		{object}	httpx.ErrorResponse	"Unauthorized"
//	@Failure		503		{object}	httpx.ErrorResponse	"Store unavailable"
//	@Security		BearerAuth
//	@Router			/v1/receipts/{jti}/revoke [post]
func (h *ReceiptsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	var req lprsdk.RevokeRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &req, 0); err != nil {
			writeDecodeError(w, err)
			return
		}
	}

	res, err := h.LPRService.Revoke(r.Context(), service.RevokeRequest{
		JTI:       r.PathValue("jti"),
		Reason:    req.Reason,
		RevokedBy: httpx.CallerFromContext(r.Context()),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, lprsdk.RevokeResponse{
		Revocation: revocationToSDK(res.Entry),
		Duplicate:  res.Duplicate,
	})
}

// HandleStatus handles GET /v1/receipts/{jti}
//
//	@Summary		Receipt status
//	@Description	Report whether a receipt is active, revoked, expired or unknown, with its usage
//	@Tags			Receipts
//	@Produce		json
//	@Param			jti	path		string	true	"Receipt id"
//	@Success		200	{object}	lprsdk.StatusResponse
//	@Failure		401	{object}	httpx.ErrorResponse	"Unauthorized"
//	@Failure		503	{object}	httpx.ErrorResponse	"Store unavailable"
//	@Security		BearerAuth
//	@Router			/v1/receipts/{jti} [get]
func (h *ReceiptsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	jti := r.PathValue("jti")
	res, err := h.LPRService.Status(r.Context(), jti)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// notFound is a state, not an error: the receipt may simply have aged out.
	httpx.WriteJSON(w, http.StatusOK, statusToSDK(jti, res))
}

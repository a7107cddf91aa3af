package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/lpr/internal/lpr/service"
	"github.com/aussiebroadwan/lpr/pkg/httpx"
	"github.com/aussiebroadwan/lpr/pkg/lprsdk"
)

// AuditHandler exposes the audit trail and chain verification.
type AuditHandler struct {
	LPRService   *service.LPRService
	AuditService *service.AuditService
}

// HandleTrail handles GET /v1/audit
//
//	@Summary		Audit trail
//	@Description	Page through the audit entries of one receipt or correlation id
//	@Tags			Audit
//	@Produce		json
//	@Param			jti				query		string	false	"Receipt id"
//	@Param			correlation_id	query		string	false	"Correlation id"
//	@Param			after			query		int		false	"Cursor from a previous page"
//	@Param			limit			query		int		false	"Page size"
//	@Success		200				{object}	lprsdk.AuditTrailResponse
//	@Failure		400				{object}	httpx.ErrorResponse
//	@Failure		401				{object}	httpx.ErrorResponse	"Unauthorized"
//	@Security		BearerAuth
//	@Router			/v1/audit [get]
func (h *AuditHandler) HandleTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := service.AuditQuery{
		JTI:           q.Get("jti"),
		CorrelationID: q.Get("correlation_id"),
	}

	var err error
	if v := q.Get("after"); v != "" {
		if query.After, err = strconv.ParseUint(v, 10, 64); err != nil {
			lprsdk.NewAPIError(http.StatusBadRequest, lprsdk.CodeInvalidRequest, "after must be a sequence number").WriteError(w)
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if query.Limit, err = strconv.Atoi(v); err != nil {
			lprsdk.NewAPIError(http.StatusBadRequest, lprsdk.CodeInvalidRequest, "limit must be an integer").WriteError(w)
			return
		}
	}

	page, err := h.LPRService.AuditTrail(r.Context(), query)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, lprsdk.AuditTrailResponse{
		Entries:    auditEntriesToSDK(page.Entries),
		NextCursor: page.NextCursor,
	})
}

// HandleVerifyChain handles POST /v1/audit/verify
//
//	@Summary		Verify the audit chain
//	@Description	Recompute entry hashes and links over a sequence range. A broken chain is reported, not an error.
//	@Tags			Audit
//	@Accept			json
//	@Produce		json
//	@Param			body	body		lprsdk.VerifyChainRequest	false	"Range, zero for open ends"
//	@Success		200		{object}	lprsdk.ChainReport
//	@Failure		401		{object}	httpx.ErrorResponse	"Unauthorized"
//	@Security		BearerAuth
//	@Router			/v1/audit/verify [post]
func (h *AuditHandler) HandleVerifyChain(w http.ResponseWriter, r *http.Request) {
	var req lprsdk.VerifyChainRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &req, 0); err != nil {
			writeDecodeError(w, err)
			return
		}
	}

	report, err := h.AuditService.VerifyChainIntegrity(r.Context(), req.From, req.To)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, lprsdk.ChainReport{
		Valid:    report.Valid,
		From:     report.From,
		To:       report.To,
		Checked:  report.Checked,
		BrokenAt: report.BrokenAt,
		Reason:   report.Reason,
	})
}

package lprsdk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Issue requests a new receipt for a verified human session.
func (c *Client) Issue(ctx context.Context, req IssueRequest) (*IssueResponse, error) {
	return call[IssueResponse](ctx, c, http.MethodPost, "/v1/receipts", req, true, http.StatusCreated)
}

// Verify checks a receipt against the request it is presented with. A
// rejection is returned as an *APIError carrying the reason code.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	return call[VerifyResponse](ctx, c, http.MethodPost, "/v1/receipts/verify", req, true, http.StatusOK)
}

// Revoke revokes a receipt on every node. Revoking twice succeeds.
func (c *Client) Revoke(ctx context.Context, jti, reason string) (*RevokeResponse, error) {
	path := "/v1/receipts/" + url.PathEscape(jti) + "/revoke"
	return call[RevokeResponse](ctx, c, http.MethodPost, path, RevokeRequest{Reason: reason}, true, http.StatusOK)
}

// Status reports a receipt's lifecycle state and usage.
func (c *Client) Status(ctx context.Context, jti string) (*StatusResponse, error) {
	return call[StatusResponse](ctx, c, http.MethodGet, "/v1/receipts/"+url.PathEscape(jti), nil, true, http.StatusOK)
}

// AuditTrail returns one page of audit entries.
func (c *Client) AuditTrail(ctx context.Context, q AuditQuery) (*AuditTrailResponse, error) {
	v := url.Values{}
	if q.JTI != "" {
		v.Set("jti", q.JTI)
	}
	if q.CorrelationID != "" {
		v.Set("correlation_id", q.CorrelationID)
	}
	if q.After > 0 {
		v.Set("after", strconv.FormatUint(q.After, 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return call[AuditTrailResponse](ctx, c, http.MethodGet, "/v1/audit?"+v.Encode(), nil, true, http.StatusOK)
}

// VerifyAuditChain recomputes the audit hash chain over a range.
func (c *Client) VerifyAuditChain(ctx context.Context, req VerifyChainRequest) (*ChainReport, error) {
	return call[ChainReport](ctx, c, http.MethodPost, "/v1/audit/verify", req, true, http.StatusOK)
}

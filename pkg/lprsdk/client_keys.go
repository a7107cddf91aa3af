package lprsdk

import (
	"context"
	"net/http"
	"net/url"
)

// RotateKey generates a new signing key, optionally retiring the current ones.
func (c *Client) RotateKey(ctx context.Context, req RotateKeyRequest) (*RotateKeyResponse, error) {
	return call[RotateKeyResponse](ctx, c, http.MethodPost, "/v1/keys/rotate", req, true, http.StatusOK)
}

// ListKeys returns all signing keys with their status.
func (c *Client) ListKeys(ctx context.Context) ([]SigningKeyInfo, error) {
	keys, err := call[[]SigningKeyInfo](ctx, c, http.MethodGet, "/v1/keys", nil, true, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return *keys, nil
}

// RetireKey retires a specific signing key by its key ID (kid).
func (c *Client) RetireKey(ctx context.Context, kid string) error {
	resp, err := c.do(ctx, http.MethodPost, "/v1/keys/"+url.PathEscape(kid)+"/retire", nil, true)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

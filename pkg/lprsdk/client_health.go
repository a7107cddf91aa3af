package lprsdk

import (
	"context"
	"net/http"
)

// GetLiveness checks if the service is alive.
func (c *Client) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return call[HealthResponse](ctx, c, http.MethodGet, "/livez", nil, false, http.StatusOK)
}

// GetReadiness checks if the service is ready.
func (c *Client) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return call[HealthResponse](ctx, c, http.MethodGet, "/readyz", nil, false, http.StatusOK)
}

// GetJWKS retrieves the public keys receipts are verified with.
func (c *Client) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	return call[JWKSResponse](ctx, c, http.MethodGet, "/.well-known/jwks.json", nil, false, http.StatusOK)
}

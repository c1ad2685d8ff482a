package client

import (
	"context"
)

// TokenResponse is returned by the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	Username    string `json:"username"`
}

// Login requests a bearer token for username from the server's dev login.
func (c *Client) Login(ctx context.Context, username string) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.post(ctx, "/api/auth/token", map[string]string{"username": username}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

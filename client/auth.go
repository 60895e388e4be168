package client

import (
	"context"
	"net/http"
	"net/url"
)

// Login exchanges credentials for a bearer token. The credentials are sent
// form-encoded.
func (c *Client) Login(ctx context.Context, creds LoginRequest) (*LoginResponse, error) {
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	var out LoginResponse
	if err := c.do(ctx, formRequest(http.MethodPost, "/api/auth/login", form), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentUser returns the user the bearer token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/auth/me"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout asks the server to invalidate the bearer token. The response body
// is ignored.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/api/auth/logout"}, nil)
}

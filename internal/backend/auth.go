package backend

import (
	"context"
	"fmt"
	"net/http"
)

// Credentials are the login form fields.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignupRequest creates a new account.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for an access token. The caller stores it.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	var out tokenResponse
	err := c.do(ctx, call{
		method:    http.MethodPost,
		path:      "/auth/login",
		body:      creds,
		anonymous: true,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: login response has no access_token", ErrNetwork)
	}
	return out.AccessToken, nil
}

// Logout invalidates the current token server-side.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, call{method: http.MethodPost, path: "/auth/logout"}, nil)
}

// Signup registers a new account. It does not log in.
func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	return c.do(ctx, call{
		method:    http.MethodPost,
		path:      "/auth/signup",
		body:      req,
		anonymous: true,
	}, nil)
}

// RequestPasswordReset asks the backend to email a reset link.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, call{
		method:    http.MethodPost,
		path:      "/auth/password-reset",
		body:      map[string]string{"email": email},
		anonymous: true,
	}, nil)
}

package apiclient

import (
	"context"
	"net/http"
	"strings"

	"pumpconsole/pkg/domain"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	User    *domain.User    `json:"user"`
	Session *domain.Session `json:"session"`
}

type RegisterRequest struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     domain.UserRole `json:"role"`
}

type RegisterResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	User    *domain.User `json:"user,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Session *domain.Session `json:"session"`
}

// Login exchanges credentials for a user and session. A response without
// success and a session is reported as an auth error.
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	var resp LoginResponse
	if err := c.doPublicJSON(ctx, http.MethodPost, "/auth/login", "/auth/login", req, &resp); err != nil {
		return LoginResponse{}, err
	}
	if !resp.Success || resp.Session == nil || resp.User == nil || strings.TrimSpace(resp.Session.AccessToken) == "" {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = "Login failed"
		}
		return resp, &APIError{Status: http.StatusUnauthorized, Kind: KindAuth, Message: msg}
	}
	return resp, nil
}

// Register creates a new admin or distributor account. The caller's session
// is left untouched.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", "/auth/register", nil, req, &resp); err != nil {
		return RegisterResponse{}, err
	}
	return resp, nil
}

// RefreshToken trades a refresh token for a new session.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (domain.Session, error) {
	var resp refreshResponse
	if err := c.doPublicJSON(ctx, http.MethodPost, "/auth/refresh-token", "/auth/refresh-token",
		refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return domain.Session{}, err
	}
	if !resp.Success || resp.Session == nil || strings.TrimSpace(resp.Session.AccessToken) == "" {
		msg := strings.TrimSpace(resp.Message)
		if msg == "" {
			msg = "token refresh rejected"
		}
		return domain.Session{}, &APIError{Status: http.StatusUnauthorized, Kind: KindAuth, Message: msg}
	}
	return *resp.Session, nil
}

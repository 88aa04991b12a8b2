// Package authclient is an HTTP client for the authkeeper authorization API.
package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/netx"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%d %s", e.StatusCode, e.ErrorCode)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.ErrorCode, e.Detail)
}

// Unwrap maps the status onto the shared sentinels so callers can use
// errors.Is(err, common.ErrorUnauthorized) and friends.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return common.ErrorUnauthorized
	case http.StatusConflict:
		return common.ErrorAlreadyExists
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusUnprocessableEntity:
		return common.ErrorValidation
	}
	return nil
}

// Tokens is the token pair handed out by signup, login and refresh.
// RefreshToken is empty after a refresh without rotation.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// Registration is the signup result.
type Registration struct {
	Tokens
	UUID uuid.UUID `json:"uuid"`
}

// NewUser is the signup payload. Password is expected to be pre-hashed.
type NewUser struct {
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

// Profile is the authenticated user as returned by /me.
type Profile struct {
	UUID      uuid.UUID `json:"uuid"`
	Email     string    `json:"email"`
	Nickname  string    `json:"nickname"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

// Reservation is a signed UUID reservation together with the UUID it
// carries.
type Reservation struct {
	Token string
	UUID  uuid.UUID
}

type Client struct {
	base string
	http *http.Client
}

// New returns a client for the server at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// ReserveUUID asks for a fresh user id. The id is read from the token
// without verifying it: the client has no key, and the server checks the
// signature again on signup.
func (c *Client) ReserveUUID(ctx context.Context) (*Reservation, error) {
	var tok string
	if err := c.do(ctx, http.MethodGet, "/authorization/signup/reserve_uuid", nil, &tok); err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return nil, fmt.Errorf("reservation token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("reservation token: %w", err)
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("reservation token subject: %w", err)
	}

	return &Reservation{Token: tok, UUID: id}, nil
}

func (c *Client) Signup(ctx context.Context, reservationToken string, u NewUser) (*Registration, error) {
	in := struct {
		User      NewUser `json:"user"`
		UUIDToken string  `json:"uuid_token"`
	}{User: u, UUIDToken: reservationToken}

	var out Registration
	if err := c.do(ctx, http.MethodPost, "/authorization/signup/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login takes a nickname or email and the pre-hashed password.
func (c *Client) Login(ctx context.Context, login, password string) (*Tokens, error) {
	in := map[string]string{"nickname": login, "password": password}

	var out Tokens
	if err := c.do(ctx, http.MethodPost, "/authorization/login/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	var out Tokens
	if err := c.do(ctx, http.MethodPost, "/authorization/login/get_access_token", refreshBody(refreshToken), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUUID looks up the user id by nickname or email.
func (c *Client) GetUUID(ctx context.Context, login string) (uuid.UUID, error) {
	var id uuid.UUID
	path := "/authorization/login/get_uuid?nickname=" + url.QueryEscape(login)
	if err := c.do(ctx, http.MethodGet, path, nil, &id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/authorization/logout", refreshBody(refreshToken), nil)
}

func (c *Client) Me(ctx context.Context, accessToken string) (*Profile, error) {
	var out Profile
	auth := netx.Header{Name: common.AuthorizationHeaderName, Value: common.BearerScheme + " " + accessToken}
	if err := c.do(ctx, http.MethodGet, "/authorization/me", nil, &out, auth); err != nil {
		return nil, err
	}
	return &out, nil
}

func refreshBody(tok string) map[string]string {
	return map[string]string{"refresh_token": tok}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, headers ...netx.Header) error {
	err := netx.DoJSON(ctx, c.http, method, c.base+path, in, out, headers...)

	var se *netx.StatusError
	if errors.As(err, &se) {
		apiErr := &APIError{StatusCode: se.StatusCode}
		if json.Unmarshal(se.Body, apiErr) != nil || apiErr.StatusCode == 0 {
			apiErr.StatusCode = se.StatusCode
			apiErr.ErrorCode = http.StatusText(se.StatusCode)
		}
		return apiErr
	}
	return err
}

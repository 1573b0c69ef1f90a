// Package authapi is a client for the hosted backend's authentication API
// (GoTrue-compatible endpoints under /auth/v1).
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-notes-session/internal/errors"
	"github.com/jrsteele09/go-notes-session/session"
)

var (
	// ErrUnauthorized matches APIErrors for rejected credentials or tokens
	ErrUnauthorized = errors.ErrUnauthorized
	// ErrConfirmationRequired is returned by SignUp when the account must be confirmed before a session is issued
	ErrConfirmationRequired = errors.ErrConfirmationRequired
)

// User is the identity returned alongside a session.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Profile maps the user's metadata into the profile cached with the session.
func (u *User) Profile() session.Profile {
	p := session.Profile{Email: u.Email}
	for _, key := range []string{"full_name", "name"} {
		if v, ok := u.UserMetadata[key].(string); ok && v != "" {
			p.Name = v
			break
		}
	}
	for _, key := range []string{"avatar_url", "picture"} {
		if v, ok := u.UserMetadata[key].(string); ok && v != "" {
			p.Image = v
			break
		}
	}
	return p
}

// Session is the session payload returned by sign-in and sign-up.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// Credential maps the session payload into a password-login credential.
func (s *Session) Credential() session.Credential {
	return session.Credential{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Provenance:   session.PasswordLogin,
	}
}

// APIError is a non-2xx response from the auth API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("auth api: %d: %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match rejected requests.
func (e *APIError) Is(target error) bool {
	if target != ErrUnauthorized {
		return false
	}
	return e.Status == http.StatusBadRequest || e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a client for the auth API rooted at baseURL.
func New(baseURL, apiKey string, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInWithPassword exchanges an email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	endpoint := "/auth/v1/token?" + url.Values{"grant_type": {"password"}}.Encode()
	if err := c.do(ctx, http.MethodPost, endpoint, "", credentialsRequest{Email: email, Password: password}, &s); err != nil {
		return nil, fmt.Errorf("authapi.SignInWithPassword: %w", err)
	}
	if s.AccessToken == "" {
		return nil, fmt.Errorf("authapi.SignInWithPassword: response carried no access token")
	}
	return &s, nil
}

// SignUp registers a new account. When the backend requires email
// confirmation no session is issued and ErrConfirmationRequired is returned
// together with the created user.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Session, error) {
	// The endpoint answers with either a session or a bare user
	var body struct {
		Session
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", credentialsRequest{Email: email, Password: password}, &body); err != nil {
		return nil, fmt.Errorf("authapi.SignUp: %w", err)
	}
	if body.AccessToken == "" {
		return &Session{User: &User{ID: body.ID, Email: body.Email}}, ErrConfirmationRequired
	}
	return &body.Session, nil
}

// SignOut revokes the session behind accessToken on the remote side.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("authapi.SignOut: %w", err)
	}
	return nil
}

// GetUser returns the user the access token belongs to.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &u); err != nil {
		return nil, fmt.Errorf("authapi.GetUser: %w", err)
	}
	return &u, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Code             any    `json:"error_code"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &payload)

	apiErr := &APIError{Status: resp.StatusCode}
	switch code := payload.Code.(type) {
	case string:
		apiErr.Code = code
	case nil:
		apiErr.Code = payload.Error
	default:
		apiErr.Code = fmt.Sprint(code)
	}
	for _, msg := range []string{payload.ErrorDescription, payload.Msg, payload.Message} {
		if msg != "" {
			apiErr.Message = msg
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

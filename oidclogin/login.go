// Package oidclogin runs the OAuth2 authorization-code flow (with PKCE) against
// an OpenID Connect provider and turns the result into an OAuth-provenance
// session credential.
package oidclogin

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-notes-session/internal/errors"
	"github.com/jrsteele09/go-notes-session/session"
	"golang.org/x/oauth2"
)

var (
	ErrInvalidNonce = errors.ErrInvalidNonce
	ErrFlowExpired  = errors.ErrFlowExpired
)

// Flow is the state kept between Begin and Complete.
type Flow struct {
	State        string
	Nonce        string
	CodeVerifier string
	ReturnURL    string
	CreatedAt    time.Time
}

// Identity holds the ID-token claims the front end displays.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Nonce   string `json:"nonce"`
}

type Login struct {
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
	maxAge   time.Duration
	nowFunc  func() time.Time
}

type Option func(*Login)

// WithMaxFlowAge bounds the time between Begin and Complete.
func WithMaxFlowAge(d time.Duration) Option {
	return func(l *Login) {
		l.maxAge = d
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(l *Login) {
		l.nowFunc = now
	}
}

// New creates a Login from an explicit oauth2 config and ID-token verifier.
func New(cfg oauth2.Config, verifier *oidc.IDTokenVerifier, options ...Option) *Login {
	l := &Login{
		config:   cfg,
		verifier: verifier,
		maxAge:   15 * time.Minute,
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Discover builds a Login from the provider's discovery document.
func Discover(ctx context.Context, issuer, clientID, clientSecret, redirectURL string, scopes []string, options ...Option) (*Login, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}

	cfg := oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}
	return New(cfg, provider.Verifier(&oidc.Config{ClientID: clientID}), options...), nil
}

// Begin starts a flow and returns it with the provider URL to redirect to.
func (l *Login) Begin(returnURL string) (Flow, string) {
	flow := Flow{
		State:        uuid.NewString(),
		Nonce:        uuid.NewString(),
		CodeVerifier: oauth2.GenerateVerifier(),
		ReturnURL:    returnURL,
		CreatedAt:    l.nowFunc(),
	}
	authURL := l.config.AuthCodeURL(
		flow.State,
		oauth2.S256ChallengeOption(flow.CodeVerifier),
		oidc.Nonce(flow.Nonce),
	)
	return flow, authURL
}

// Complete exchanges the authorization code, verifies the returned ID token
// and maps it into a credential. The raw ID token becomes the OAuth identifier;
// the provider's access token is not kept.
func (l *Login) Complete(ctx context.Context, flow Flow, code string) (session.Credential, Identity, error) {
	if l.maxAge > 0 && l.nowFunc().Sub(flow.CreatedAt) > l.maxAge {
		return session.Credential{}, Identity{}, ErrFlowExpired
	}

	oauth2Token, err := l.config.Exchange(ctx, code, oauth2.VerifierOption(flow.CodeVerifier))
	if err != nil {
		return session.Credential{}, Identity{}, fmt.Errorf("token exchange failed: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return session.Credential{}, Identity{}, fmt.Errorf("no ID token in response")
	}

	idToken, err := l.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return session.Credential{}, Identity{}, fmt.Errorf("ID token verification failed: %w", err)
	}

	var identity Identity
	if err := idToken.Claims(&identity); err != nil {
		return session.Credential{}, Identity{}, fmt.Errorf("failed to extract claims: %w", err)
	}
	if identity.Nonce != flow.Nonce {
		return session.Credential{}, Identity{}, ErrInvalidNonce
	}

	return session.Credential{
		RefreshToken:    oauth2Token.RefreshToken,
		Provenance:      session.OAuthLogin,
		OAuthIdentifier: rawIDToken,
	}, identity, nil
}

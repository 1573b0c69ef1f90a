// Package session owns the client-side answer to "is the current user
// authenticated". A credential is written to an injectable store with the
// expiry decoded from its token, and every authorization query re-decodes the
// stored token and fails closed, clearing the store, when it is missing,
// undecodable or expired.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-notes-session/internal/errors"
	"github.com/jrsteele09/go-notes-session/store"
	"github.com/jrsteele09/go-notes-session/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Storage keys
const (
	KeyAccessToken     = "token"
	KeyRefreshToken    = "refreshToken"
	KeyOAuthIdentifier = "oauthAccessToken"
	KeyProfile         = "dataUser"
)

var allKeys = []string{KeyAccessToken, KeyOAuthIdentifier, KeyRefreshToken, KeyProfile}

// Manager is the single source of truth for the current session.
// It performs no network I/O; every call completes on local state.
type Manager struct {
	store   store.Store
	nowFunc func() time.Time
	logger  zerolog.Logger
}

type Option func(*Manager)

func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates a Manager over s. The initial state is whatever s already holds.
func New(s store.Store, options ...Option) *Manager {
	m := &Manager{
		store:   s,
		nowFunc: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// StoreCredential persists c with every entry expiring at the decoded expiry
// of its authoritative token (AccessToken for password logins, OAuthIdentifier
// for OAuth logins). Nothing is written unless all writes succeed.
func (m *Manager) StoreCredential(c Credential) error {
	claims, err := token.Decode(c.authoritativeToken())
	if err != nil {
		m.logger.Warn().Err(err).Stringer("provenance", c.Provenance).Msg("Refusing to store credential")
		return fmt.Errorf("session.StoreCredential: %w", err)
	}
	if claims.Expired(m.nowFunc()) {
		m.logger.Warn().Time("expires_at", claims.ExpiresAt).Msg("Refusing to store expired credential")
		return fmt.Errorf("session.StoreCredential: %w", ErrExpiredToken)
	}

	type write struct{ key, value string }
	writes := make([]write, 0, 2)
	if c.Provenance == OAuthLogin {
		writes = append(writes, write{KeyOAuthIdentifier, c.OAuthIdentifier})
	} else {
		writes = append(writes, write{KeyAccessToken, c.AccessToken})
	}
	if c.RefreshToken != "" {
		writes = append(writes, write{KeyRefreshToken, c.RefreshToken})
	}

	// Leftovers from a previous login must not outlive or shadow this one
	m.clear()
	for _, w := range writes {
		if err := m.store.Set(w.key, w.value, claims.ExpiresAt); err != nil {
			m.clear()
			return errors.Wrapf(err, "session.StoreCredential Set %s", w.key)
		}
	}

	m.logger.Info().
		Stringer("provenance", c.Provenance).
		Str("sub", claims.Subject).
		Time("expires_at", claims.ExpiresAt).
		Msg("Credential stored")
	return nil
}

// Validate checks the stored credential and returns its claims, or one of
// ErrNoCredential, ErrMalformedToken or ErrExpiredToken. Any failure clears the store.
func (m *Manager) Validate() (token.Claims, error) {
	claims, err := m.validate()
	if err != nil {
		m.clear()
		return token.Claims{}, err
	}
	return claims, nil
}

func (m *Manager) validate() (token.Claims, error) {
	raw, ok := m.effectiveToken()
	if !ok {
		m.logger.Debug().Msg("Token not found")
		return token.Claims{}, ErrNoCredential
	}

	claims, err := token.Decode(raw)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Token invalid")
		return token.Claims{}, err
	}
	if claims.Expired(m.nowFunc()) {
		m.logger.Warn().Time("expires_at", claims.ExpiresAt).Msg("Token expired")
		return token.Claims{}, ErrExpiredToken
	}
	return claims, nil
}

// IsAuthorized reports whether a valid, unexpired credential is stored.
func (m *Manager) IsAuthorized() bool {
	_, err := m.Validate()
	return err == nil
}

// State derives the current state from IsAuthorized.
func (m *Manager) State() State {
	if m.IsAuthorized() {
		return Authenticated
	}
	return Anonymous
}

// Logout clears every stored entry. It is idempotent and never fails.
func (m *Manager) Logout() {
	m.clear()
	m.logger.Info().Msg("User logged out")
}

// AccessToken returns the stored password-login token without validating it.
func (m *Manager) AccessToken() (string, bool) {
	return m.get(KeyAccessToken)
}

// RefreshToken returns the stored refresh token without validating it.
func (m *Manager) RefreshToken() (string, bool) {
	return m.get(KeyRefreshToken)
}

// OAuthIdentifier returns the stored OAuth identifier without validating it.
func (m *Manager) OAuthIdentifier() (string, bool) {
	return m.get(KeyOAuthIdentifier)
}

// Provenance reports how the stored credential was obtained.
func (m *Manager) Provenance() (Provenance, bool) {
	if _, ok := m.AccessToken(); ok {
		return PasswordLogin, true
	}
	if _, ok := m.OAuthIdentifier(); ok {
		return OAuthLogin, true
	}
	return 0, false
}

// BearerToken returns the token to attach to outgoing requests, preferring the
// password-login token. Like the other accessors it does not check expiry.
func (m *Manager) BearerToken() (string, bool) {
	return m.effectiveToken()
}

// StoreProfile caches p until the current credential expires.
func (m *Manager) StoreProfile(p Profile) error {
	raw, ok := m.effectiveToken()
	if !ok {
		return fmt.Errorf("session.StoreProfile: %w", ErrNoCredential)
	}
	claims, err := token.Decode(raw)
	if err != nil {
		return fmt.Errorf("session.StoreProfile: %w", err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrapf(err, "session.StoreProfile Marshal")
	}
	if err := m.store.Set(KeyProfile, string(data), claims.ExpiresAt); err != nil {
		return errors.Wrapf(err, "session.StoreProfile Set")
	}
	return nil
}

// Profile returns the cached profile, if any.
func (m *Manager) Profile() (Profile, bool) {
	raw, ok := m.get(KeyProfile)
	if !ok {
		return Profile{}, false
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		m.logger.Warn().Err(err).Msg("Discarding unreadable profile")
		return Profile{}, false
	}
	return p, true
}

func (m *Manager) effectiveToken() (string, bool) {
	if raw, ok := m.AccessToken(); ok {
		return raw, true
	}
	return m.OAuthIdentifier()
}

func (m *Manager) get(key string) (string, bool) {
	v, err := m.store.Get(key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Err(err).Str("key", key).Msg("Failed to read session store")
		}
		return "", false
	}
	if v == "" {
		return "", false
	}
	return v, true
}

func (m *Manager) clear() {
	for _, key := range allKeys {
		if err := m.store.Remove(key); err != nil {
			m.logger.Err(err).Str("key", key).Msg("Failed to clear session entry")
		}
	}
}

package session

import "github.com/jrsteele09/go-notes-session/internal/errors"

var (
	// ErrMalformedToken: the token cannot be decoded or carries no expiry
	ErrMalformedToken = errors.ErrMalformedToken
	// ErrMissingExpiry wraps ErrMalformedToken for tokens without an exp claim
	ErrMissingExpiry = errors.ErrMissingExpiry
	// ErrExpiredToken: the token decodes but its expiry has passed
	ErrExpiredToken = errors.ErrTokenExpired
	// ErrNoCredential: nothing is stored
	ErrNoCredential = errors.ErrNoCredential
)

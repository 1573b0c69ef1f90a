// Package token reads the payload of bearer tokens issued by the hosted auth
// API. Signatures are not verified here: the remote API checks them on every
// authenticated call, this package only extracts the expiry used to gate the UI.
package token

import (
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-notes-session/internal/errors"
)

var (
	// ErrMalformedToken is returned when a token cannot be decoded.
	ErrMalformedToken = errors.ErrMalformedToken
	// ErrMissingExpiry is returned when a token decodes but carries no usable exp claim.
	// It wraps ErrMalformedToken.
	ErrMissingExpiry = errors.ErrMissingExpiry
)

// Claims is the structured result of decoding a token payload.
type Claims struct {
	ExpiresAt time.Time // Decoded from exp (seconds since epoch)
	Subject   string    // sub, informational
	Email     string    // email, informational
}

// Expired reports whether the claims are no longer valid at now.
// A token is valid only while its expiry is strictly in the future.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// Decode parses the payload of a JWT without verifying its signature.
func Decode(raw string) (Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return Claims{}, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	parsed, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("%w: error extracting claims", ErrMalformedToken)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	// exp of zero is treated the same as no exp at all
	if exp == nil || exp.Unix() == 0 {
		return Claims{}, ErrMissingExpiry
	}

	sub, _ := claims.GetSubject()
	email, _ := claims["email"].(string)

	return Claims{
		ExpiresAt: exp.Time,
		Subject:   sub,
		Email:     email,
	}, nil
}

package errors

import (
	"errors"
	"fmt"
)

// Common error types shared by the session, store and API client packages
var (
	// Token errors
	ErrMalformedToken = errors.New("malformed token")
	ErrMissingExpiry  = fmt.Errorf("%w: missing exp claim", ErrMalformedToken)
	ErrTokenExpired   = errors.New("token expired")

	// Session errors
	ErrNoCredential = errors.New("no credential stored")

	// Storage errors
	ErrNotFound = errors.New("not found")

	// Remote API errors
	ErrUnauthorized         = errors.New("unauthorized")
	ErrConfirmationRequired = errors.New("email confirmation required")

	// OAuth flow errors
	ErrInvalidState = errors.New("invalid state parameter")
	ErrInvalidNonce = errors.New("invalid nonce")
	ErrFlowExpired  = errors.New("authorization flow expired")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

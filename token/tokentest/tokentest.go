// Package tokentest mints signed JWTs for tests.
package tokentest

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "tokentest-secret"

// Expiring returns a token for subject that expires at expiresAt.
func Expiring(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()
	return Sign(t, jwtlib.MapClaims{
		"sub":   subject,
		"email": subject + "@example.com",
		"iat":   expiresAt.Add(-time.Hour).Unix(),
		"exp":   expiresAt.Unix(),
	})
}

// Sign returns an HS256 token carrying exactly the given claims.
func Sign(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

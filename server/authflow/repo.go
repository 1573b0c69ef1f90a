// Package authflow keeps in-flight OIDC login flows between the redirect to
// the provider and the callback, keyed by the OAuth state parameter.
package authflow

import (
	"github.com/jrsteele09/go-notes-session/internal/errors"
	"github.com/jrsteele09/go-notes-session/oidclogin"
)

var (
	// ErrInvalidState is returned for an unknown or already consumed state
	ErrInvalidState = errors.ErrInvalidState
	// ErrFlowExpired is returned for a flow older than the repo's max age
	ErrFlowExpired = errors.ErrFlowExpired
)

type Repo interface {
	Upsert(state string, flow *oidclogin.Flow) error
	Get(state string) (*oidclogin.Flow, error)
	Delete(state string) error
}

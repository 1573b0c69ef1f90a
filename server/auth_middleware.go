package server

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-notes-session/session"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeySession stores the request's *session.Manager
const ContextKeySession ContextKey = "session"

// RequireSession is middleware for HTML routes that need a signed-in user.
// Anonymous requests are sent to redirect with the original path as return_to;
// the stored credential is cleared if it failed validation.
func (s *Server) RequireSession(redirect string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			mgr := s.sessionFor(w, r)
			if !mgr.IsAuthorized() {
				target := redirect + "?" + url.Values{"return_to": {r.URL.RequestURI()}}.Encode()
				redirectSuccess(w, r, target)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySession, mgr)
			next(w, r.WithContext(ctx))
		}
	}
}

// SessionFrom returns the manager injected by RequireSession.
func SessionFrom(ctx context.Context) (*session.Manager, bool) {
	mgr, ok := ctx.Value(ContextKeySession).(*session.Manager)
	return mgr, ok
}

package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-notes-session/authapi"
	"github.com/jrsteele09/go-notes-session/internal/errors"
	"github.com/jrsteele09/go-notes-session/session"
	"github.com/rs/zerolog/log"
)

type signInFunc func(ctx context.Context, email, password string) (*authapi.Session, error)

// LoginHandler signs in with email and password against the auth API
func (s *Server) LoginHandler() http.HandlerFunc {
	return s.passwordHandler("Sign-in", s.auth.SignInWithPassword)
}

// SignupHandler registers a new account and signs it in when the backend
// issues a session straight away
func (s *Server) SignupHandler() http.HandlerFunc {
	return s.passwordHandler("Sign-up", s.auth.SignUp)
}

func (s *Server) passwordHandler(action string, signIn signInFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			redirectWithError(w, r, RouteIndex, "Invalid form submission")
			return
		}
		email := strings.TrimSpace(r.PostFormValue("email"))
		password := r.PostFormValue("password")
		returnTo := localReturnURL(r.PostFormValue("return_to"), RouteDashboard)

		if email == "" || password == "" {
			redirectWithError(w, r, RouteIndex, "Email and password are required")
			return
		}

		authSession, err := signIn(r.Context(), email, password)
		switch {
		case errors.Is(err, authapi.ErrConfirmationRequired):
			redirectWithMessage(w, r, RouteIndex, "Check your email to confirm your account")
			return
		case errors.Is(err, authapi.ErrUnauthorized):
			log.Info().Str("email", email).Msgf("%s rejected", action)
			redirectWithError(w, r, RouteIndex, "Invalid email or password")
			return
		case err != nil:
			log.Err(err).Msgf("%s failed", action)
			redirectWithError(w, r, RouteIndex, action+" failed, please try again")
			return
		}

		mgr := s.sessionFor(w, r)
		if err := mgr.StoreCredential(authSession.Credential()); err != nil {
			log.Err(err).Msgf("%s returned an unusable token", action)
			redirectWithError(w, r, RouteIndex, action+" failed, please try again")
			return
		}
		if authSession.User != nil {
			if err := mgr.StoreProfile(authSession.User.Profile()); err != nil {
				log.Warn().Err(err).Msg("Failed to cache profile")
			}
		}

		redirectSuccess(w, r, returnTo)
	}
}

// LogoutHandler clears the local session, then revokes it remotely on a best-effort basis
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mgr := s.sessionFor(w, r)
		accessToken, remote := mgr.AccessToken()
		mgr.Logout()

		if remote {
			if err := s.auth.SignOut(r.Context(), accessToken); err != nil {
				log.Warn().Err(err).Msg("Remote sign-out failed")
			}
		}
		redirectSuccess(w, r, RouteIndex)
	}
}

// storeIdentity caches the display profile that came with an OIDC login
func storeIdentity(mgr *session.Manager, name, email, picture string) {
	if err := mgr.StoreProfile(session.Profile{Name: name, Email: email, Image: picture}); err != nil {
		log.Warn().Err(err).Msg("Failed to cache profile")
	}
}

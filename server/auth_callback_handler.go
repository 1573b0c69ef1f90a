package server

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-notes-session/internal/errors"
	"github.com/jrsteele09/go-notes-session/oidclogin"
	"github.com/jrsteele09/go-notes-session/server/authflow"
	"github.com/rs/zerolog/log"
)

// OAuthStartHandler begins an OIDC login and redirects to the provider
func (s *Server) OAuthStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnTo := localReturnURL(r.URL.Query().Get("return_to"), RouteDashboard)

		flow, authURL := s.login.Begin(returnTo)
		if err := s.flows.Upsert(flow.State, &flow); err != nil {
			log.Err(err).Msg("Failed to store auth flow")
			http.Error(w, "Failed to start sign-in", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// OAuthCallbackHandler completes an OIDC login and stores the resulting credential
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.FormValue("state")
		code := r.FormValue("code")
		errorParam := r.FormValue("error")
		errorDesc := r.FormValue("error_description")

		// Check for authorization errors
		if errorParam != "" {
			http.Error(w, fmt.Sprintf("Authorization failed: %s - %s", errorParam, errorDesc), http.StatusBadRequest)
			return
		}

		if code == "" || state == "" {
			http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		flow, err := s.flows.Get(state)
		if errors.Is(err, authflow.ErrFlowExpired) {
			redirectWithError(w, r, RouteIndex, "Sign-in took too long, please try again")
			return
		}
		if err != nil {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}

		// A state is single use
		if err := s.flows.Delete(state); err != nil {
			http.Error(w, "Invalid state parameter", http.StatusInternalServerError)
			return
		}

		credential, identity, err := s.login.Complete(r.Context(), *flow, code)
		switch {
		case errors.Is(err, oidclogin.ErrFlowExpired):
			redirectWithError(w, r, RouteIndex, "Sign-in took too long, please try again")
			return
		case errors.Is(err, oidclogin.ErrInvalidNonce):
			http.Error(w, "Invalid nonce", http.StatusUnauthorized)
			return
		case err != nil:
			log.Err(err).Msg("OIDC login failed")
			http.Error(w, "Sign-in failed", http.StatusBadGateway)
			return
		}

		mgr := s.sessionFor(w, r)
		if err := mgr.StoreCredential(credential); err != nil {
			log.Err(err).Msg("Provider returned an unusable ID token")
			redirectWithError(w, r, RouteIndex, "Sign-in failed, please try again")
			return
		}
		storeIdentity(mgr, identity.Name, identity.Email, identity.Picture)

		redirectSuccess(w, r, localReturnURL(flow.ReturnURL, RouteDashboard))
	}
}

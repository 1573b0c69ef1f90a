package server

import (
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/jrsteele09/go-notes-session/session"
	"github.com/jrsteele09/go-notes-session/token"
	"github.com/rs/zerolog/log"
)

// pageData is the view model shared by all HTML pages
type pageData struct {
	AppName     string
	Title       string
	Authorized  bool
	Profile     *session.Profile
	Claims      token.Claims
	Provenance  string
	ExpiresAt   string
	Error       string
	Message     string
	ReturnTo    string
	OIDCEnabled bool
}

func (s *Server) newPageData(r *http.Request, title string) pageData {
	q := r.URL.Query()
	return pageData{
		AppName:     s.config.GetAppName(),
		Title:       title,
		Error:       q.Get("error"),
		Message:     q.Get("message"),
		ReturnTo:    localReturnURL(q.Get("return_to"), ""),
		OIDCEnabled: s.login != nil,
	}
}

// withSession fills the session-derived fields from an authorized manager
func (d *pageData) withSession(mgr *session.Manager, claims token.Claims) {
	d.Authorized = true
	d.Claims = claims
	d.ExpiresAt = claims.ExpiresAt.UTC().Format(time.RFC3339)
	if p, ok := mgr.Profile(); ok {
		d.Profile = &p
	}
	if provenance, ok := mgr.Provenance(); ok {
		d.Provenance = provenance.String()
	}
}

func render(w http.ResponseWriter, tmpl *template.Template, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		log.Err(err).Msg("Failed to render template")
	}
}

// IndexHandler renders the home page with sign-in or account controls
func (s *Server) IndexHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		data := s.newPageData(r, "")
		mgr := s.sessionFor(w, r)
		if claims, err := mgr.Validate(); err == nil {
			data.withSession(mgr, claims)
		}
		render(w, tmpl, http.StatusOK, data)
	}
}

// DashboardHandler renders the signed-in landing page
func (s *Server) DashboardHandler() http.HandlerFunc {
	return s.sessionPage("dashboard.html", "Dashboard")
}

// ProfileHandler renders the cached profile of the signed-in user
func (s *Server) ProfileHandler() http.HandlerFunc {
	return s.sessionPage("profile.html", "Profile")
}

// sessionPage renders a page that sits behind RequireSession
func (s *Server) sessionPage(name, title string) http.HandlerFunc {
	tmpl := mustParseTemplate(name)

	return func(w http.ResponseWriter, r *http.Request) {
		mgr, ok := SessionFrom(r.Context())
		if !ok {
			http.Error(w, "500 - Session middleware missing", http.StatusInternalServerError)
			return
		}
		claims, err := mgr.Validate()
		if err != nil {
			redirectSuccess(w, r, RouteUnauthorized)
			return
		}

		data := s.newPageData(r, title)
		data.withSession(mgr, claims)
		render(w, tmpl, http.StatusOK, data)
	}
}

// UnauthorizedHandler renders the 401 page the session guard redirects to
func (s *Server) UnauthorizedHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("unauthorized.html")

	return func(w http.ResponseWriter, r *http.Request) {
		render(w, tmpl, http.StatusUnauthorized, s.newPageData(r, "Unauthorized"))
	}
}

// SessionStatus is the JSON body of the session API
type SessionStatus struct {
	Authorized bool             `json:"authorized"`
	Provenance string           `json:"provenance,omitempty"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	Profile    *session.Profile `json:"profile,omitempty"`
}

// SessionAPIHandler reports whether the caller's cookies hold a valid session
func (s *Server) SessionAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mgr := s.sessionFor(w, r)

		var status SessionStatus
		if claims, err := mgr.Validate(); err == nil {
			expiresAt := claims.ExpiresAt.UTC()
			status.Authorized = true
			status.ExpiresAt = &expiresAt
			if provenance, ok := mgr.Provenance(); ok {
				status.Provenance = provenance.String()
			}
			if p, ok := mgr.Profile(); ok {
				status.Profile = &p
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Err(err).Msg("Failed to encode session status")
		}
	}
}

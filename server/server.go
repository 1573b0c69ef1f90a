package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/jrsteele09/go-notes-session/authapi"
	"github.com/jrsteele09/go-notes-session/internal/config"
	"github.com/jrsteele09/go-notes-session/oidclogin"
	"github.com/jrsteele09/go-notes-session/server/authflow"
	"github.com/jrsteele09/go-notes-session/session"
	"github.com/jrsteele09/go-notes-session/store"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	auth    *authapi.Client
	login   *oidclogin.Login
	flows   authflow.Repo
	codec   *securecookie.SecureCookie
	nowFunc func() time.Time
}

type Option func(*Server)

// WithNowFunc overrides the clock used by per-request session managers
func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

// New creates the HTTP front end. login may be nil, in which case the OIDC
// routes are not registered.
func New(config config.Config, auth *authapi.Client, login *oidclogin.Login, flows authflow.Repo, options ...Option) (*Server, error) {
	if auth == nil {
		return nil, fmt.Errorf("[Server New] auth API client is required")
	}
	if login != nil && flows == nil {
		return nil, fmt.Errorf("[Server New] an auth flow repo is required when OIDC login is enabled")
	}

	s := &Server{
		env:     config.GetEnv(),
		mux:     http.NewServeMux(),
		config:  config,
		auth:    auth,
		login:   login,
		flows:   flows,
		codec:   store.NewCodec(config.GetCookieHashKey(), config.GetCookieBlockKey()),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// sessionFor builds a session manager over the cookies of one request.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) *session.Manager {
	cookies := store.NewCookieStore(w, r, s.codec,
		store.WithSecureCookies(getScheme(r) == "https"),
		store.WithCookieNowFunc(s.nowFunc),
	)
	return session.New(cookies,
		session.WithNowFunc(s.nowFunc),
		session.WithLogger(log.With().Str("path", r.URL.Path).Logger()),
	)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

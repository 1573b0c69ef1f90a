package server

// Route path constants
const (
	RouteIndex = "/"

	// Password auth against the hosted auth API
	RouteAuthLogin  = "/auth/login"
	RouteAuthSignup = "/auth/signup"
	RouteAuthLogout = "/auth/logout"

	// OIDC login, registered only when a provider is configured
	RouteAuthOAuth = "/auth/oauth"
	RouteCallback  = "/callback"

	// Pages behind the session guard
	RouteDashboard = "/dashboard"
	RouteProfile   = "/profile"

	RouteUnauthorized = "/unauthorized"

	// API Routes
	RouteAPISession = "/api/session"
)

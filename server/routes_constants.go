package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Login & Logout
	RouteAuthLogin  = "/auth/login"
	RouteAuthLogout = "/auth/logout"

	// OAuth2 Routes
	RouteWellKnownOAuthServer = "/.well-known/oauth-authorization-server"
	RouteWellKnownJWKS        = "/.well-known/jwks.json"
	RouteOAuth2Authorize      = "/oauth2/authorize"
	RouteOAuth2Token          = "/oauth2/token"
	RouteOAuth2Register       = "/oauth2/register"

	// Admin Routes - service account management
	RouteAdminServiceAccounts      = "/admin/service-accounts"
	RouteAdminServiceAccountRevoke = "/admin/service-accounts/{jti}"

	// Health
	RouteHealth = "/healthz"
)

const contentTypeJSON = "application/json; charset=utf-8"

// SessionCookieName identifies the login session cookie.
const SessionCookieName = "mdvault_session"

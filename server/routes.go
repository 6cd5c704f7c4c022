package server

func (s *Server) initRoutes() {
	// LOGIN
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware(s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("GET "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))

	// OAuth2 API routes
	s.RegisterRouteHandler("GET "+RouteWellKnownOAuthServer, ChainMiddleware(s.WellKnownOAuthServerHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKSHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteOAuth2Authorize, ChainMiddleware(s.AuthorizeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Token, ChainMiddleware(s.TokenHandler(), s.APIMiddleware(s.RateLimitMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Register, ChainMiddleware(s.RegisterClientHandler(), s.APIMiddleware(s.RateLimitMiddleware)...))

	// Admin routes (require an admin session)
	s.RegisterRouteHandler("GET "+RouteAdminServiceAccounts, ChainMiddleware(s.ListServiceAccountsHandler(), s.APIMiddleware(s.RequireAdminSession)...))
	s.RegisterRouteHandler("POST "+RouteAdminServiceAccounts, ChainMiddleware(s.MintServiceTokenHandler(), s.APIMiddleware(s.RequireAdminSession)...))
	s.RegisterRouteHandler("DELETE "+RouteAdminServiceAccountRevoke, ChainMiddleware(s.RevokeServiceAccountHandler(), s.APIMiddleware(s.RequireAdminSession)...))

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
}

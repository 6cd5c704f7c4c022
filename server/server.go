package server

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mdvault/authserver/auth"
	"github.com/mdvault/authserver/internal/config"
	srverrors "github.com/mdvault/authserver/internal/errors"
	"github.com/mdvault/authserver/security"
	"github.com/mdvault/authserver/token"
	"github.com/mdvault/authserver/token/keys"
)

// Server routes HTTP traffic to the authorization flow and token services.
type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	routes  []string
	config  *config.Config
	auth    *auth.Service
	tokens  *token.Service
	keys    *keys.Manager
	limiter *security.RateLimiter
	log     zerolog.Logger
}

func New(cfg *config.Config, authService *auth.Service, tokenService *token.Service, keyManager *keys.Manager, log zerolog.Logger) (*Server, error) {
	if cfg == nil || authService == nil || tokenService == nil {
		return nil, srverrors.Wrapf(srverrors.ErrInternal, "[Server.New] missing dependencies")
	}

	s := &Server{
		env:     cfg.Env,
		mux:     http.NewServeMux(),
		config:  cfg,
		auth:    authService,
		tokens:  tokenService,
		keys:    keyManager,
		limiter: security.NewRateLimiter(cfg.Security.RateLimitRPM),
		log:     log,
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

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.log.Debug().Str("method", parts[0]).Str("path", parts[1]).Msg("route registered")
		} else {
			s.log.Debug().Str("path", parts[0]).Msg("route registered")
		}
	}
}

// clientIP extracts the caller address for rate limiting, honouring the
// first hop of X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		return host[:idx]
	}
	return host
}

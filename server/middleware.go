package server

import (
	"net/http"
	"time"

	srverrors "github.com/mdvault/authserver/internal/errors"
	"github.com/mdvault/authserver/users"
)

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

// APIMiddleware is the base chain for JSON endpoints. Extra middleware is
// appended after the base set so route-specific checks run innermost.
func (s *Server) APIMiddleware(mw ...func(http.HandlerFunc) http.HandlerFunc) []func(http.HandlerFunc) http.HandlerFunc {
	chainedMiddleWare := []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.SecurityHeadersMiddleware,
	}
	chainedMiddleWare = append(chainedMiddleWare, mw...)
	return chainedMiddleWare
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				writeJSONError(w, "server_error", "internal server error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

func (s *Server) SecurityHeadersMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		next(w, r)
	}
}

// RateLimitMiddleware throttles credential-bearing endpoints per client IP.
func (s *Server) RateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			writeJSONError(w, "rate_limited", "too many requests", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// RequireAdminSession gates administrative endpoints behind a logged-in
// admin user.
func (s *Server) RequireAdminSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil {
			writeJSONError(w, "unauthorized", "login required", http.StatusUnauthorized)
			return
		}
		user, _, err := s.auth.SessionUser(r.Context(), cookie.Value)
		if err != nil {
			if srverrors.Is(err, srverrors.ErrSessionNotFound) || srverrors.Is(err, srverrors.ErrSessionExpired) {
				writeJSONError(w, "unauthorized", "login required", http.StatusUnauthorized)
				return
			}
			writeJSONError(w, "server_error", "session lookup failed", http.StatusInternalServerError)
			return
		}
		if user.Role != users.RoleAdmin {
			writeJSONError(w, "forbidden", "admin role required", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

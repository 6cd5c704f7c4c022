package server

import (
	"encoding/json"
	"net/http"
	"time"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginHandler verifies credentials and sets the session cookie. Form
// submissions and JSON bodies are both accepted.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		contentType := r.Header.Get("Content-Type")
		if contentType == "application/json" || contentType == contentTypeJSON {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSONError(w, "invalid_request", "failed to parse request body", http.StatusBadRequest)
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				writeJSONError(w, "invalid_request", "failed to parse form data", http.StatusBadRequest)
				return
			}
			req.Email = r.FormValue("email")
			req.Password = r.FormValue("password")
		}

		session, err := s.auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    session.ID,
			Path:     "/",
			Expires:  session.ExpiresAt,
			HttpOnly: true,
			Secure:   s.env != "DEV",
			SameSite: http.SameSiteLaxMode,
		})

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session_expires_at": session.ExpiresAt.Format(time.RFC3339),
		})
	}
}

// LogoutHandler removes the session and clears the cookie.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(SessionCookieName); err == nil {
			if err := s.auth.Logout(r.Context(), cookie.Value); err != nil {
				s.writeServiceError(w, err)
				return
			}
		}

		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

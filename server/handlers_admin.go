package server

import (
	"encoding/json"
	"net/http"
	"time"
)

type mintServiceTokenRequest struct {
	Name      string `json:"name"`
	Scope     string `json:"scope"`
	ExpiresIn string `json:"expires_in,omitempty"` // Go duration string, empty for the default
}

type mintServiceTokenResponse struct {
	Token     string `json:"token"`
	JTI       string `json:"jti"`
	Name      string `json:"name"`
	Scope     string `json:"scope"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// MintServiceTokenHandler issues a long-lived token for machine callers
// and records its jti for later revocation.
func (s *Server) MintServiceTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mintServiceTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "failed to parse request body", http.StatusBadRequest)
			return
		}

		var expiresIn time.Duration
		if req.ExpiresIn != "" {
			parsed, err := time.ParseDuration(req.ExpiresIn)
			if err != nil {
				writeJSONError(w, "invalid_request", "expires_in must be a duration string", http.StatusBadRequest)
				return
			}
			expiresIn = parsed
		}

		raw, account, err := s.auth.MintServiceToken(r.Context(), req.Name, req.Scope, expiresIn)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		resp := mintServiceTokenResponse{
			Token: raw,
			JTI:   account.JTI,
			Name:  account.Name,
			Scope: account.Scope,
		}
		if !account.ExpiresAt.IsZero() {
			resp.ExpiresAt = account.ExpiresAt.Format(time.RFC3339)
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// ListServiceAccountsHandler returns all service accounts. Token values
// are never stored, only jti records.
func (s *Server) ListServiceAccountsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := s.auth.ListServiceAccounts(r.Context())
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(accounts)
	}
}

// RevokeServiceAccountHandler marks the account revoked; its tokens are
// rejected from the next verification on.
func (s *Server) RevokeServiceAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jti := r.PathValue("jti")
		if jti == "" {
			writeJSONError(w, "invalid_request", "jti is required", http.StatusBadRequest)
			return
		}

		if err := s.auth.RevokeServiceAccount(r.Context(), jti); err != nil {
			s.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

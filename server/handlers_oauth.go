package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/mdvault/authserver/auth"
	"github.com/mdvault/authserver/authcodes"
)

// WellKnownOAuthServerHandler serves the authorization server metadata
// document (RFC 8414).
func (s *Server) WellKnownOAuthServerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issuer := s.config.Issuer

		resp := map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + RouteOAuth2Authorize,
			"token_endpoint":         issuer + RouteOAuth2Token,
			"registration_endpoint":  issuer + RouteOAuth2Register,
			"jwks_uri":               issuer + RouteWellKnownJWKS,

			"response_types_supported": []string{auth.CodeResponseType},
			"response_modes_supported": []string{"query"},

			"grant_types_supported": []string{auth.AuthorizationCodeGrant},

			"token_endpoint_auth_methods_supported": []string{
				"client_secret_post",
				"none",
			},

			// PKCE is mandatory and only the S256 transform is accepted.
			"code_challenge_methods_supported": []string{authcodes.ChallengeMethodS256},

			"scopes_supported": []string{
				"vault:read",
				"vault:write",
				"dashboard",
				"admin",
			},
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// JWKSHandler returns the JSON Web Key Set used to validate tokens.
func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.keys == nil {
			writeJSONError(w, "server_error", "no signing keys configured", http.StatusNotFound)
			return
		}
		jwks, err := s.keys.JWKS()
		if err != nil {
			writeJSONError(w, "server_error", "failed to load key set", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(jwks)
	}
}

// AuthorizeHandler begins the authorization flow. The caller must hold a
// login session; on success the browser is redirected back to the client
// with a fresh single-use code.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		params := &auth.AuthorizeParameters{
			ClientID:            query.Get("client_id"),
			ResponseType:        query.Get("response_type"),
			RedirectURI:         query.Get("redirect_uri"),
			Scope:               query.Get("scope"),
			State:               query.Get("state"),
			CodeChallenge:       query.Get("code_challenge"),
			CodeChallengeMethod: query.Get("code_challenge_method"),
		}

		var sessionID string
		if cookie, err := r.Cookie(SessionCookieName); err == nil {
			sessionID = cookie.Value
		}

		grant, err := s.auth.Authorize(r.Context(), sessionID, params)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		http.Redirect(w, r, callbackLocation(grant), http.StatusSeeOther)
	}
}

// callbackLocation appends the grant's code and state to the client's
// redirect URI. Values go through url.Values so reserved characters in
// state cannot smuggle extra query parameters into the callback.
func callbackLocation(grant *auth.AuthorizationGrant) string {
	values := url.Values{"code": {grant.Code}}
	if grant.State != "" {
		values.Set("state", grant.State)
	}

	separator := "?"
	if strings.Contains(grant.RedirectURI, "?") {
		separator = "&"
	}
	return grant.RedirectURI + separator + values.Encode()
}

// TokenHandler exchanges an authorization code for an access token.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "failed to parse form data", http.StatusBadRequest)
			return
		}

		params := &auth.ExchangeParameters{
			GrantType:    r.FormValue("grant_type"),
			Code:         r.FormValue("code"),
			RedirectURI:  r.FormValue("redirect_uri"),
			ClientID:     r.FormValue("client_id"),
			ClientSecret: r.FormValue("client_secret"),
			CodeVerifier: r.FormValue("code_verifier"),
		}

		tokenResponse, err := s.auth.Exchange(r.Context(), params)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		_ = json.NewEncoder(w).Encode(tokenResponse)
	}
}

type registerRequest struct {
	ClientName   string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris"`
}

// RegisterClientHandler implements dynamic client registration (RFC 7591).
func (s *Server) RegisterClientHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, "invalid_request", "failed to parse request body", http.StatusBadRequest)
			return
		}

		client, err := s.auth.Register(r.Context(), req.ClientName, req.RedirectURIs)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(client)
	}
}

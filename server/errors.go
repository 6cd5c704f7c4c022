package server

import (
	"encoding/json"
	"net/http"

	srverrors "github.com/mdvault/authserver/internal/errors"
)

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// writeServiceError maps service sentinels onto RFC 6749 error codes.
// Internal detail stays in the log; the response body carries only the
// code and a stable description.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case srverrors.Is(err, srverrors.ErrInvalidGrant):
		writeJSONError(w, "invalid_grant", "authorization grant is invalid", http.StatusBadRequest)
	case srverrors.Is(err, srverrors.ErrInvalidClient):
		writeJSONError(w, "invalid_client", "client authentication failed", http.StatusUnauthorized)
	case srverrors.Is(err, srverrors.ErrInvalidScope):
		writeJSONError(w, "invalid_scope", "requested scope is invalid", http.StatusBadRequest)
	case srverrors.Is(err, srverrors.ErrInvalidRedirectURI),
		srverrors.Is(err, srverrors.ErrInvalidRequest):
		writeJSONError(w, "invalid_request", "request is missing a parameter or is otherwise malformed", http.StatusBadRequest)
	case srverrors.Is(err, srverrors.ErrInvalidCredentials):
		writeJSONError(w, "invalid_credentials", "email or password is incorrect", http.StatusUnauthorized)
	case srverrors.Is(err, srverrors.ErrUnauthorized),
		srverrors.Is(err, srverrors.ErrSessionNotFound),
		srverrors.Is(err, srverrors.ErrSessionExpired):
		writeJSONError(w, "unauthorized", "login required", http.StatusUnauthorized)
	case srverrors.Is(err, srverrors.ErrTokenInvalid),
		srverrors.Is(err, srverrors.ErrTokenRevoked):
		writeJSONError(w, "invalid_token", "token is invalid or revoked", http.StatusUnauthorized)
	case srverrors.Is(err, srverrors.ErrRateLimited):
		writeJSONError(w, "rate_limited", "too many requests", http.StatusTooManyRequests)
	case srverrors.Is(err, srverrors.ErrNotFound),
		srverrors.Is(err, srverrors.ErrUserNotFound):
		writeJSONError(w, "not_found", "resource not found", http.StatusNotFound)
	default:
		s.log.Error().Err(err).Msg("unhandled service error")
		writeJSONError(w, "server_error", "internal server error", http.StatusInternalServerError)
	}
}

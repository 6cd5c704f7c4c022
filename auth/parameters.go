package auth

import (
	"strings"

	"github.com/mdvault/authserver/authcodes"
	srverrors "github.com/mdvault/authserver/internal/errors"
)

// CodeResponseType is the only response type the authorization endpoint
// supports.
const CodeResponseType = "code"

// AuthorizationCodeGrant is the only interactive grant the token endpoint
// supports.
const AuthorizationCodeGrant = "authorization_code"

// AuthorizeParameters holds the query parameters of an authorization
// request.
type AuthorizeParameters struct {
	ClientID            string
	ResponseType        string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Validate checks the request shape before any storage is touched. The
// plain PKCE method is rejected here outright; this server never supports
// it.
func (p *AuthorizeParameters) Validate() error {
	if p.ClientID == "" {
		return srverrors.Wrapf(srverrors.ErrInvalidRequest, "client_id is required")
	}
	if p.RedirectURI == "" {
		return srverrors.Wrapf(srverrors.ErrInvalidRequest, "redirect_uri is required")
	}
	if p.ResponseType != CodeResponseType {
		return srverrors.Wrapf(srverrors.ErrInvalidRequest, "response_type must be %q", CodeResponseType)
	}
	if p.CodeChallenge == "" {
		return srverrors.Wrapf(srverrors.ErrInvalidRequest, "code_challenge is required")
	}
	if len(p.CodeChallenge) > 128 {
		return srverrors.Wrapf(srverrors.ErrInvalidRequest, "code_challenge must not exceed 128 characters")
	}
	if p.CodeChallengeMethod != authcodes.ChallengeMethodS256 {
		return srverrors.Wrapf(srverrors.ErrInvalidRequest, "code_challenge_method must be %q", authcodes.ChallengeMethodS256)
	}
	return nil
}

// ExchangeParameters holds the form parameters of a token request.
type ExchangeParameters struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
}

// Validate checks the request shape before the code is consumed.
func (p *ExchangeParameters) Validate() error {
	if p.GrantType != AuthorizationCodeGrant {
		return srverrors.Wrapf(srverrors.ErrInvalidRequest, "grant_type must be %q", AuthorizationCodeGrant)
	}
	if strings.TrimSpace(p.Code) == "" {
		return srverrors.Wrapf(srverrors.ErrInvalidRequest, "code is required")
	}
	if p.ClientID == "" {
		return srverrors.Wrapf(srverrors.ErrInvalidRequest, "client_id is required")
	}
	if p.RedirectURI == "" {
		return srverrors.Wrapf(srverrors.ErrInvalidRequest, "redirect_uri is required")
	}
	if p.CodeVerifier == "" {
		return srverrors.Wrapf(srverrors.ErrInvalidRequest, "code_verifier is required")
	}
	if len(p.CodeVerifier) > 128 {
		return srverrors.Wrapf(srverrors.ErrInvalidRequest, "code_verifier must not exceed 128 characters")
	}
	return nil
}

// AuthorizationGrant is the successful outcome of an authorize call: the
// values the caller appends to the client's redirect URI.
type AuthorizationGrant struct {
	Code        string
	State       string
	RedirectURI string
}

// TokenResponse is the token endpoint's success body (RFC 6749 shape).
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

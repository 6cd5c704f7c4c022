package clients

import "time"

// TokenEndpointAuthMethod values accepted at dynamic registration.
const (
	AuthMethodClientSecretPost = "client_secret_post"
	AuthMethodNone             = "none" // Public clients with PKCE
)

// Client is a registered OAuth2 client. The secret is generated at
// registration and returned in the registration response.
type Client struct {
	ID                      string    `json:"client_id"`
	Secret                  string    `json:"client_secret,omitempty"`
	Name                    string    `json:"client_name"`
	RedirectURIs            []string  `json:"redirect_uris"`
	GrantTypes              []string  `json:"grant_types"`
	ResponseTypes           []string  `json:"response_types"`
	TokenEndpointAuthMethod string    `json:"token_endpoint_auth_method"`
	CreatedAt               time.Time `json:"created_at,omitempty"`
}

// HasRedirectURI reports whether uri exactly matches one of the registered
// redirect URIs. Prefix matches are deliberately not accepted.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if uri == registered {
			return true
		}
	}
	return false
}

// SupportsGrantType reports whether the client registered for grantType.
func (c *Client) SupportsGrantType(grantType string) bool {
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

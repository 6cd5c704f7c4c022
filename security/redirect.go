package security

import (
	"net/url"
	"strings"

	srverrors "github.com/mdvault/authserver/internal/errors"
)

// RedirectValidator decides whether a redirect target is safe. A target is
// acceptable only if it is a same-origin path with a single leading slash
// ("//" is a protocol-relative URL and an open-redirect vector), or an absolute
// http(s) URL whose host appears in the trusted allowlist. The check runs
// both at client registration and again at authorize time.
type RedirectValidator struct {
	trustedHosts map[string]struct{}
}

// NewRedirectValidator creates a validator trusting the given hosts.
func NewRedirectValidator(trustedHosts []string) *RedirectValidator {
	hosts := make(map[string]struct{}, len(trustedHosts))
	for _, host := range trustedHosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			hosts[host] = struct{}{}
		}
	}
	return &RedirectValidator{trustedHosts: hosts}
}

// Validate returns ErrInvalidRedirectURI for anything outside the policy.
func (v *RedirectValidator) Validate(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return srverrors.Wrapf(srverrors.ErrInvalidRedirectURI, "empty redirect target")
	}

	if strings.HasPrefix(raw, "/") {
		if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
			return srverrors.Wrapf(srverrors.ErrInvalidRedirectURI, "protocol-relative redirect %q", raw)
		}
		return nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return srverrors.Wrapf(srverrors.ErrInvalidRedirectURI, "unparseable redirect %q", raw)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return srverrors.Wrapf(srverrors.ErrInvalidRedirectURI, "scheme %q not allowed", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if _, ok := v.trustedHosts[host]; !ok {
		return srverrors.Wrapf(srverrors.ErrInvalidRedirectURI, "host %q not in allowlist", host)
	}
	return nil
}

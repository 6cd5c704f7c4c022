package security

import "strings"

// PathAllowlist maps a token scope to the resource path prefixes that scope
// may touch. It is consumed by downstream resource servers rather than the
// authorization flow, but lives here because it shares the scope
// vocabulary.
type PathAllowlist struct {
	prefixes map[string][]string
}

// DefaultPathAllowlist returns the scope capability map for the vault
// product suite.
func DefaultPathAllowlist() *PathAllowlist {
	return NewPathAllowlist(map[string][]string{
		"vault:read":  {"/vault/", "/attachments/"},
		"vault:write": {"/vault/", "/attachments/"},
		"dashboard":   {"/dashboard/"},
		"admin":       {"/"},
	})
}

// NewPathAllowlist creates an allowlist from a scope to path-prefix map.
func NewPathAllowlist(prefixes map[string][]string) *PathAllowlist {
	copied := make(map[string][]string, len(prefixes))
	for scope, paths := range prefixes {
		copied[scope] = append([]string(nil), paths...)
	}
	return &PathAllowlist{prefixes: copied}
}

// KnownScopes reports whether every token in the space-separated scope
// string is part of the vocabulary. An empty scope string is known.
func (p *PathAllowlist) KnownScopes(scope string) bool {
	for _, s := range strings.Fields(scope) {
		if _, ok := p.prefixes[s]; !ok {
			return false
		}
	}
	return true
}

// Allowed reports whether any scope in the space-separated scope string
// grants access to path. Unknown scopes grant nothing.
func (p *PathAllowlist) Allowed(scope, path string) bool {
	for _, s := range strings.Fields(scope) {
		for _, prefix := range p.prefixes[s] {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
	}
	return false
}

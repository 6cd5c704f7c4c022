package security_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mdvault/authserver/security"
)

func TestPathAllowlist_Allowed(t *testing.T) {
	allowlist := security.DefaultPathAllowlist()

	t.Run("scope grants its prefixes", func(t *testing.T) {
		assert.True(t, allowlist.Allowed("vault:read", "/vault/notes/today.md"))
		assert.True(t, allowlist.Allowed("vault:read", "/attachments/img.png"))
	})

	t.Run("scope does not grant other prefixes", func(t *testing.T) {
		assert.False(t, allowlist.Allowed("vault:read", "/dashboard/summary"))
	})

	t.Run("any scope in the set may grant", func(t *testing.T) {
		assert.True(t, allowlist.Allowed("vault:read dashboard", "/dashboard/summary"))
	})

	t.Run("admin grants everything", func(t *testing.T) {
		assert.True(t, allowlist.Allowed("admin", "/vault/x"))
		assert.True(t, allowlist.Allowed("admin", "/anything/else"))
	})

	t.Run("unknown scope grants nothing", func(t *testing.T) {
		assert.False(t, allowlist.Allowed("llm:prompt", "/vault/x"))
	})

	t.Run("empty scope grants nothing", func(t *testing.T) {
		assert.False(t, allowlist.Allowed("", "/vault/x"))
	})
}

func TestPathAllowlist_KnownScopes(t *testing.T) {
	allowlist := security.DefaultPathAllowlist()

	assert.True(t, allowlist.KnownScopes("vault:read vault:write"))
	assert.True(t, allowlist.KnownScopes(""))
	assert.False(t, allowlist.KnownScopes("vault:read llm:prompt"))
}

package security_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	srverrors "github.com/mdvault/authserver/internal/errors"
	"github.com/mdvault/authserver/security"
)

func TestRedirectValidator(t *testing.T) {
	v := security.NewRedirectValidator([]string{"app.example", "Dash.Example"})

	t.Run("same-origin path accepted", func(t *testing.T) {
		require.NoError(t, v.Validate("/dashboard/tasks"))
	})

	t.Run("protocol-relative rejected", func(t *testing.T) {
		err := v.Validate("//evil.com")
		require.ErrorIs(t, err, srverrors.ErrInvalidRedirectURI)
	})

	t.Run("backslash variant rejected", func(t *testing.T) {
		err := v.Validate(`/\evil.com`)
		require.ErrorIs(t, err, srverrors.ErrInvalidRedirectURI)
	})

	t.Run("allowlisted host accepted", func(t *testing.T) {
		require.NoError(t, v.Validate("https://app.example/cb"))
	})

	t.Run("allowlist is case-insensitive on host", func(t *testing.T) {
		require.NoError(t, v.Validate("https://dash.example/home"))
	})

	t.Run("untrusted host rejected", func(t *testing.T) {
		err := v.Validate("https://untrusted.example")
		require.ErrorIs(t, err, srverrors.ErrInvalidRedirectURI)
	})

	t.Run("non-http scheme rejected", func(t *testing.T) {
		err := v.Validate("javascript:alert(1)")
		require.ErrorIs(t, err, srverrors.ErrInvalidRedirectURI)
	})

	t.Run("empty rejected", func(t *testing.T) {
		err := v.Validate("")
		require.ErrorIs(t, err, srverrors.ErrInvalidRedirectURI)
	})

	t.Run("host with port uses hostname", func(t *testing.T) {
		require.NoError(t, v.Validate("http://app.example:3000/callback"))
	})
}

package users_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdvault/authserver/users"
)

func TestValidatePasswordStrength(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, users.ValidatePasswordStrength("Str0ngPass"))
	})

	t.Run("too short", func(t *testing.T) {
		err := users.ValidatePasswordStrength("Ab1")
		require.Error(t, err)
		require.Contains(t, err.Error(), "at least 8 characters")
	})

	t.Run("no uppercase", func(t *testing.T) {
		require.Error(t, users.ValidatePasswordStrength("str0ngpass"))
	})

	t.Run("no lowercase", func(t *testing.T) {
		require.Error(t, users.ValidatePasswordStrength("STR0NGPASS"))
	})

	t.Run("no number", func(t *testing.T) {
		require.Error(t, users.ValidatePasswordStrength("StrongPass"))
	})
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := users.HashPassword("Str0ngPass")
	require.NoError(t, err)
	require.NotEqual(t, "Str0ngPass", hash)

	assert.True(t, users.CheckPasswordHash("Str0ngPass", hash))
	assert.False(t, users.CheckPasswordHash("WrongPass1", hash))
}

func TestValidRole(t *testing.T) {
	assert.True(t, users.ValidRole(users.RoleMember))
	assert.True(t, users.ValidRole(users.RoleExec))
	assert.True(t, users.ValidRole(users.RoleAdmin))
	assert.False(t, users.ValidRole("superuser"))
}

func TestUserJSONHidesPasswordHash(t *testing.T) {
	user := users.User{
		ID:           "user-1",
		Email:        "alice@mdvault.example",
		PasswordHash: "$2a$10$secret",
		Role:         users.RoleAdmin,
	}

	raw, err := json.Marshal(user)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
	assert.True(t, user.IsAdmin())
}

package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, err := generateToken()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, tokenPrefix))
	assert.Len(t, token, len(tokenPrefix)+24, "12 random bytes hex-encoded")

	other, err := generateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestAuthKeyTemplate(t *testing.T) {
	a := &Auth{keyTemplate: "kungsborg:tokens:{team}"}
	assert.Equal(t, "kungsborg:tokens:42", a.key(42))
}

func TestAuthDisabled(t *testing.T) {
	config := &Config{}
	config.Server.EnableAuth = false
	a, err := NewAuth(config, nil)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("everyone resolves to a player for their team", func(t *testing.T) {
		capability, err := a.Resolve(ctx, 7, "whatever")
		require.NoError(t, err)
		assert.Equal(t, int64(7), capability.TeamID)
		assert.Equal(t, RolePlayer, capability.Role)
		assert.True(t, capability.CanPlay())
		assert.False(t, capability.CanAdminister())
	})

	t.Run("issuing a token is a no-op", func(t *testing.T) {
		token, err := a.IssueToken(ctx, 7, RolePlayer)
		require.NoError(t, err)
		assert.Empty(t, token)
	})
}

func TestAuthEnabledNeedsRedis(t *testing.T) {
	config := &Config{}
	config.Server.EnableAuth = true
	_, err := NewAuth(config, nil)
	assert.Error(t, err)
}

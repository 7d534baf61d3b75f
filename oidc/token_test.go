package oidc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTk(t *testing.T) {
	t.Parallel()
	t.Run("from-response", func(t *testing.T) {
		assert := assert.New(t)
		r := &tokenResponse{
			AccessToken:  "access",
			TokenType:    "Bearer",
			ExpiresIn:    300,
			RefreshToken: "refresh",
			IdToken:      "id",
			Scope:        "openid profile",
		}
		tk := r.token(nil)
		assert.Equal(AccessToken("access"), tk.AccessToken())
		assert.Equal(RefreshToken("refresh"), tk.RefreshToken())
		assert.Equal(IdToken("id"), tk.IdToken())
		assert.Equal("Bearer", tk.TokenType())
		assert.Equal("openid profile", tk.Scope())
		assert.False(tk.Expiry().IsZero())
		assert.False(tk.IsExpired())
		assert.True(tk.Valid())
	})
	t.Run("expired", func(t *testing.T) {
		assert := assert.New(t)
		r := &tokenResponse{
			AccessToken: "access",
			ExpiresIn:   1,
		}
		tk := r.token(func() time.Time { return time.Now().Add(-1 * time.Minute) })
		assert.True(tk.IsExpired())
		assert.False(tk.Valid())
	})
	t.Run("no-expiry-reported", func(t *testing.T) {
		assert := assert.New(t)
		r := &tokenResponse{AccessToken: "access"}
		tk := r.token(nil)
		assert.True(tk.Expiry().IsZero())
		assert.False(tk.IsExpired())
		assert.True(tk.Valid())
	})
	t.Run("no-access-token-is-not-valid", func(t *testing.T) {
		assert := assert.New(t)
		r := &tokenResponse{IdToken: "id"}
		tk := r.token(nil)
		assert.False(tk.Valid())
	})
}

func TestRefreshToken_redaction(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	const tk = RefreshToken("super secret token")
	assert.Equal(RedactedRefreshToken, tk.String())
	j, err := tk.MarshalJSON()
	require.NoError(err)
	assert.Equal(`"`+RedactedRefreshToken+`"`, string(j))
}

func TestClientSecret_redaction(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	const secret = ClientSecret("fido")
	assert.Equal(RedactedClientSecret, secret.String())
	j, err := secret.MarshalJSON()
	require.NoError(err)
	assert.Equal(`"`+RedactedClientSecret+`"`, string(j))
}

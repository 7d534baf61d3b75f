package oidc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_IntrospectToken(t *testing.T) {
	ctx := context.Background()

	t.Run("active", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, p := testProviderAndConfig(t)
		got, err := p.IntrospectToken(ctx, "test-access-token")
		require.NoError(err)
		assert.True(got.Active)
		assert.Equal("alice@example.com", got.Subject)
		assert.Equal(testClientID, got.ClientID)
		assert.False(got.ExpiresAt().IsZero())
	})
	t.Run("inactive-is-not-an-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p := testProviderAndConfig(t)
		tp.SetIntrospectActive(false)
		got, err := p.IntrospectToken(ctx, "a-revoked-token")
		require.NoError(err)
		assert.False(got.Active)
		assert.Empty(got.Subject)
		assert.True(got.ExpiresAt().IsZero())
	})
	t.Run("with-token-type-hint", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, p := testProviderAndConfig(t)
		got, err := p.IntrospectToken(ctx, "test-refresh-token", WithTokenTypeHint("refresh_token"))
		require.NoError(err)
		assert.True(got.Active)
	})
	t.Run("empty-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, p := testProviderAndConfig(t)
		got, err := p.IntrospectToken(ctx, "")
		require.Error(err)
		assert.Nil(got)
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
	t.Run("endpoint-not-supported", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetClientCreds(testClientID, testClientSecret)
		tp.DisableIntrospection()
		cfg, err := NewConfig(tp.Addr(), testClientID, testClientSecret, []Alg{ES256}, testRedirectURL,
			WithProviderCA(tp.CACert()))
		require.NoError(err)
		p, err := NewProvider(cfg)
		require.NoError(err)
		defer p.Done()

		got, err := p.IntrospectToken(ctx, "test-access-token")
		require.Error(err)
		assert.Nil(got)
		assert.True(errors.Is(err, ErrEndpointNotSupported))
	})
}

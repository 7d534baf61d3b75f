package oidc

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestProvider_LogoutURL(t *testing.T) {
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp, p := testProviderAndConfig(t)

		got, err := p.LogoutURL(
			WithIDTokenHint("test-id-token"),
			WithPostLogoutRedirectURL("https://example.com/loggedout"),
			WithLogoutState("logout-state-1"),
			WithUILocales(language.German),
		)
		require.NoError(err)

		u, err := url.Parse(got)
		require.NoError(err)
		assert.Equal(tp.Addr()+"/logout", u.Scheme+"://"+u.Host+u.Path)
		q := u.Query()
		assert.Equal(testClientID, q.Get("client_id"))
		assert.Equal("test-id-token", q.Get("id_token_hint"))
		assert.Equal("https://example.com/loggedout", q.Get("post_logout_redirect_uri"))
		assert.Equal("logout-state-1", q.Get("state"))
		assert.Equal("de", q.Get("ui_locales"))
	})
	t.Run("minimal", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, p := testProviderAndConfig(t)
		got, err := p.LogoutURL()
		require.NoError(err)
		u, err := url.Parse(got)
		require.NoError(err)
		q := u.Query()
		assert.Equal(testClientID, q.Get("client_id"))
		assert.Empty(q.Get("id_token_hint"))
	})
	t.Run("endpoint-not-supported", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		md := &ProviderMetadata{
			Issuer:                "https://example.com",
			AuthorizationEndpoint: "https://example.com/auth",
			TokenEndpoint:         "https://example.com/token",
			JWKSURI:               "https://example.com/certs",
		}
		cfg, err := NewConfig("https://example.com", testClientID, testClientSecret, []Alg{ES256}, testRedirectURL,
			WithProviderMetadata(md))
		require.NoError(err)
		p, err := NewProvider(cfg)
		require.NoError(err)
		defer p.Done()

		got, err := p.LogoutURL()
		require.Error(err)
		assert.Empty(got)
		assert.True(errors.Is(err, ErrEndpointNotSupported))
	})
}

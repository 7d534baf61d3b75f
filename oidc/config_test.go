package oidc

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		issuer       string
		clientID     string
		clientSecret ClientSecret
		supported    []Alg
		redirectURL  string
		opts         []Option
		wantMethod   ClientAuthenticationMethod
		wantErr      bool
		wantIsErr    error
	}{
		{
			name:         "valid-confidential-client",
			issuer:       "https://example.com",
			clientID:     "test-rp",
			clientSecret: "fido",
			supported:    []Alg{RS256},
			redirectURL:  "https://example.com/callback",
			wantMethod:   ClientSecretBasic,
		},
		{
			name:        "valid-public-client",
			issuer:      "https://example.com",
			clientID:    "test-rp",
			supported:   []Alg{RS256, ES256},
			redirectURL: "https://example.com/callback",
			wantMethod:  None,
		},
		{
			name:         "explicit-auth-method",
			issuer:       "https://example.com",
			clientID:     "test-rp",
			clientSecret: "fido",
			supported:    []Alg{RS256},
			redirectURL:  "https://example.com/callback",
			opts:         []Option{WithAuthMethod(ClientSecretBasic)},
			wantMethod:   ClientSecretBasic,
		},
		{
			name:         "unsupported-auth-method",
			issuer:       "https://example.com",
			clientID:     "test-rp",
			clientSecret: "fido",
			supported:    []Alg{RS256},
			redirectURL:  "https://example.com/callback",
			opts:         []Option{WithAuthMethod("private_key_jwt")},
			wantErr:      true,
			wantIsErr:    ErrUnsupportedAuthMethod,
		},
		{
			name:        "missing-client-id",
			issuer:      "https://example.com",
			supported:   []Alg{RS256},
			redirectURL: "https://example.com/callback",
			wantErr:     true,
			wantIsErr:   ErrInvalidParameter,
		},
		{
			name:         "missing-issuer",
			clientID:     "test-rp",
			clientSecret: "fido",
			supported:    []Alg{RS256},
			redirectURL:  "https://example.com/callback",
			wantErr:      true,
			wantIsErr:    ErrInvalidParameter,
		},
		{
			name:         "bad-issuer-scheme",
			issuer:       "ldap://example.com",
			clientID:     "test-rp",
			clientSecret: "fido",
			supported:    []Alg{RS256},
			redirectURL:  "https://example.com/callback",
			wantErr:      true,
			wantIsErr:    ErrInvalidIssuer,
		},
		{
			name:         "issuer-with-query",
			issuer:       "https://example.com?next=1",
			clientID:     "test-rp",
			clientSecret: "fido",
			supported:    []Alg{RS256},
			redirectURL:  "https://example.com/callback",
			wantErr:      true,
			wantIsErr:    ErrInvalidIssuer,
		},
		{
			name:         "missing-redirect",
			issuer:       "https://example.com",
			clientID:     "test-rp",
			clientSecret: "fido",
			supported:    []Alg{RS256},
			wantErr:      true,
			wantIsErr:    ErrInvalidParameter,
		},
		{
			name:         "empty-algs",
			issuer:       "https://example.com",
			clientID:     "test-rp",
			clientSecret: "fido",
			redirectURL:  "https://example.com/callback",
			wantErr:      true,
			wantIsErr:    ErrInvalidParameter,
		},
		{
			name:         "unsupported-alg",
			issuer:       "https://example.com",
			clientID:     "test-rp",
			clientSecret: "fido",
			supported:    []Alg{"HS256"},
			redirectURL:  "https://example.com/callback",
			wantErr:      true,
			wantIsErr:    ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewConfig(tt.issuer, tt.clientID, tt.clientSecret, tt.supported, tt.redirectURL, tt.opts...)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			require.NotNil(got)
			assert.Equal(tt.wantMethod, got.AuthMethod)
		})
	}

	t.Run("all-violations-reported-together", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, err := NewConfig("", "", "", nil, "")
		require.Error(err)
		msg := err.Error()
		assert.Contains(msg, "client id is empty")
		assert.Contains(msg, "issuer is empty")
		assert.Contains(msg, "redirect URL is empty")
		assert.Contains(msg, "supported algorithms is empty")
	})
	t.Run("scopes-and-audiences-deduplicated", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := NewConfig("https://example.com", "test-rp", "fido", []Alg{RS256}, "https://example.com/callback",
			WithScopes("email", "email", "profile"),
			WithAudiences("alice", "alice"),
		)
		require.NoError(err)
		assert.Equal([]string{"email", "profile"}, got.Scopes)
		assert.Equal([]string{"alice"}, got.Audiences)
	})
}

func TestConfig_HTTPClient(t *testing.T) {
	t.Parallel()
	t.Run("no-ca", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := &Config{}
		client, err := c.HTTPClient()
		require.NoError(err)
		assert.NotNil(client)
	})
	t.Run("valid-ca", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		c := &Config{ProviderCA: tp.CACert()}
		client, err := c.HTTPClient()
		require.NoError(err)
		assert.NotNil(client)
		resp, err := client.Get(tp.Addr() + "/.well-known/openid-configuration")
		require.NoError(err)
		defer resp.Body.Close()
		assert.Equal(200, resp.StatusCode)
	})
	t.Run("invalid-ca", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := &Config{ProviderCA: "not a pem"}
		client, err := c.HTTPClient()
		require.Error(err)
		assert.Nil(client)
		assert.True(errors.Is(err, ErrInvalidCACert))
	})
}

func TestHTTPClientContext(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	c := &Config{ProviderCA: tp.CACert()}
	client, err := c.HTTPClient()
	require.NoError(err)

	ctx := HTTPClientContext(context.Background(), client)

	// the client rides on the same context key the oauth2 package reads
	carried, ok := ctx.Value(oauth2.HTTPClient).(*http.Client)
	require.True(ok)
	assert.Same(client, carried)

	resp, err := carried.Get(tp.Addr() + "/.well-known/openid-configuration")
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(200, resp.StatusCode)
}

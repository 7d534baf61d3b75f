package oidc

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientAuthentication(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		method       ClientAuthenticationMethod
		clientID     string
		clientSecret ClientSecret
		wantErr      bool
		wantIsErr    error
	}{
		{
			name:         "client-secret-basic",
			method:       ClientSecretBasic,
			clientID:     "test-rp",
			clientSecret: "fido",
		},
		{
			name:     "none",
			method:   None,
			clientID: "test-rp",
		},
		{
			name:         "none-with-secret",
			method:       None,
			clientID:     "test-rp",
			clientSecret: "fido",
			wantErr:      true,
			wantIsErr:    ErrInvalidParameter,
		},
		{
			name:      "basic-without-secret",
			method:    ClientSecretBasic,
			clientID:  "test-rp",
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "missing-client-id",
			method:    None,
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:         "unsupported-method",
			method:       ClientAuthenticationMethod("client_secret_post"),
			clientID:     "test-rp",
			clientSecret: "fido",
			wantErr:      true,
			wantIsErr:    ErrUnsupportedAuthMethod,
		},
		{
			name:      "empty-method",
			method:    ClientAuthenticationMethod(""),
			clientID:  "test-rp",
			wantErr:   true,
			wantIsErr: ErrUnsupportedAuthMethod,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewClientAuthentication(tt.method, tt.clientID, tt.clientSecret)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.method, got.Method())
		})
	}
}

func TestClientAuthentication_Apply(t *testing.T) {
	t.Parallel()
	t.Run("client-secret-basic", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := NewClientAuthentication(ClientSecretBasic, "test rp", "secret/with=chars")
		require.NoError(err)
		req, err := http.NewRequest(http.MethodPost, "https://example.com/token", nil)
		require.NoError(err)
		form := url.Values{}
		a.Apply(req, form)

		assert.Equal("test rp", form.Get("client_id"))
		// RFC 6749 2.3.1: id and secret are form-url-encoded before the
		// basic auth encoding
		wantCred := url.QueryEscape("test rp") + ":" + url.QueryEscape("secret/with=chars")
		wantHeader := "Basic " + base64.StdEncoding.EncodeToString([]byte(wantCred))
		assert.Equal(wantHeader, req.Header.Get("Authorization"))
	})
	t.Run("none", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := NewClientAuthentication(None, "public-rp", "")
		require.NoError(err)
		req, err := http.NewRequest(http.MethodPost, "https://example.com/token", nil)
		require.NoError(err)
		form := url.Values{}
		a.Apply(req, form)

		assert.Equal("public-rp", form.Get("client_id"))
		assert.Empty(req.Header.Get("Authorization"))
	})
}

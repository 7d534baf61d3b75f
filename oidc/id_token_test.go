package oidc

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIdToken(t *testing.T) {
	t.Parallel()
	pubPEM, privPEM := TestGenerateKeys(t)
	keys := TestKeySetFromPEM(t, "kid-1", pubPEM)

	const (
		issuer   = "https://example.com"
		clientID = "test-client-id"
	)
	now := time.Now()

	defaultClaims := func() map[string]interface{} {
		return map[string]interface{}{
			"iss":   issuer,
			"sub":   "alice@example.com",
			"aud":   clientID,
			"exp":   now.Add(5 * time.Minute).Unix(),
			"iat":   now.Unix(),
			"nonce": "test-nonce",
		}
	}
	sign := func(claims map[string]interface{}) IdToken {
		return IdToken(TestSignJWT(t, privPEM, "kid-1", claims))
	}

	tests := []struct {
		name      string
		claims    func() map[string]interface{}
		opts      []Option
		wantIsErr error
	}{
		{
			name:   "valid",
			claims: defaultClaims,
			opts:   []Option{WithNonce("test-nonce")},
		},
		{
			name: "valid-audience-set",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				c["aud"] = []string{clientID}
				return c
			},
		},
		{
			name: "valid-multi-audience-with-azp",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				c["aud"] = []string{clientID, "other-client"}
				c["azp"] = clientID
				return c
			},
		},
		{
			name: "issuer-mismatch",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				c["iss"] = "https://attacker.example.com"
				return c
			},
			wantIsErr: ErrIssuerMismatch,
		},
		{
			name: "audience-mismatch",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				c["aud"] = "other-client"
				return c
			},
			wantIsErr: ErrAudienceMismatch,
		},
		{
			name: "multi-audience-missing-azp",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				c["aud"] = []string{clientID, "other-client"}
				return c
			},
			wantIsErr: ErrAzpMismatch,
		},
		{
			name: "multi-audience-azp-mismatch",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				c["aud"] = []string{clientID, "other-client"}
				c["azp"] = "other-client"
				return c
			},
			wantIsErr: ErrAzpMismatch,
		},
		{
			name: "multi-audience-azp-mismatch-allowed",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				c["aud"] = []string{clientID, "other-client"}
				c["azp"] = "other-client"
				return c
			},
			opts: []Option{WithAnyAuthorizedParty()},
		},
		{
			name: "expired",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				c["exp"] = now.Add(-5 * time.Minute).Unix()
				return c
			},
			wantIsErr: ErrTokenExpired,
		},
		{
			name: "expired-within-skew-is-valid",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				c["exp"] = now.Add(-30 * time.Second).Unix()
				return c
			},
		},
		{
			name: "issued-in-the-future",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				c["iat"] = now.Add(5 * time.Minute).Unix()
				return c
			},
			wantIsErr: ErrTokenNotYetValid,
		},
		{
			name:      "nonce-mismatch",
			claims:    defaultClaims,
			opts:      []Option{WithNonce("a-different-nonce")},
			wantIsErr: ErrNonceMismatch,
		},
		{
			name: "missing-iss",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				delete(c, "iss")
				return c
			},
			wantIsErr: ErrMissingClaim,
		},
		{
			name: "missing-sub",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				delete(c, "sub")
				return c
			},
			wantIsErr: ErrMissingClaim,
		},
		{
			name: "missing-aud",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				delete(c, "aud")
				return c
			},
			wantIsErr: ErrMissingClaim,
		},
		{
			name: "empty-aud-set",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				c["aud"] = []string{}
				return c
			},
			wantIsErr: ErrMissingClaim,
		},
		{
			name: "missing-exp",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				delete(c, "exp")
				return c
			},
			wantIsErr: ErrMissingClaim,
		},
		{
			name: "missing-iat",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				delete(c, "iat")
				return c
			},
			wantIsErr: ErrMissingClaim,
		},
		{
			name: "max-age-without-auth-time",
			claims: func() map[string]interface{} {
				return defaultClaims()
			},
			opts:      []Option{WithMaxAge(1 * time.Minute)},
			wantIsErr: ErrAuthTime,
		},
		{
			name: "max-age-auth-time-too-old",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				c["auth_time"] = now.Add(-1 * time.Hour).Unix()
				return c
			},
			opts:      []Option{WithMaxAge(1 * time.Minute)},
			wantIsErr: ErrAuthTime,
		},
		{
			name: "max-age-auth-time-recent",
			claims: func() map[string]interface{} {
				c := defaultClaims()
				c["auth_time"] = now.Unix()
				return c
			},
			opts: []Option{WithMaxAge(1 * time.Minute)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := ValidateIdToken(sign(tt.claims()), keys, issuer, clientID, []Alg{ES256}, tt.opts...)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Nil(got)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			require.NotNil(got)
			assert.Equal(issuer, got.Issuer)
			assert.Contains(got.Audience, clientID)
		})
	}

	t.Run("nonce-unchecked-when-not-requested", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := ValidateIdToken(sign(defaultClaims()), keys, issuer, clientID, []Alg{ES256})
		require.NoError(err)
		assert.Equal("test-nonce", got.Nonce)
	})
	t.Run("empty-parameters", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		token := sign(defaultClaims())
		_, err := ValidateIdToken("", keys, issuer, clientID, []Alg{ES256})
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidParameter))
		_, err = ValidateIdToken(token, keys, "", clientID, []Alg{ES256})
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidParameter))
		_, err = ValidateIdToken(token, keys, issuer, "", []Alg{ES256})
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
	t.Run("claims-are-broken-out", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := defaultClaims()
		c["auth_time"] = now.Unix()
		c["acr"] = "phr"
		c["amr"] = []string{"pwd", "otp"}
		c["sid"] = "session-1"
		got, err := ValidateIdToken(sign(c), keys, issuer, clientID, []Alg{ES256})
		require.NoError(err)
		assert.Equal("alice@example.com", got.Subject)
		assert.Equal("phr", got.ACR)
		assert.Equal([]string{"pwd", "otp"}, got.AMR)
		assert.Equal("session-1", got.SessionID)
		assert.False(got.AuthTime.IsZero())
		assert.Contains(got.Claims, "nonce")
	})
}

func TestIdToken_redaction(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	const tk = IdToken("super secret token")
	assert.Equal(RedactedIdToken, tk.String())
	j, err := tk.MarshalJSON()
	require.NoError(err)
	assert.Equal(`"`+RedactedIdToken+`"`, string(j))
}

func TestIdToken_Claims(t *testing.T) {
	t.Parallel()
	_, privPEM := TestGenerateKeys(t)
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		token := IdToken(TestSignJWT(t, privPEM, "", map[string]interface{}{
			"sub": "alice@example.com",
		}))
		var claims map[string]interface{}
		require.NoError(token.Claims(&claims))
		assert.Equal("alice@example.com", claims["sub"])
	})
	t.Run("empty-token", func(t *testing.T) {
		assert := assert.New(t)
		var claims map[string]interface{}
		err := IdToken("").Claims(&claims)
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
	t.Run("nil-claims", func(t *testing.T) {
		assert := assert.New(t)
		err := IdToken("token").Claims(nil)
		assert.True(errors.Is(err, ErrNilParameter))
	})
}

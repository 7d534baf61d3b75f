package oidc

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateJWTAccessToken(t *testing.T) {
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
			"iss":       issuer,
			"sub":       "alice@example.com",
			"aud":       []string{clientID},
			"client_id": clientID,
			"exp":       now.Add(5 * time.Minute).Unix(),
			"iat":       now.Unix(),
			"jti":       "token-id-1",
			"scope":     "openid profile",
		}
	}
	sign := func(claims map[string]interface{}) AccessToken {
		return AccessToken(TestSignJWT(t, privPEM, "kid-1", claims))
	}

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := ValidateJWTAccessToken(sign(defaultClaims()), keys, issuer, clientID, []Alg{ES256})
		require.NoError(err)
		assert.Equal(issuer, got.Issuer)
		assert.Equal("alice@example.com", got.Subject)
		assert.Equal(clientID, got.ClientID)
		assert.Equal("token-id-1", got.ID)
		assert.Equal("openid profile", got.Scope)
		assert.Contains(got.Audience, clientID)
	})

	// RFC 9068 makes each of these claims required; any absence is a hard
	// failure
	for _, missing := range []string{"iss", "exp", "aud", "sub", "client_id", "iat", "jti"} {
		missing := missing
		t.Run("missing-"+missing, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			c := defaultClaims()
			delete(c, missing)
			got, err := ValidateJWTAccessToken(sign(c), keys, issuer, clientID, []Alg{ES256})
			require.Error(err)
			assert.Nil(got)
			assert.Truef(errors.Is(err, ErrMissingClaim), "wanted ErrMissingClaim but got \"%s\"", err)
		})
	}

	t.Run("issuer-mismatch", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := defaultClaims()
		c["iss"] = "https://attacker.example.com"
		got, err := ValidateJWTAccessToken(sign(c), keys, issuer, clientID, []Alg{ES256})
		require.Error(err)
		assert.Nil(got)
		assert.True(errors.Is(err, ErrIssuerMismatch))
	})
	t.Run("audience-mismatch", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := defaultClaims()
		c["aud"] = []string{"other-client"}
		got, err := ValidateJWTAccessToken(sign(c), keys, issuer, clientID, []Alg{ES256})
		require.Error(err)
		assert.Nil(got)
		assert.True(errors.Is(err, ErrAudienceMismatch))
	})
	t.Run("expired", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := defaultClaims()
		c["exp"] = now.Add(-5 * time.Minute).Unix()
		got, err := ValidateJWTAccessToken(sign(c), keys, issuer, clientID, []Alg{ES256})
		require.Error(err)
		assert.Nil(got)
		assert.True(errors.Is(err, ErrTokenExpired))
	})
	t.Run("bad-signature", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		_, otherPriv := TestGenerateKeys(t)
		token := AccessToken(TestSignJWT(t, otherPriv, "kid-1", defaultClaims()))
		got, err := ValidateJWTAccessToken(token, keys, issuer, clientID, []Alg{ES256})
		require.Error(err)
		assert.Nil(got)
		assert.True(errors.Is(err, ErrInvalidSignature))
	})
}

func TestAccessToken_redaction(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	const tk = AccessToken("super secret token")
	assert.Equal(RedactedAccessToken, tk.String())
	j, err := tk.MarshalJSON()
	require.NoError(err)
	assert.Equal(`"`+RedactedAccessToken+`"`, string(j))
}

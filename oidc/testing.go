package oidc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"

	"github.com/go-jose/go-jose/v3"
	"github.com/stretchr/testify/require"
)

// TestGenerateKeys will generate a test ECDSA P-256 pub/priv key pair,
// PEM-encoded.
func TestGenerateKeys(t *testing.T) (pub, priv string) {
	t.Helper()
	require := require.New(t)
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)

	{
		derBytes, err := x509.MarshalECPrivateKey(privateKey)
		require.NoError(err)

		pemBlock := &pem.Block{
			Type:  "EC PRIVATE KEY",
			Bytes: derBytes,
		}
		priv = string(pem.EncodeToMemory(pemBlock))
	}
	{
		derBytes, err := x509.MarshalPKIXPublicKey(privateKey.Public())
		require.NoError(err)

		pemBlock := &pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: derBytes,
		}
		pub = string(pem.EncodeToMemory(pemBlock))
	}

	return pub, priv
}

// TestSignJWT will bundle the provided claims into a test ES256-signed JWT.
// The provided key must be a PEM-encoded ECDSA P-256 private key.  An empty
// keyID leaves the kid header out.
func TestSignJWT(t *testing.T, ecdsaPrivKeyPEM string, keyID string, claims map[string]interface{}) string {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(ecdsaPrivKeyPEM))
	require.NotNil(block)
	key, err := x509.ParseECPrivateKey(block.Bytes)
	require.NoError(err)

	signerOpts := (&jose.SignerOptions{}).WithType("JWT")
	signingKey := jose.SigningKey{Algorithm: jose.ES256, Key: key}
	if keyID != "" {
		signingKey.Key = jose.JSONWebKey{Key: key, KeyID: keyID}
	}
	sig, err := jose.NewSigner(signingKey, signerOpts)
	require.NoError(err)

	payload, err := json.Marshal(claims)
	require.NoError(err)

	jws, err := sig.Sign(payload)
	require.NoError(err)

	raw, err := jws.CompactSerialize()
	require.NoError(err)

	return raw
}

// TestKeySetFromPEM builds a KeySet directly from a PEM-encoded public key,
// handy for validator tests that never talk to a provider.
func TestKeySetFromPEM(t *testing.T, keyID string, pubPEM string) *KeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubPEM))
	require.NotNil(block)
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(err)

	ks, err := NewKeySet(jose.JSONWebKey{
		Key:       pub,
		KeyID:     keyID,
		Algorithm: string(ES256),
		Use:       "sig",
	})
	require.NoError(err)
	return ks
}

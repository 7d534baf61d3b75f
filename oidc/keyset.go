package oidc

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"strings"

	jose "github.com/go-jose/go-jose/v3"
)

// KeySet is an immutable snapshot of an OP's public signing keys, indexed by
// key ID.  A snapshot is used for one or more verifications; fetching and
// refreshing the underlying JWKS document is a caller concern, which keeps
// every verification a pure function of its arguments.
type KeySet struct {
	keys []jose.JSONWebKey
}

// NewKeySet creates a KeySet snapshot from the given keys.
func NewKeySet(keys ...jose.JSONWebKey) (*KeySet, error) {
	const op = "oidc.NewKeySet"
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s: no keys provided: %w", op, ErrInvalidParameter)
	}
	ks := &KeySet{keys: make([]jose.JSONWebKey, len(keys))}
	copy(ks.keys, keys)
	return ks, nil
}

// ParseKeySet creates a KeySet snapshot from a raw JWKS document, as served
// at a provider's jwks_uri.
func ParseKeySet(jwksDocument []byte) (*KeySet, error) {
	const op = "oidc.ParseKeySet"
	var jwks jose.JSONWebKeySet
	if err := json.Unmarshal(jwksDocument, &jwks); err != nil {
		return nil, fmt.Errorf("%s: unable to parse JWKS document: %w", op, err)
	}
	return NewKeySet(jwks.Keys...)
}

// NewKeySetFromPEM creates a KeySet snapshot from PEM-encoded x509
// certificates or PKIX public keys.
func NewKeySetFromPEM(publicKeys ...string) (*KeySet, error) {
	const op = "oidc.NewKeySetFromPEM"
	keys := make([]jose.JSONWebKey, 0, len(publicKeys))
	for _, p := range publicKeys {
		key, err := parsePublicKeyPEM([]byte(p))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		keys = append(keys, jose.JSONWebKey{Key: key})
	}
	return NewKeySet(keys...)
}

// Len returns the number of keys in the snapshot.
func (ks *KeySet) Len() int { return len(ks.keys) }

// joseHeader is the subset of the JOSE protected header needed to pick a
// verification key before any signature work is done.
type joseHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// VerifySignature parses the given compact serialized JWS, verifies its
// signature against the snapshot and returns the raw claims in its payload.
//
// The token's own header never chooses the algorithm: "none" and anything
// outside allowedAlgs fails with ErrUnsupportedAlgorithm before a key is
// even resolved, which closes the algorithm-confusion and "none" downgrade
// classes of attack.  A key is resolved by the header kid; when the header
// carries no kid and the snapshot holds exactly one key compatible with the
// header algorithm, that key is used.
//
// VerifySignature never judges whether individual claims are acceptable;
// that belongs to ValidateIdToken and ValidateJWTAccessToken.
func (ks *KeySet) VerifySignature(token string, allowedAlgs ...Alg) (map[string]interface{}, error) {
	const op = "KeySet.VerifySignature"
	if ks == nil {
		return nil, fmt.Errorf("%s: key set is nil: %w", op, ErrNilParameter)
	}
	if len(allowedAlgs) == 0 {
		return nil, fmt.Errorf("%s: no allowed algorithms: %w", op, ErrInvalidParameter)
	}
	for _, a := range allowedAlgs {
		if !supportedAlgorithms[a] {
			return nil, fmt.Errorf("%s: %q: %w", op, a, ErrUnsupportedAlgorithm)
		}
	}

	hdr, err := parseHeader(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if hdr.Alg == "none" || hdr.Alg == "" || !algListContains(allowedAlgs, hdr.Alg) {
		return nil, fmt.Errorf("%s: token header alg %q: %w", op, hdr.Alg, ErrUnsupportedAlgorithm)
	}

	key, err := ks.resolveKey(hdr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	jws, err := jose.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse token: %w", op, ErrMalformedToken)
	}
	payload, err := jws.Verify(key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	}

	claims := map[string]interface{}{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%s: unable to parse claims: %w", op, ErrMalformedToken)
	}
	return claims, nil
}

// parseHeader decodes the protected header of a compact serialized JWS
// without trusting anything else about the token yet.
func parseHeader(token string) (*joseHeader, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("token must have 3 parts, found %d: %w", len(parts), ErrMalformedToken)
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("unable to decode token header: %w", ErrMalformedToken)
	}
	var hdr joseHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, fmt.Errorf("unable to parse token header: %w", ErrMalformedToken)
	}
	return &hdr, nil
}

func (ks *KeySet) resolveKey(hdr *joseHeader) (jose.JSONWebKey, error) {
	if hdr.Kid != "" {
		for _, k := range ks.keys {
			if k.KeyID == hdr.Kid {
				return k, nil
			}
		}
		return jose.JSONWebKey{}, fmt.Errorf("no key with kid %q: %w", hdr.Kid, ErrKeyResolution)
	}

	var compatible []jose.JSONWebKey
	for _, k := range ks.keys {
		if keyCompatible(k, hdr.Alg) {
			compatible = append(compatible, k)
		}
	}
	if len(compatible) != 1 {
		return jose.JSONWebKey{}, fmt.Errorf("token has no kid and %d keys are compatible with alg %q: %w",
			len(compatible), hdr.Alg, ErrKeyResolution)
	}
	return compatible[0], nil
}

// keyCompatible reports whether the key could have produced a signature with
// the given algorithm, either because the key advertises that algorithm or
// because its type matches the algorithm family.
func keyCompatible(k jose.JSONWebKey, alg string) bool {
	if k.Algorithm != "" {
		return k.Algorithm == alg
	}
	switch k.Key.(type) {
	case *rsa.PublicKey:
		return strings.HasPrefix(alg, "RS") || strings.HasPrefix(alg, "PS")
	case *ecdsa.PublicKey:
		return strings.HasPrefix(alg, "ES")
	case ed25519.PublicKey:
		return alg == string(EdDSA)
	default:
		return false
	}
}

// parsePublicKeyPEM is used to parse RSA, ECDSA and Ed25519 public keys from
// PEMs of x509 certificate or PKIX public key form.
func parsePublicKeyPEM(data []byte) (interface{}, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("data does not contain a PEM block: %w", ErrInvalidParameter)
	}
	rawKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		cert, certErr := x509.ParseCertificate(block.Bytes)
		if certErr != nil {
			return nil, fmt.Errorf("unable to parse PEM as public key or certificate: %w", ErrInvalidParameter)
		}
		rawKey = cert.PublicKey
	}
	switch rawKey.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		return rawKey, nil
	default:
		return nil, fmt.Errorf("unsupported public key type %T: %w", rawKey, ErrInvalidParameter)
	}
}

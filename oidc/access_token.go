package oidc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/simple-openid/connect-go/oidc/internal/strutils"
)

// AccessToken is an oauth access_token
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token
func (t AccessToken) String() string { return RedactedAccessToken }

// MarshalJSON will redact the token
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// AccessTokenClaims is the validated claim set of a JWT-profile access token
// per RFC 9068.  A value of this type exists only as the result of a
// successful ValidateJWTAccessToken call.
type AccessTokenClaims struct {
	// Issuer is the token's iss claim
	Issuer string

	// Subject is the token's sub claim
	Subject string

	// Audience is the token's aud claim, always a set
	Audience []string

	// ClientID is the token's client_id claim
	ClientID string

	// Expiry is the token's exp claim
	Expiry time.Time

	// IssuedAt is the token's iat claim
	IssuedAt time.Time

	// ID is the token's jti claim
	ID string

	// Scope is the token's optional scope claim
	Scope string

	// AuthTime is the token's optional auth_time claim (zero when absent)
	AuthTime time.Time

	// ACR is the token's optional acr claim
	ACR string

	// Claims holds the raw claim set, including any claims not broken out
	// above
	Claims map[string]interface{}
}

// ValidateJWTAccessToken validates a self-encoded JWT access token per
// RFC 9068.  Signature verification delegates to KeySet.VerifySignature with
// errors propagating unchanged.
//
// The required claims iss, exp, aud, sub, client_id, iat and jti must all be
// present; the absence of any one is a hard ErrMissingClaim failure.  In
// particular a token without a usable aud is rejected outright rather than
// treated as addressed to anyone.  aud must contain clientID (there is no
// azp concept for access tokens) and exp/iat are checked against the
// clock-skew tolerance.
//
// Supported options: WithExpirySkew, WithNow
func ValidateJWTAccessToken(t AccessToken, keys *KeySet, issuer string, clientID string, supportedAlgs []Alg, opt ...Option) (*AccessTokenClaims, error) {
	const op = "oidc.ValidateJWTAccessToken"
	if t == "" {
		return nil, fmt.Errorf("%s: access token is empty: %w", op, ErrInvalidParameter)
	}
	if issuer == "" {
		return nil, fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter)
	}
	if clientID == "" {
		return nil, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	opts := getValidationOpts(opt...)

	raw, err := keys.VerifySignature(string(t), supportedAlgs...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	claims := &AccessTokenClaims{Claims: raw}

	var ok bool
	if claims.Issuer, ok = stringClaim(raw, "iss"); !ok {
		return nil, fmt.Errorf("%s: iss: %w", op, ErrMissingClaim)
	}
	if claims.Expiry, ok = timeClaim(raw, "exp"); !ok {
		return nil, fmt.Errorf("%s: exp: %w", op, ErrMissingClaim)
	}
	if claims.Audience, ok = audienceClaim(raw); !ok {
		return nil, fmt.Errorf("%s: aud: %w", op, ErrMissingClaim)
	}
	if claims.Subject, ok = stringClaim(raw, "sub"); !ok {
		return nil, fmt.Errorf("%s: sub: %w", op, ErrMissingClaim)
	}
	if claims.ClientID, ok = stringClaim(raw, "client_id"); !ok {
		return nil, fmt.Errorf("%s: client_id: %w", op, ErrMissingClaim)
	}
	if claims.IssuedAt, ok = timeClaim(raw, "iat"); !ok {
		return nil, fmt.Errorf("%s: iat: %w", op, ErrMissingClaim)
	}
	if claims.ID, ok = stringClaim(raw, "jti"); !ok {
		return nil, fmt.Errorf("%s: jti: %w", op, ErrMissingClaim)
	}
	claims.Scope, _ = stringClaim(raw, "scope")
	claims.AuthTime, _ = timeClaim(raw, "auth_time")
	claims.ACR, _ = stringClaim(raw, "acr")

	if claims.Issuer != issuer {
		return nil, fmt.Errorf("%s: token issuer %q does not match %q: %w", op, claims.Issuer, issuer, ErrIssuerMismatch)
	}
	if !strutils.StrListContains(claims.Audience, clientID) {
		return nil, fmt.Errorf("%s: token audience does not contain client id: %w", op, ErrAudienceMismatch)
	}

	now := opts.now()
	if now.After(claims.Expiry.Add(opts.withExpirySkew)) {
		return nil, fmt.Errorf("%s: token expired at %s: %w", op, claims.Expiry, ErrTokenExpired)
	}
	if claims.IssuedAt.After(now.Add(opts.withExpirySkew)) {
		return nil, fmt.Errorf("%s: token issued in the future at %s: %w", op, claims.IssuedAt, ErrTokenNotYetValid)
	}

	return claims, nil
}

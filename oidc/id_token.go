package oidc

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"time"

	"github.com/simple-openid/connect-go/oidc/internal/strutils"
)

// IdToken is an oidc id_token in compact serialized form
type IdToken string

// RedactedIdToken is the redacted string or json for an oidc id_token
const RedactedIdToken = "[REDACTED: id_token]"

// String will redact the token
func (t IdToken) String() string { return RedactedIdToken }

// MarshalJSON will redact the token
func (t IdToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIdToken)
}

// Claims decodes the IdToken payload into claims without verifying the
// token.  Use ValidateIdToken to obtain trusted claims.
func (t IdToken) Claims(claims interface{}) error {
	const op = "IdToken.Claims"
	if len(t) == 0 {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	return UnmarshalClaims(string(t), claims)
}

// IdTokenClaims is the validated claim set of an id_token.  A value of this
// type exists only as the result of a successful ValidateIdToken call: an
// invalid signature or claim yields no IdTokenClaims, only an error.
type IdTokenClaims struct {
	// Issuer is the token's iss claim
	Issuer string

	// Subject is the token's sub claim
	Subject string

	// Audience is the token's aud claim.  It is always a set, even when the
	// token carried a bare string audience.
	Audience []string

	// Expiry is the token's exp claim
	Expiry time.Time

	// IssuedAt is the token's iat claim
	IssuedAt time.Time

	// Nonce is the token's optional nonce claim
	Nonce string

	// AuthorizedParty is the token's optional azp claim
	AuthorizedParty string

	// AuthTime is the token's optional auth_time claim (zero when absent)
	AuthTime time.Time

	// ACR is the token's optional acr claim
	ACR string

	// AMR is the token's optional amr claim
	AMR []string

	// SessionID is the token's optional sid claim
	SessionID string

	// Claims holds the raw claim set, including any claims not broken out
	// above
	Claims map[string]interface{}
}

// ValidateIdToken performs the full cryptographic and semantic validation of
// an id_token per OpenID Connect Core 1.0 section 3.1.3.7, in order:
//
//  1. signature verification against the key set (errors propagate
//     unchanged from KeySet.VerifySignature)
//  2. iss must equal issuer exactly
//  3. aud must contain clientID; a token with two or more audiences must
//     carry an azp claim, which must equal clientID unless
//     WithAnyAuthorizedParty was given
//  4. exp must be in the future and iat must not be in the future, both
//     within the clock-skew tolerance
//  5. with WithNonce, the token nonce must match exactly (constant time)
//  6. with WithMaxAge, auth_time must be present and recent enough
//
// The first violated check fails the call; no partial result is ever
// returned.
//
// Supported options: WithNonce, WithMaxAge, WithAnyAuthorizedParty,
// WithExpirySkew, WithNow
func ValidateIdToken(t IdToken, keys *KeySet, issuer string, clientID string, supportedAlgs []Alg, opt ...Option) (*IdTokenClaims, error) {
	const op = "oidc.ValidateIdToken"
	if t == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
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

	claims := &IdTokenClaims{Claims: raw}

	// required claims must all be present before their values are judged
	var ok bool
	if claims.Issuer, ok = stringClaim(raw, "iss"); !ok {
		return nil, fmt.Errorf("%s: iss: %w", op, ErrMissingClaim)
	}
	if claims.Subject, ok = stringClaim(raw, "sub"); !ok {
		return nil, fmt.Errorf("%s: sub: %w", op, ErrMissingClaim)
	}
	if claims.Audience, ok = audienceClaim(raw); !ok {
		// a token lacking a usable aud is rejected outright; "no audience"
		// is never treated as "any audience"
		return nil, fmt.Errorf("%s: aud: %w", op, ErrMissingClaim)
	}
	if claims.Expiry, ok = timeClaim(raw, "exp"); !ok {
		return nil, fmt.Errorf("%s: exp: %w", op, ErrMissingClaim)
	}
	if claims.IssuedAt, ok = timeClaim(raw, "iat"); !ok {
		return nil, fmt.Errorf("%s: iat: %w", op, ErrMissingClaim)
	}
	claims.Nonce, _ = stringClaim(raw, "nonce")
	claims.AuthorizedParty, _ = stringClaim(raw, "azp")
	claims.AuthTime, _ = timeClaim(raw, "auth_time")
	claims.ACR, _ = stringClaim(raw, "acr")
	claims.AMR, _ = stringListClaim(raw, "amr")
	claims.SessionID, _ = stringClaim(raw, "sid")

	if claims.Issuer != issuer {
		return nil, fmt.Errorf("%s: token issuer %q does not match %q: %w", op, claims.Issuer, issuer, ErrIssuerMismatch)
	}

	if !strutils.StrListContains(claims.Audience, clientID) {
		return nil, fmt.Errorf("%s: token audience does not contain client id: %w", op, ErrAudienceMismatch)
	}
	if len(claims.Audience) >= 2 {
		if claims.AuthorizedParty == "" {
			return nil, fmt.Errorf("%s: token has multiple audiences but no azp claim: %w", op, ErrAzpMismatch)
		}
		if !opts.withAnyAuthorizedParty && claims.AuthorizedParty != clientID {
			return nil, fmt.Errorf("%s: token azp does not match client id: %w", op, ErrAzpMismatch)
		}
	}

	now := opts.now()
	if now.After(claims.Expiry.Add(opts.withExpirySkew)) {
		return nil, fmt.Errorf("%s: token expired at %s: %w", op, claims.Expiry, ErrTokenExpired)
	}
	if claims.IssuedAt.After(now.Add(opts.withExpirySkew)) {
		return nil, fmt.Errorf("%s: token issued in the future at %s: %w", op, claims.IssuedAt, ErrTokenNotYetValid)
	}

	if opts.withNonce != "" {
		if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(opts.withNonce)) != 1 {
			return nil, fmt.Errorf("%s: %w", op, ErrNonceMismatch)
		}
	}

	if opts.withMaxAgeSet {
		if claims.AuthTime.IsZero() {
			return nil, fmt.Errorf("%s: max_age requested but token has no auth_time claim: %w", op, ErrAuthTime)
		}
		if claims.AuthTime.Add(opts.withMaxAge).Before(now.Add(-opts.withExpirySkew)) {
			return nil, fmt.Errorf("%s: authentication at %s is older than the requested max age: %w", op, claims.AuthTime, ErrAuthTime)
		}
	}

	return claims, nil
}

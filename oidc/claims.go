package oidc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// UnmarshalClaims decodes the payload of a compact serialized JWT into
// claims without verifying anything about the token.  Callers must only
// trust claims obtained through ValidateIdToken or ValidateJWTAccessToken.
func UnmarshalClaims(token string, claims interface{}) error {
	const op = "oidc.UnmarshalClaims"
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%s: token must have 3 parts, found %d: %w", op, len(parts), ErrMalformedToken)
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("%s: unable to decode token payload: %w", op, ErrMalformedToken)
	}
	if err := json.Unmarshal(raw, claims); err != nil {
		return fmt.Errorf("%s: unable to parse token payload: %w", op, err)
	}
	return nil
}

// stringClaim returns the named claim when it is present and a non-empty
// string.
func stringClaim(claims map[string]interface{}, name string) (string, bool) {
	v, ok := claims[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// timeClaim returns the named claim interpreted as UTC epoch seconds.
func timeClaim(claims map[string]interface{}, name string) (time.Time, bool) {
	v, ok := claims[name]
	if !ok {
		return time.Time{}, false
	}
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0), true
	case json.Number:
		sec, err := n.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(sec, 0), true
	default:
		return time.Time{}, false
	}
}

// audienceClaim returns the aud claim as a set.  A bare string audience is
// normalized to a single-element set; the set form is never narrowed to its
// first element.  The second return is false when the claim is absent,
// empty, or not a usable audience.
func audienceClaim(claims map[string]interface{}) ([]string, bool) {
	v, ok := claims["aud"]
	if !ok {
		return nil, false
	}
	switch aud := v.(type) {
	case string:
		if aud == "" {
			return nil, false
		}
		return []string{aud}, true
	case []interface{}:
		out := make([]string, 0, len(aud))
		for _, e := range aud {
			s, ok := e.(string)
			if !ok || s == "" {
				return nil, false
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	default:
		return nil, false
	}
}

// stringListClaim returns the named claim as a list of strings (used for
// amr, which is always a JSON array).
func stringListClaim(claims map[string]interface{}, name string) ([]string, bool) {
	v, ok := claims[name]
	if !ok {
		return nil, false
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		s, ok := e.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// validationOptions is the set of available options shared by
// ValidateIdToken and ValidateJWTAccessToken.
type validationOptions struct {
	withNowFunc            func() time.Time
	withExpirySkew         time.Duration
	withNonce              string
	withMaxAge             time.Duration
	withMaxAgeSet          bool
	withAnyAuthorizedParty bool
}

// DefaultClockSkew defines the default tolerance applied when checking the
// time related claims of a token.
const DefaultClockSkew = 1 * time.Minute

func validationDefaults() validationOptions {
	return validationOptions{
		withExpirySkew: DefaultClockSkew,
	}
}

// getValidationOpts gets the validation defaults and applies the opt
// overrides passed in.
func getValidationOpts(opt ...Option) validationOptions {
	opts := validationDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

func (o validationOptions) now() time.Time {
	if o.withNowFunc != nil {
		return o.withNowFunc()
	}
	return time.Now()
}

// WithNonce provides the nonce that was sent in the authentication request.
// When supplied, the token's nonce claim must match it exactly; when absent
// the claim is unchecked.
// Valid for: ValidateIdToken
func WithNonce(nonce string) Option {
	return func(o interface{}) {
		if v, ok := o.(*validationOptions); ok {
			v.withNonce = nonce
		}
	}
}

// WithMaxAge requires the token's auth_time claim to be present and recent
// enough that the end user authenticated within the given duration.
// Valid for: ValidateIdToken
func WithMaxAge(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *validationOptions:
			v.withMaxAge = d
			v.withMaxAgeSet = true
		case *reqOptions:
			v.withMaxAge = d
			v.withMaxAgeSet = true
		}
	}
}

// WithAnyAuthorizedParty relaxes the azp check for multi-audience tokens:
// the azp claim must still be present and well formed, but is no longer
// required to equal this client's id.  It models a token issued primarily
// to another client that also lists this client as a secondary audience.
// This is a deliberately permissive, off-by-default escape hatch.
// Valid for: ValidateIdToken
func WithAnyAuthorizedParty() Option {
	return func(o interface{}) {
		if v, ok := o.(*validationOptions); ok {
			v.withAnyAuthorizedParty = true
		}
	}
}

package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// ChallengeMethod represents a PKCE code challenge method (see RFC 7636).
type ChallengeMethod string

const (
	// S256 is the only supported challenge method.  The "plain" method adds
	// no protection over omitting PKCE entirely, so requesting it is treated
	// as a caller configuration error rather than silently honored.
	S256 ChallengeMethod = "S256"

	// verifier lengths are bounded by RFC 7636 section 4.1
	MinVerifierLen     = 43
	MaxVerifierLen     = 128
	DefaultVerifierLen = 64
)

// CodeVerifier represents an OAuth PKCE code verifier (see RFC 7636).  The
// verifier is the secret half of the pair: it is held by the caller across
// the two flow round trips while only the derived challenge travels in the
// authentication request.
type CodeVerifier interface {
	// Verifier returns the verifier's secret random string
	Verifier() string

	// Challenge returns the verifier's derived code challenge
	Challenge() string

	// Method returns the challenge method used to derive the challenge
	Method() ChallengeMethod

	// Copy returns an independent copy of the verifier
	Copy() CodeVerifier
}

// S256Verifier represents an OAuth PKCE code verifier that uses the S256
// challenge method.
type S256Verifier struct {
	verifier  string
	challenge string
	method    ChallengeMethod
}

// ensure that S256Verifier implements the CodeVerifier interface
var _ CodeVerifier = (*S256Verifier)(nil)

// NewCodeVerifier creates a verifier of secure random data drawn from the
// unreserved URL-safe alphabet.  The default length is DefaultVerifierLen
// characters; WithVerifierLength may select any length within
// [MinVerifierLen, MaxVerifierLen].
//
// Supported options: WithVerifierLength
func NewCodeVerifier(opt ...Option) (*S256Verifier, error) {
	const op = "oidc.NewCodeVerifier"
	opts := getPKCEOpts(opt...)
	n := opts.withVerifierLength
	if n < MinVerifierLen || n > MaxVerifierLen {
		return nil, fmt.Errorf("%s: verifier length %d is outside [%d, %d]: %w",
			op, n, MinVerifierLen, MaxVerifierLen, ErrInvalidParameter)
	}
	// base64url encoding expands 3 bytes into 4 chars, so over-generate and
	// truncate to the requested length
	data, err := uuid.GenerateRandomBytes((n*3)/4 + 3)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate verifier data: %w", op, err)
	}
	v := &S256Verifier{
		verifier: base64.RawURLEncoding.EncodeToString(data)[:n],
		method:   S256,
	}
	if v.challenge, err = CreateCodeChallenge(S256, v.verifier); err != nil {
		return nil, fmt.Errorf("%s: unable to create code challenge: %w", op, err)
	}
	return v, nil
}

// CreateCodeChallenge derives the code challenge for the given verifier
// string.  Only the S256 method is supported; anything else (including
// "plain") returns ErrUnsupportedChallengeMethod.
func CreateCodeChallenge(method ChallengeMethod, verifier string) (string, error) {
	const op = "oidc.CreateCodeChallenge"
	if method != S256 {
		return "", fmt.Errorf("%s: %q: %w", op, method, ErrUnsupportedChallengeMethod)
	}
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// Verifier implements CodeVerifier.Verifier()
func (v *S256Verifier) Verifier() string { return v.verifier }

// Challenge implements CodeVerifier.Challenge()
func (v *S256Verifier) Challenge() string { return v.challenge }

// Method implements CodeVerifier.Method()
func (v *S256Verifier) Method() ChallengeMethod { return v.method }

// Copy implements CodeVerifier.Copy()
func (v *S256Verifier) Copy() CodeVerifier {
	cp := *v
	return &cp
}

// RedactedCodeVerifier is the redacted string or json for a code verifier
const RedactedCodeVerifier = "[REDACTED: code verifier]"

// String will redact the verifier secret
func (v *S256Verifier) String() string { return RedactedCodeVerifier }

// MarshalJSON will redact the verifier secret
func (v *S256Verifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedCodeVerifier)
}

// pkceOptions is the set of available options for NewCodeVerifier
type pkceOptions struct {
	withVerifierLength int
}

// pkceDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func pkceDefaults() pkceOptions {
	return pkceOptions{
		withVerifierLength: DefaultVerifierLen,
	}
}

// getPKCEOpts gets the defaults and applies the opt overrides passed in
func getPKCEOpts(opt ...Option) pkceOptions {
	opts := pkceDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithVerifierLength provides an optional code verifier length.
// Valid for: NewCodeVerifier
func WithVerifierLength(n int) Option {
	return func(o interface{}) {
		if o, ok := o.(*pkceOptions); ok {
			o.withVerifierLength = n
		}
	}
}

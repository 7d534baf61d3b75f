package oidc

import (
	"time"
)

// DefaultTokenExpirySkew defines a default time skew when checking a Token's
// expiration.
const DefaultTokenExpirySkew = 10 * time.Second

// Token represents the result of a successful token exchange.  It is an
// immutable value: the two-step flow returns it to the caller rather than
// caching it anywhere inside the core.
type Token interface {
	// AccessToken returns the token's access_token
	AccessToken() AccessToken

	// RefreshToken returns the token's optional refresh_token
	RefreshToken() RefreshToken

	// IdToken returns the token's optional id_token
	IdToken() IdToken

	// TokenType returns the access token's type (usually "Bearer")
	TokenType() string

	// Scope returns the granted scope, when the provider reported one
	Scope() string

	// Expiry returns the access token's expiration time, or the zero time
	// when the provider did not report one
	Expiry() time.Time

	// IsExpired returns true when the token's Expiry has passed (with a
	// DefaultTokenExpirySkew)
	IsExpired() bool

	// Valid returns true when the token has an access token which is not
	// expired
	Valid() bool
}

// Tk satisfies the Token interface and represents the tokens returned from
// the token endpoint.
type Tk struct {
	accessToken  AccessToken
	refreshToken RefreshToken
	idToken      IdToken
	tokenType    string
	scope        string
	expiry       time.Time

	// nowFunc is an optional time func used for expiry checks, primarily in
	// tests
	nowFunc func() time.Time
}

// ensure that Tk implements the Token interface
var _ Token = (*Tk)(nil)

// tokenResponse is the wire shape of a token endpoint success document
// (RFC 6749 section 5.1 plus the OIDC id_token member).
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in,omitempty"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
	IdToken          string `json:"id_token,omitempty"`
	Scope            string `json:"scope,omitempty"`
}

func (r *tokenResponse) token(now func() time.Time) *Tk {
	t := &Tk{
		accessToken:  AccessToken(r.AccessToken),
		refreshToken: RefreshToken(r.RefreshToken),
		idToken:      IdToken(r.IdToken),
		tokenType:    r.TokenType,
		scope:        r.Scope,
		nowFunc:      now,
	}
	if r.ExpiresIn > 0 {
		t.expiry = t.now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return t
}

func (t *Tk) AccessToken() AccessToken   { return t.accessToken }
func (t *Tk) RefreshToken() RefreshToken { return t.refreshToken }
func (t *Tk) IdToken() IdToken           { return t.idToken }
func (t *Tk) TokenType() string          { return t.tokenType }
func (t *Tk) Scope() string              { return t.scope }
func (t *Tk) Expiry() time.Time          { return t.expiry }

// IsExpired implements the Token interface
func (t *Tk) IsExpired() bool {
	if t.expiry.IsZero() {
		return false
	}
	return t.expiry.Round(0).Before(t.now().Add(DefaultTokenExpirySkew))
}

// Valid implements the Token interface
func (t *Tk) Valid() bool {
	if t == nil || t.accessToken == "" {
		return false
	}
	return !t.IsExpired()
}

func (t *Tk) now() time.Time {
	if t.nowFunc != nil {
		return t.nowFunc()
	}
	return time.Now()
}

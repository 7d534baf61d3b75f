package oidc

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

// Request basically represents one OIDC authentication flow for a user.  It
// contains the data needed to uniquely represent that one-time flow across
// the multiple interactions needed to complete the OIDC flow the user is
// attempting.
//
// Request() is passed throughout the OIDC interactions to uniquely identify
// the flow's request. The Request.State() and Request.Nonce() cannot be
// equal, and will be used for securing the OIDC flow.
type Request interface {
	// State is a unique identifier and an opaque value used to maintain
	// state between the oidc request and the callback. State cannot equal
	// the Nonce.
	State() string

	// Nonce is a unique nonce and a string value used to associate a Client
	// session with an ID Token, and to mitigate replay attacks. Nonce
	// cannot equal the State.
	Nonce() string

	// IsExpired returns true if the request has expired.
	IsExpired() bool

	// Audiences is an optional claim that defines the intended recipients
	// of a token.
	Audiences() []string

	// Scopes is an optional claim that defines the requested scope claims.
	Scopes() []string

	// RedirectURL is the URL where the provider will redirect responses to
	// authentication requests.
	RedirectURL() string

	// PKCEVerifier returns the PKCE verifier for the request, or nil when
	// the request was made without PKCE.
	PKCEVerifier() CodeVerifier

	// MaxAge returns the request's optional max_age and the time at which
	// an id_token's auth_time becomes too old (the zero time when no
	// max_age was requested).
	MaxAge() (time.Duration, time.Time)

	// Prompts returns the requested prompt values.
	Prompts() []Prompt

	// Display returns the requested display value.
	Display() Display

	// UILocales returns the requested ui_locales values.
	UILocales() []language.Tag

	// ACRValues returns the requested acr_values.
	ACRValues() []string
}

// Display is the optional display parameter of an authentication request,
// specifying how the provider should present the authentication and consent
// user interface.
type Display string

const (
	Page  Display = "page"
	Popup Display = "popup"
	Touch Display = "touch"
	WAP   Display = "wap"
)

// Prompt is an optional prompt parameter of an authentication request,
// specifying whether the provider prompts the end user for reauthentication
// and consent.
type Prompt string

const (
	NonePrompt    Prompt = "none"
	Login         Prompt = "login"
	Consent       Prompt = "consent"
	SelectAccount Prompt = "select_account"
)

// Req represents a one-time authorization code flow attempt and implements
// the Request interface.  Its state and nonce are minted once at creation
// and never mutated, so the same Req can safely be read by the callback
// handling goroutine.
type Req struct {
	state       string
	nonce       string
	expiration  time.Time
	redirectURL string
	audiences   []string
	scopes      []string
	verifier    CodeVerifier
	maxAge      time.Duration
	maxAgeSet   bool
	prompts     []Prompt
	display     Display
	uiLocales   []language.Tag
	acrValues   []string
	nowFunc     func() time.Time
}

// ensure that Req implements the Request interface
var _ Request = (*Req)(nil)

// NewRequest creates a new Request (*Req).
//
// State and Nonce are generated automatically from 20 bytes of cryptographic
// randomness each, making them single-use capabilities: a caller can neither
// forget to send a nonce nor reuse a state across flows.
//
// Supported options: WithNow, WithAudiences, WithScopes, WithDisplay,
// WithPrompts, WithUILocales, WithACRValues, WithMaxAge, WithPKCE
func NewRequest(expireIn time.Duration, redirectURL string, opt ...Option) (*Req, error) {
	const op = "oidc.NewRequest"
	opts := getReqOpts(opt...)
	if redirectURL == "" {
		return nil, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	if expireIn == 0 || expireIn < 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	if opts.withVerifier != nil && opts.withVerifier.Method() != S256 {
		return nil, fmt.Errorf("%s: %q: %w", op, opts.withVerifier.Method(), ErrUnsupportedChallengeMethod)
	}
	state, err := NewID(WithPrefix("st"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's state: %w", op, err)
	}
	nonce, err := NewID(WithPrefix("n"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's nonce: %w", op, err)
	}

	r := &Req{
		state:       state,
		nonce:       nonce,
		redirectURL: redirectURL,
		audiences:   opts.withAudiences,
		scopes:      opts.withScopes,
		verifier:    opts.withVerifier,
		maxAge:      opts.withMaxAge,
		maxAgeSet:   opts.withMaxAgeSet,
		prompts:     opts.withPrompts,
		display:     opts.withDisplay,
		uiLocales:   opts.withUILocales,
		acrValues:   opts.withACRValues,
		nowFunc:     opts.withNowFunc,
	}
	r.expiration = r.now().Add(expireIn)
	return r, nil
}

// State implements the Request.State() interface function.
func (r *Req) State() string { return r.state }

// Nonce implements the Request.Nonce() interface function.
func (r *Req) Nonce() string { return r.nonce }

// Audiences implements the Request.Audiences() interface function.
func (r *Req) Audiences() []string {
	if r.audiences == nil {
		return nil
	}
	cp := make([]string, len(r.audiences))
	copy(cp, r.audiences)
	return cp
}

// Scopes implements the Request.Scopes() interface function.
func (r *Req) Scopes() []string {
	if r.scopes == nil {
		return nil
	}
	cp := make([]string, len(r.scopes))
	copy(cp, r.scopes)
	return cp
}

// RedirectURL implements the Request.RedirectURL() interface function.
func (r *Req) RedirectURL() string { return r.redirectURL }

// PKCEVerifier implements the Request.PKCEVerifier() interface function,
// returning a copy so the caller cannot mutate the request's verifier.
func (r *Req) PKCEVerifier() CodeVerifier {
	if r.verifier == nil {
		return nil
	}
	return r.verifier.Copy()
}

// MaxAge implements the Request.MaxAge() interface function.
func (r *Req) MaxAge() (time.Duration, time.Time) {
	if !r.maxAgeSet {
		return 0, time.Time{}
	}
	return r.maxAge, r.now().Add(-r.maxAge).Truncate(time.Second)
}

// Prompts implements the Request.Prompts() interface function.
func (r *Req) Prompts() []Prompt {
	if r.prompts == nil {
		return nil
	}
	cp := make([]Prompt, len(r.prompts))
	copy(cp, r.prompts)
	return cp
}

// Display implements the Request.Display() interface function.
func (r *Req) Display() Display { return r.display }

// UILocales implements the Request.UILocales() interface function.
func (r *Req) UILocales() []language.Tag {
	if r.uiLocales == nil {
		return nil
	}
	cp := make([]language.Tag, len(r.uiLocales))
	copy(cp, r.uiLocales)
	return cp
}

// ACRValues implements the Request.ACRValues() interface function.
func (r *Req) ACRValues() []string {
	if r.acrValues == nil {
		return nil
	}
	cp := make([]string, len(r.acrValues))
	copy(cp, r.acrValues)
	return cp
}

// IsExpired returns true if the request has expired.
func (r *Req) IsExpired() bool {
	return r.expiration.Before(r.now())
}

func (r *Req) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now()
}

// reqOptions is the set of available options for Req functions
type reqOptions struct {
	withNowFunc   func() time.Time
	withAudiences []string
	withScopes    []string
	withVerifier  CodeVerifier
	withoutPKCE   bool
	withMaxAge    time.Duration
	withMaxAgeSet bool
	withPrompts   []Prompt
	withDisplay   Display
	withUILocales []language.Tag
	withACRValues []string
}

// reqDefaults is the set of default options for Req functions
func reqDefaults() reqOptions {
	return reqOptions{}
}

// getReqOpts gets the request defaults and applies the opt overrides passed
// in
func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithAudiences provides an optional list of audiences.
// Valid for: Config via NewConfig, Req via NewRequest
func WithAudiences(audiences ...string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *reqOptions:
			v.withAudiences = audiences
		case *configOptions:
			v.withAudiences = audiences
		}
	}
}

// WithScopes provides an optional list of scopes.  The openid scope is
// always requested and need not be listed.
// Valid for: Config via NewConfig, Req via NewRequest
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *reqOptions:
			v.withScopes = scopes
		case *configOptions:
			v.withScopes = scopes
		}
	}
}

// WithPKCE enables the proof key for code exchange extension for the
// request using the given verifier.  Only the S256 challenge method is
// supported.
// Valid for: Req via NewRequest
func WithPKCE(v CodeVerifier) Option {
	return func(o interface{}) {
		if opts, ok := o.(*reqOptions); ok {
			opts.withVerifier = v
		}
	}
}

// WithoutPKCE disables the proof key for code exchange extension that
// Provider.StartAuthentication enables by default.  Only for providers that
// reject the code_challenge parameter; prefer leaving PKCE on.
// Valid for: Provider.StartAuthentication
func WithoutPKCE() Option {
	return func(o interface{}) {
		if v, ok := o.(*reqOptions); ok {
			v.withoutPKCE = true
		}
	}
}

// WithPrompts provides an optional list of prompt parameters for the
// authentication request.
// Valid for: Req via NewRequest
func WithPrompts(prompts ...Prompt) Option {
	return func(o interface{}) {
		if v, ok := o.(*reqOptions); ok {
			v.withPrompts = prompts
		}
	}
}

// WithDisplay provides an optional display parameter for the authentication
// request.
// Valid for: Req via NewRequest
func WithDisplay(d Display) Option {
	return func(o interface{}) {
		if v, ok := o.(*reqOptions); ok {
			v.withDisplay = d
		}
	}
}

// WithUILocales provides an optional list of preferred locales for the
// provider's user interface, in order of preference.
// Valid for: Req via NewRequest, Provider.LogoutURL
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *reqOptions:
			v.withUILocales = locales
		case *logoutOptions:
			v.withUILocales = locales
		}
	}
}

// WithACRValues provides an optional list of requested authentication
// context class reference values.
// Valid for: Req via NewRequest
func WithACRValues(values ...string) Option {
	return func(o interface{}) {
		if v, ok := o.(*reqOptions); ok {
			v.withACRValues = values
		}
	}
}

package oidc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/simple-openid/connect-go/oidc/internal/strutils"
	"golang.org/x/oauth2"
)

// Provider provides integration with an OIDC provider using the typical
// 3-legged authorization code flow.
type Provider struct {
	config     *Config
	client     *http.Client
	metadata   *ProviderMetadata
	clientAuth *ClientAuthentication

	mu   sync.Mutex
	keys *KeySet

	// backgroundCtx is the context used by the provider for its own
	// activities, like fetching fresh JWKS documents
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// NewProvider creates and initializes a Provider for the OIDC authorization
// code flow.  Unless the config pins ProviderMetadata, initializing the
// provider includes making an http request to the issuer's discovery
// endpoint.
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config) (*Provider, error) {
	const op = "oidc.NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}

	client, err := c.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}

	clientAuth, err := NewClientAuthentication(c.AuthMethod, c.ClientID, c.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Provider with its background ctx/cancel allows
	// p.Done() to release resources when returning errors from this function
	p := &Provider{
		config:              c,
		client:              client,
		clientAuth:          clientAuth,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	md := c.ProviderMetadata
	if md == nil {
		md, err = DiscoverMetadata(p.backgroundCtx, client, c.Issuer)
		if err != nil {
			p.Done()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	} else if err := md.Validate(); err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.metadata = md

	return p, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// Config returns a copy of the provider's configuration.
func (p *Provider) Config() Config {
	return *p.config
}

// Metadata returns the provider's discovery metadata.
func (p *Provider) Metadata() *ProviderMetadata {
	return p.metadata
}

func (p *Provider) logger() hclog.Logger {
	if p.config.logger != nil {
		return p.config.logger
	}
	return hclog.NewNullLogger()
}

// AuthURL will generate a URL the caller can use to kick off an OIDC
// authorization code flow with the provider.  It builds the URL purely from
// the request and the provider's metadata; no network traffic happens here.
//
// See NewRequest() to create a request with a valid state and nonce that
// will uniquely identify the user's authentication attempt throughout the
// flow.
func (p *Provider) AuthURL(ctx context.Context, r Request) (string, error) {
	const op = "Provider.AuthURL"
	if r == nil {
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.State() == r.Nonce() {
		return "", fmt.Errorf("%s: request state and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	if r.IsExpired() {
		return "", fmt.Errorf("%s: %w", op, ErrExpiredRequest)
	}
	redirectURL := r.RedirectURL()
	if redirectURL == "" {
		redirectURL = p.config.RedirectURL
	}

	// the "openid" scope is required for oidc flows
	scopes := strutils.RemoveDuplicatesStable(append(append([]string{oidc.ScopeOpenID}, p.config.Scopes...), r.Scopes()...))

	oauth2Config := oauth2.Config{
		ClientID:    p.config.ClientID,
		RedirectURL: redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.metadata.AuthorizationEndpoint,
			TokenURL: p.metadata.TokenEndpoint,
		},
		Scopes: scopes,
	}
	authCodeOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(r.Nonce()),
	}
	if v := r.PKCEVerifier(); v != nil {
		authCodeOpts = append(authCodeOpts,
			oauth2.SetAuthURLParam("code_challenge", v.Challenge()),
			oauth2.SetAuthURLParam("code_challenge_method", string(v.Method())),
		)
	}
	if maxAge, _ := r.MaxAge(); maxAge > 0 {
		authCodeOpts = append(authCodeOpts,
			oauth2.SetAuthURLParam("max_age", strconv.Itoa(int(maxAge.Seconds()))))
	}
	if prompts := r.Prompts(); len(prompts) > 0 {
		parts := make([]string, 0, len(prompts))
		for _, pr := range prompts {
			parts = append(parts, string(pr))
		}
		authCodeOpts = append(authCodeOpts,
			oauth2.SetAuthURLParam("prompt", strings.Join(parts, " ")))
	}
	if display := r.Display(); display != "" {
		authCodeOpts = append(authCodeOpts,
			oauth2.SetAuthURLParam("display", string(display)))
	}
	if locales := r.UILocales(); len(locales) > 0 {
		parts := make([]string, 0, len(locales))
		for _, l := range locales {
			parts = append(parts, l.String())
		}
		authCodeOpts = append(authCodeOpts,
			oauth2.SetAuthURLParam("ui_locales", strings.Join(parts, " ")))
	}
	if acrValues := r.ACRValues(); len(acrValues) > 0 {
		authCodeOpts = append(authCodeOpts,
			oauth2.SetAuthURLParam("acr_values", strings.Join(acrValues, " ")))
	}
	auds := strutils.RemoveDuplicatesStable(append(append([]string{}, p.config.Audiences...), r.Audiences()...))
	if len(auds) > 0 {
		authCodeOpts = append(authCodeOpts,
			oauth2.SetAuthURLParam("audience", strings.Join(auds, " ")))
	}
	return oauth2Config.AuthCodeURL(r.State(), authCodeOpts...), nil
}

// StartAuthentication creates a one-time Request and the authentication URL
// to redirect the end user to.  The caller must retain the returned Request,
// keyed by its state, to complete the flow when the callback arrives.
//
// PKCE is enabled by default: unless WithPKCE supplies a verifier or
// WithoutPKCE disables the extension, a fresh S256 code verifier is
// generated for the request.
//
// Supported options: all NewRequest options, WithoutPKCE
func (p *Provider) StartAuthentication(ctx context.Context, expireIn time.Duration, opt ...Option) (*Req, string, error) {
	const op = "Provider.StartAuthentication"
	opts := getReqOpts(opt...)
	if opts.withVerifier == nil && !opts.withoutPKCE {
		v, err := NewCodeVerifier()
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", op, err)
		}
		opt = append(opt, WithPKCE(v))
	}
	r, err := NewRequest(expireIn, p.config.RedirectURL, opt...)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	u, err := p.AuthURL(ctx, r)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	return r, u, nil
}

// HandleAuthenticationResult completes a flow from the full callback URL the
// provider redirected the user to.  A response carrying an error parameter
// fails with an *AuthenticationError and a state mismatch fails with
// ErrStateMismatch; in both cases the failure happens before any token
// endpoint traffic.
func (p *Provider) HandleAuthenticationResult(ctx context.Context, r Request, responseURL string) (*Tk, error) {
	const op = "Provider.HandleAuthenticationResult"
	if r == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	u, err := url.Parse(responseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse response URL: %w", op, err)
	}
	q := u.Query()
	if code := q.Get("error"); code != "" {
		return nil, fmt.Errorf("%s: %w", op, &AuthenticationError{
			Code:        code,
			Description: q.Get("error_description"),
			URI:         q.Get("error_uri"),
		})
	}
	responseState := q.Get("state")
	if subtle.ConstantTimeCompare([]byte(responseState), []byte(r.State())) != 1 {
		return nil, fmt.Errorf("%s: %w", op, ErrStateMismatch)
	}
	responseCode := q.Get("code")
	if responseCode == "" {
		return nil, fmt.Errorf("%s: response has neither a code nor an error: %w", op, ErrInvalidResponse)
	}
	return p.Exchange(ctx, r, responseState, responseCode)
}

// Exchange will request a token from the provider's token endpoint, using
// the authorizationCode and authorizationState it received in an earlier
// successful oidc authentication response.
//
// It will also validate the authorizationState it receives against the
// existing Request for the user's oidc authentication flow.
//
// On success, the Token returned will include an IdToken and may include an
// AccessToken and a RefreshToken.  The id_token is fully validated, with the
// request's nonce and any requested max_age bound into the validation.
func (p *Provider) Exchange(ctx context.Context, r Request, authorizationState string, authorizationCode string) (*Tk, error) {
	const op = "Provider.Exchange"
	if r == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if subtle.ConstantTimeCompare([]byte(authorizationState), []byte(r.State())) != 1 {
		return nil, fmt.Errorf("%s: %w", op, ErrStateMismatch)
	}
	if r.IsExpired() {
		return nil, fmt.Errorf("%s: authentication request is expired: %w", op, ErrExpiredRequest)
	}
	if authorizationCode == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}

	redirectURL := r.RedirectURL()
	if redirectURL == "" {
		redirectURL = p.config.RedirectURL
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", authorizationCode)
	form.Set("redirect_uri", redirectURL)
	if v := r.PKCEVerifier(); v != nil {
		form.Set("code_verifier", v.Verifier())
	}

	t, err := p.doTokenRequest(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if t.IdToken() == "" {
		return nil, fmt.Errorf("%s: token response has no id_token: %w", op, ErrMissingIdToken)
	}

	validationOpts := []Option{WithNonce(r.Nonce())}
	if maxAge, _ := r.MaxAge(); maxAge > 0 {
		validationOpts = append(validationOpts, WithMaxAge(maxAge))
	}
	if _, err := p.validateIdToken(ctx, t.IdToken(), validationOpts...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// RefreshToken exchanges a refresh token for a fresh token set (see RFC 6749
// section 6).  When the response includes a rotated id_token it is validated
// before the tokens are returned, without a nonce check since refresh
// responses carry none.
//
// Supported options: WithScopes (to narrow the refreshed grant)
func (p *Provider) RefreshToken(ctx context.Context, refreshToken RefreshToken, opt ...Option) (*Tk, error) {
	const op = "Provider.RefreshToken"
	if refreshToken == "" {
		return nil, fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}
	opts := getReqOpts(opt...)
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", string(refreshToken))
	if len(opts.withScopes) > 0 {
		form.Set("scope", strings.Join(opts.withScopes, " "))
	}
	t, err := p.doTokenRequest(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if t.IdToken() != "" {
		if _, err := p.validateIdToken(ctx, t.IdToken()); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return t, nil
}

// doTokenRequest posts the form to the token endpoint with this client's
// credential applied and decodes the response.  Error documents come back as
// a *TokenError.
func (p *Provider) doTokenRequest(ctx context.Context, form url.Values) (*Tk, error) {
	const op = "Provider.doTokenRequest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.metadata.TokenEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create token request: %w", op, err)
	}
	p.clientAuth.Apply(req, form)
	req.Body = io.NopCloser(strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	p.logger().Debug("requesting token", "endpoint", p.metadata.TokenEndpoint, "grant_type", form.Get("grant_type"))
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: token request failed: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read token response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		var tokenErr TokenError
		if err := json.Unmarshal(body, &tokenErr); err == nil && tokenErr.Code != "" {
			return nil, fmt.Errorf("%s: %w", op, &tokenErr)
		}
		return nil, fmt.Errorf("%s: token endpoint returned %s: %w", op, resp.Status, ErrTokenExchangeFailed)
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%s: unable to parse token response: %w", op, ErrInvalidResponse)
	}
	if tr.AccessToken == "" && tr.IdToken == "" {
		return nil, fmt.Errorf("%s: token response has no tokens: %w", op, ErrInvalidResponse)
	}
	return tr.token(nil), nil
}

// VerifyIdToken validates an id_token against the provider's keys and
// configuration, binding in the given request's nonce and max_age.  It
// returns the validated claims.
func (p *Provider) VerifyIdToken(ctx context.Context, t IdToken, r Request, opt ...Option) (*IdTokenClaims, error) {
	const op = "Provider.VerifyIdToken"
	if t == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if r == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.Nonce() == "" {
		return nil, fmt.Errorf("%s: request nonce is empty: %w", op, ErrInvalidParameter)
	}
	opts := append([]Option{WithNonce(r.Nonce())}, opt...)
	if maxAge, _ := r.MaxAge(); maxAge > 0 {
		opts = append(opts, WithMaxAge(maxAge))
	}
	claims, err := p.validateIdToken(ctx, t, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}

// VerifyAccessToken validates a JWT-profile access token (RFC 9068) issued
// by this provider to this client.
func (p *Provider) VerifyAccessToken(ctx context.Context, t AccessToken, opt ...Option) (*AccessTokenClaims, error) {
	const op = "Provider.VerifyAccessToken"
	keys, err := p.keySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, err := ValidateJWTAccessToken(t, keys, p.config.Issuer, p.config.ClientID, p.config.SupportedSigningAlgs, opt...)
	if errors.Is(err, ErrKeyResolution) {
		// the provider may have rotated its keys; fetch a fresh set once
		if keys, err = p.refreshKeySet(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		claims, err = ValidateJWTAccessToken(t, keys, p.config.Issuer, p.config.ClientID, p.config.SupportedSigningAlgs, opt...)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}

func (p *Provider) validateIdToken(ctx context.Context, t IdToken, opt ...Option) (*IdTokenClaims, error) {
	keys, err := p.keySet(ctx)
	if err != nil {
		return nil, err
	}
	claims, err := ValidateIdToken(t, keys, p.config.Issuer, p.config.ClientID, p.config.SupportedSigningAlgs, opt...)
	if errors.Is(err, ErrKeyResolution) {
		// the provider may have rotated its keys; fetch a fresh set once
		if keys, err = p.refreshKeySet(ctx); err != nil {
			return nil, err
		}
		claims, err = ValidateIdToken(t, keys, p.config.Issuer, p.config.ClientID, p.config.SupportedSigningAlgs, opt...)
	}
	return claims, err
}

// keySet returns the cached provider keys, fetching them on first use.
func (p *Provider) keySet(ctx context.Context) (*KeySet, error) {
	p.mu.Lock()
	keys := p.keys
	p.mu.Unlock()
	if keys != nil {
		return keys, nil
	}
	return p.refreshKeySet(ctx)
}

// refreshKeySet fetches the provider's JWKS document and replaces the cached
// key set.
func (p *Provider) refreshKeySet(ctx context.Context) (*KeySet, error) {
	const op = "Provider.refreshKeySet"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.metadata.JWKSURI, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create jwks request: %w", op, err)
	}
	p.logger().Debug("fetching provider keys", "endpoint", p.metadata.JWKSURI)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: jwks request failed: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read jwks response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: jwks endpoint returned %s: %w", op, resp.Status, ErrInvalidResponse)
	}
	keys, err := ParseKeySet(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.mu.Lock()
	p.keys = keys
	p.mu.Unlock()
	return keys, nil
}

// UserInfo makes a request to the provider's userinfo endpoint using a
// bearer access token and unmarshals the response claims.  The response's
// sub claim must equal validSub, binding the document to the subject the
// id_token named.
func (p *Provider) UserInfo(ctx context.Context, accessToken AccessToken, validSub string, claims interface{}) error {
	const op = "Provider.UserInfo"
	if accessToken == "" {
		return fmt.Errorf("%s: access token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	if p.metadata.UserInfoEndpoint == "" {
		return fmt.Errorf("%s: provider has no userinfo endpoint: %w", op, ErrEndpointNotSupported)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.metadata.UserInfoEndpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: unable to create userinfo request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+string(accessToken))
	req.Header.Set("Accept", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: userinfo request failed: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: unable to read userinfo response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: userinfo endpoint returned %s: %w", op, resp.Status, ErrUserInfoFailed)
	}
	if ct, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || ct != "application/json" {
		return fmt.Errorf("%s: userinfo response is not json: %w", op, ErrInvalidResponse)
	}
	var sub struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(body, &sub); err != nil {
		return fmt.Errorf("%s: unable to parse userinfo response: %w", op, ErrInvalidResponse)
	}
	if sub.Sub == "" || sub.Sub != validSub {
		return fmt.Errorf("%s: userinfo sub does not match the validated subject: %w", op, ErrInvalidSubject)
	}
	if err := json.Unmarshal(body, claims); err != nil {
		return fmt.Errorf("%s: unable to parse userinfo claims: %w", op, err)
	}
	return nil
}

package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// IntrospectionResult is a token introspection response per RFC 7662
// section 2.2.  Only Active is guaranteed; every other member is optional
// and only meaningful when Active is true.
type IntrospectionResult struct {
	Active    bool     `json:"active"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	Username  string   `json:"username,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	Expiry    int64    `json:"exp,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
	NotBefore int64    `json:"nbf,omitempty"`
	Subject   string   `json:"sub,omitempty"`
	Audience  audience `json:"aud,omitempty"`
	Issuer    string   `json:"iss,omitempty"`
	ID        string   `json:"jti,omitempty"`
}

// ExpiresAt returns the token's expiration time, or the zero time when the
// provider did not report one.
func (r *IntrospectionResult) ExpiresAt() time.Time {
	if r.Expiry == 0 {
		return time.Time{}
	}
	return time.Unix(r.Expiry, 0)
}

// audience decodes an aud member which may be either a bare string or a
// list.
type audience []string

func (a *audience) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = []string{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*a = list
	return nil
}

// IntrospectToken asks the provider whether a token is currently active
// (RFC 7662).  The request authenticates with the provider using this
// client's configured authentication method.
//
// An inactive token is not an error: the result simply has Active false and
// no other members.
//
// Supported options: WithTokenTypeHint
func (p *Provider) IntrospectToken(ctx context.Context, token string, opt ...Option) (*IntrospectionResult, error) {
	const op = "Provider.IntrospectToken"
	if token == "" {
		return nil, fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	}
	if p.metadata.IntrospectionEndpoint == "" {
		return nil, fmt.Errorf("%s: provider has no introspection endpoint: %w", op, ErrEndpointNotSupported)
	}
	opts := getIntrospectOpts(opt...)

	form := url.Values{}
	form.Set("token", token)
	if opts.withTokenTypeHint != "" {
		form.Set("token_type_hint", opts.withTokenTypeHint)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.metadata.IntrospectionEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create introspection request: %w", op, err)
	}
	p.clientAuth.Apply(req, form)
	req.Body = io.NopCloser(strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: introspection request failed: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read introspection response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: introspection endpoint returned %s: %w", op, resp.Status, ErrIntrospectionFailed)
	}
	var result IntrospectionResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%s: unable to parse introspection response: %w", op, ErrInvalidResponse)
	}
	return &result, nil
}

// introspectOptions is the set of available options for IntrospectToken
type introspectOptions struct {
	withTokenTypeHint string
}

func introspectDefaults() introspectOptions {
	return introspectOptions{}
}

func getIntrospectOpts(opt ...Option) introspectOptions {
	opts := introspectDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTokenTypeHint provides an optional hint about the kind of token being
// introspected ("access_token" or "refresh_token").
// Valid for: Provider.IntrospectToken
func WithTokenTypeHint(hint string) Option {
	return func(o interface{}) {
		if v, ok := o.(*introspectOptions); ok {
			v.withTokenTypeHint = hint
		}
	}
}

package oidc

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/language"
)

// LogoutURL builds an RP-initiated logout URL (OpenID Connect RP-Initiated
// Logout 1.0) the caller can redirect the end user to.  It is a pure URL
// builder; no network traffic happens here.
//
// Supported options: WithIDTokenHint, WithPostLogoutRedirectURL,
// WithLogoutState, WithUILocales
func (p *Provider) LogoutURL(opt ...Option) (string, error) {
	const op = "Provider.LogoutURL"
	if p.metadata.EndSessionEndpoint == "" {
		return "", fmt.Errorf("%s: provider has no end session endpoint: %w", op, ErrEndpointNotSupported)
	}
	opts := getLogoutOpts(opt...)
	u, err := url.Parse(p.metadata.EndSessionEndpoint)
	if err != nil {
		return "", fmt.Errorf("%s: invalid end session endpoint: %w", op, err)
	}
	q := u.Query()
	q.Set("client_id", p.config.ClientID)
	if opts.withIDTokenHint != "" {
		q.Set("id_token_hint", string(opts.withIDTokenHint))
	}
	if opts.withPostLogoutRedirectURL != "" {
		// the provider only honors this with an accompanying hint or
		// client_id, which is always sent above
		q.Set("post_logout_redirect_uri", opts.withPostLogoutRedirectURL)
	}
	if opts.withState != "" {
		q.Set("state", opts.withState)
	}
	if len(opts.withUILocales) > 0 {
		parts := make([]string, 0, len(opts.withUILocales))
		for _, l := range opts.withUILocales {
			parts = append(parts, l.String())
		}
		q.Set("ui_locales", strings.Join(parts, " "))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// logoutOptions is the set of available options for LogoutURL
type logoutOptions struct {
	withIDTokenHint           IdToken
	withPostLogoutRedirectURL string
	withState                 string
	withUILocales             []language.Tag
}

func logoutDefaults() logoutOptions {
	return logoutOptions{}
}

func getLogoutOpts(opt ...Option) logoutOptions {
	opts := logoutDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithIDTokenHint provides the id_token previously issued for the session
// being terminated, recommended by the logout spec so providers can skip a
// confirmation prompt.
// Valid for: Provider.LogoutURL
func WithIDTokenHint(t IdToken) Option {
	return func(o interface{}) {
		if v, ok := o.(*logoutOptions); ok {
			v.withIDTokenHint = t
		}
	}
}

// WithPostLogoutRedirectURL provides a registered URL the provider should
// send the end user to after logout.
// Valid for: Provider.LogoutURL
func WithPostLogoutRedirectURL(u string) Option {
	return func(o interface{}) {
		if v, ok := o.(*logoutOptions); ok {
			v.withPostLogoutRedirectURL = u
		}
	}
}

// WithLogoutState provides an opaque value the provider echoes back on the
// post-logout redirect.
// Valid for: Provider.LogoutURL
func WithLogoutState(s string) Option {
	return func(o interface{}) {
		if v, ok := o.(*logoutOptions); ok {
			v.withState = s
		}
	}
}

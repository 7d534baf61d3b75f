package oidc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/simple-openid/connect-go/oidc/internal/strutils"
)

// ClientSecret is a relying party's secret credential
type ClientSecret string

// RedactedClientSecret is the redacted string or json for a client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config represents the configuration for a typical 3-legged OIDC
// authorization code flow.
type Config struct {
	// ClientID is the relying party id
	ClientID string

	// ClientSecret is the relying party secret.  It may be empty when
	// AuthMethod is None (a public client).
	ClientSecret ClientSecret

	// Scopes is a list of additional oidc scopes to request of the provider.
	// The required "openid" scope is always requested and need not be
	// included.
	Scopes []string

	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components.
	Issuer string

	// SupportedSigningAlgs is a list of supported signing algorithms. List of
	// currently supported algs: RS256, RS384, RS512, ES256, ES384, ES512,
	// PS256, PS384, PS512, EdDSA
	SupportedSigningAlgs []Alg

	// RedirectURL is the URL where the provider will send responses to
	// authentication requests.
	RedirectURL string

	// AuthMethod is how the relying party authenticates against the token
	// endpoint.  When unset, NewConfig picks ClientSecretBasic if a secret
	// was given and None otherwise.
	AuthMethod ClientAuthenticationMethod

	// Audiences is an optional list of case-sensitive strings to request of
	// the provider when building authentication request URLs.
	Audiences []string

	// ProviderCA is an optional CA cert to use when sending requests to the
	// provider.
	ProviderCA string

	// ProviderMetadata optionally pins the provider's endpoints up front.
	// When nil, NewProvider discovers them from the issuer.
	ProviderMetadata *ProviderMetadata

	logger hclog.Logger
}

// NewConfig composes a new config for a provider.
//
// Supported options: WithAuthMethod, WithProviderCA, WithScopes,
// WithAudiences, WithProviderMetadata, WithLogger
func NewConfig(issuer string, clientID string, clientSecret ClientSecret, supported []Alg, redirectURL string, opt ...Option) (*Config, error) {
	const op = "oidc.NewConfig"
	opts := getConfigOpts(opt...)
	method := opts.withAuthMethod
	if method == "" {
		if clientSecret != "" {
			method = ClientSecretBasic
		} else {
			method = None
		}
	}
	c := &Config{
		Issuer:               issuer,
		ClientID:             clientID,
		ClientSecret:         clientSecret,
		SupportedSigningAlgs: supported,
		RedirectURL:          redirectURL,
		AuthMethod:           method,
		Scopes:               strutils.RemoveDuplicatesStable(opts.withScopes),
		Audiences:            strutils.RemoveDuplicatesStable(opts.withAudiences),
		ProviderCA:           opts.withProviderCA,
		ProviderMetadata:     opts.withProviderMetadata,
		logger:               opts.withLogger,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration.  All violations are reported together
// rather than one at a time.  Among other validations, it verifies the
// issuer is not empty, but it doesn't verify the Issuer is discoverable via
// an http request.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	if c.Issuer == "" {
		result = multierror.Append(result, fmt.Errorf("issuer is empty: %w", ErrInvalidParameter))
	} else {
		u, err := url.Parse(c.Issuer)
		switch {
		case err != nil:
			result = multierror.Append(result, fmt.Errorf("issuer %s is invalid: %w", c.Issuer, err))
		case u.Scheme != "https" && u.Scheme != "http":
			result = multierror.Append(result, fmt.Errorf("issuer %s scheme is not http or https: %w", c.Issuer, ErrInvalidIssuer))
		case u.RawQuery != "" || u.Fragment != "":
			result = multierror.Append(result, fmt.Errorf("issuer %s must not have a query or fragment: %w", c.Issuer, ErrInvalidIssuer))
		}
	}
	if c.RedirectURL == "" {
		result = multierror.Append(result, fmt.Errorf("redirect URL is empty: %w", ErrInvalidParameter))
	}
	if len(c.SupportedSigningAlgs) == 0 {
		result = multierror.Append(result, fmt.Errorf("supported algorithms is empty: %w", ErrInvalidParameter))
	}
	for _, a := range c.SupportedSigningAlgs {
		if _, ok := supportedAlgorithms[a]; !ok {
			result = multierror.Append(result, fmt.Errorf("unsupported algorithm %s: %w", a, ErrInvalidParameter))
		}
	}
	switch c.AuthMethod {
	case None:
		if c.ClientSecret != "" {
			result = multierror.Append(result, fmt.Errorf("auth method %q does not take a client secret: %w", c.AuthMethod, ErrInvalidParameter))
		}
	case ClientSecretBasic:
		if c.ClientSecret == "" {
			result = multierror.Append(result, fmt.Errorf("auth method %q requires a client secret: %w", c.AuthMethod, ErrInvalidParameter))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("%q: %w", c.AuthMethod, ErrUnsupportedAuthMethod))
	}
	return result.ErrorOrNil()
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured, trusting ProviderCA when one was given.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	client := cleanhttp.DefaultPooledClient()
	if c.ProviderCA != "" {
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		tr := cleanhttp.DefaultPooledTransport()
		tr.TLSClientConfig = &tls.Config{
			RootCAs: pool,
		}
		client.Transport = tr
	}
	return client, nil
}

// HTTPClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key
// used by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so
// the returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}

// configOptions is the set of available options for Config functions
type configOptions struct {
	withScopes           []string
	withAudiences        []string
	withProviderCA       string
	withAuthMethod       ClientAuthenticationMethod
	withProviderMetadata *ProviderMetadata
	withLogger           hclog.Logger
}

// configDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the config defaults and applies the opt overrides
// passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithAuthMethod provides an optional client authentication method for the
// provider's config, overriding the secret-based default.
// Valid for: Config via NewConfig
func WithAuthMethod(m ClientAuthenticationMethod) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withAuthMethod = m
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
// Valid for: Config via NewConfig
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withProviderCA = cert
		}
	}
}

// WithProviderMetadata pins the provider's endpoints, skipping discovery.
// Valid for: Config via NewConfig
func WithProviderMetadata(m *ProviderMetadata) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withProviderMetadata = m
		}
	}
}

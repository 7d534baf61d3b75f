package oidc

import (
	"fmt"
	"net/http"
	"net/url"
)

// ClientAuthenticationMethod names a way for the relying party to
// authenticate against the token endpoint.  The set is closed: any other
// method name is a configuration error, never a silent fallback.
type ClientAuthenticationMethod string

const (
	// None is for public clients which authenticate with no credential at
	// all.  The client_id still travels in the request body.
	None ClientAuthenticationMethod = "none"

	// ClientSecretBasic authenticates with an HTTP Basic authorization
	// header built per RFC 6749 section 2.3.1: client id and secret are
	// form-url-encoded before the basic-auth encoding.
	ClientSecretBasic ClientAuthenticationMethod = "client_secret_basic"
)

// ClientAuthentication shapes token endpoint requests according to the
// configured authentication method.  It is constructed once, at
// configuration time, so an unsupported method fails before any flow runs.
type ClientAuthentication struct {
	method       ClientAuthenticationMethod
	clientID     string
	clientSecret ClientSecret
}

// NewClientAuthentication creates the client authentication for the given
// method.  None must not be combined with a secret and ClientSecretBasic
// requires one.
func NewClientAuthentication(method ClientAuthenticationMethod, clientID string, clientSecret ClientSecret) (*ClientAuthentication, error) {
	const op = "oidc.NewClientAuthentication"
	if clientID == "" {
		return nil, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	switch method {
	case None:
		if clientSecret != "" {
			return nil, fmt.Errorf("%s: method %q does not take a client secret: %w", op, method, ErrInvalidParameter)
		}
	case ClientSecretBasic:
		if clientSecret == "" {
			return nil, fmt.Errorf("%s: method %q requires a client secret: %w", op, method, ErrInvalidParameter)
		}
	default:
		return nil, fmt.Errorf("%s: %q: %w", op, method, ErrUnsupportedAuthMethod)
	}
	return &ClientAuthentication{
		method:       method,
		clientID:     clientID,
		clientSecret: clientSecret,
	}, nil
}

// Method returns the configured authentication method.
func (a *ClientAuthentication) Method() ClientAuthenticationMethod {
	return a.method
}

// Apply adds this client's credential to an outgoing token endpoint request.
// The form always carries client_id; ClientSecretBasic additionally sets the
// Authorization header with both values percent-encoded first, so secrets
// containing reserved characters survive the round trip.
func (a *ClientAuthentication) Apply(req *http.Request, form url.Values) {
	form.Set("client_id", a.clientID)
	if a.method == ClientSecretBasic {
		user := url.QueryEscape(a.clientID)
		pass := url.QueryEscape(string(a.clientSecret))
		req.SetBasicAuth(user, pass)
	}
}

package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ProviderMetadata is the subset of the OpenID Connect Discovery 1.0
// document this package consumes.  Unknown members are ignored.
type ProviderMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint,omitempty"`
	JWKSURI                           string   `json:"jwks_uri"`
	EndSessionEndpoint                string   `json:"end_session_endpoint,omitempty"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	SubjectTypesSupported             []string `json:"subject_types_supported,omitempty"`
	IdTokenSigningAlgsSupported       []string `json:"id_token_signing_alg_values_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	ClaimsSupported                   []string `json:"claims_supported,omitempty"`
}

// Validate checks that the metadata carries everything an authorization code
// flow needs.
func (m *ProviderMetadata) Validate() error {
	const op = "ProviderMetadata.Validate"
	if m == nil {
		return fmt.Errorf("%s: metadata is nil: %w", op, ErrNilParameter)
	}
	if m.Issuer == "" {
		return fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter)
	}
	if m.AuthorizationEndpoint == "" {
		return fmt.Errorf("%s: authorization endpoint is empty: %w", op, ErrInvalidParameter)
	}
	if m.TokenEndpoint == "" {
		return fmt.Errorf("%s: token endpoint is empty: %w", op, ErrInvalidParameter)
	}
	if m.JWKSURI == "" {
		return fmt.Errorf("%s: jwks uri is empty: %w", op, ErrInvalidParameter)
	}
	return nil
}

// WellKnownPath is the discovery document's path relative to an issuer, per
// OpenID Connect Discovery 1.0 section 4.
const WellKnownPath = "/.well-known/openid-configuration"

// DiscoverMetadata fetches and parses the issuer's discovery document.  The
// document's issuer member must equal the issuer it was fetched from
// (ErrInvalidIssuer otherwise), which blocks metadata substitution by a
// compromised intermediary.
func DiscoverMetadata(ctx context.Context, client *http.Client, issuer string) (*ProviderMetadata, error) {
	const op = "oidc.DiscoverMetadata"
	if client == nil {
		return nil, fmt.Errorf("%s: http client is nil: %w", op, ErrNilParameter)
	}
	if issuer == "" {
		return nil, fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter)
	}
	wellKnown := strings.TrimSuffix(issuer, "/") + WellKnownPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create discovery request: %w", op, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to fetch discovery document: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read discovery document: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: discovery endpoint returned %s: %w", op, resp.Status, ErrInvalidResponse)
	}
	var m ProviderMetadata
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%s: unable to parse discovery document: %w", op, err)
	}
	if m.Issuer != issuer {
		return nil, fmt.Errorf("%s: document issuer %q does not match %q: %w", op, m.Issuer, issuer, ErrInvalidIssuer)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &m, nil
}

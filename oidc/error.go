package oidc

import (
	"errors"
	"fmt"
)

var (
	// parameter and configuration errors
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrNilParameter               = errors.New("nil parameter")
	ErrInvalidCACert              = errors.New("invalid CA certificate")
	ErrInvalidIssuer              = errors.New("invalid issuer")
	ErrUnsupportedChallengeMethod = errors.New("unsupported PKCE challenge method")
	ErrUnsupportedAuthMethod      = errors.New("unsupported client authentication method")
	ErrEndpointNotSupported       = errors.New("endpoint not supported by provider")
	ErrIdGeneratorFailed          = errors.New("id generation failed")

	// cryptographic layer errors.  Always fatal, never retried.
	ErrMalformedToken       = errors.New("malformed token")
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	ErrKeyResolution        = errors.New("unable to resolve signing key")
	ErrInvalidSignature     = errors.New("invalid signature")

	// claims layer errors.  Always fatal; the first violated check fails
	// the whole validation and no claims are returned.
	ErrIssuerMismatch   = errors.New("issuer mismatch")
	ErrAudienceMismatch = errors.New("audience mismatch")
	ErrAzpMismatch      = errors.New("authorized party mismatch")
	ErrNonceMismatch    = errors.New("nonce mismatch")
	ErrAuthTime         = errors.New("auth_time check failed")
	ErrMissingClaim     = errors.New("required claim is missing")
	ErrTokenExpired     = errors.New("token is expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")

	// flow layer errors
	ErrStateMismatch        = errors.New("response state and request state are not equal")
	ErrExpiredRequest       = errors.New("authentication request is expired")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrTokenExchangeFailed  = errors.New("token exchange failed")
	ErrMissingIdToken       = errors.New("id_token is missing")
	ErrInvalidResponse      = errors.New("invalid provider response")
	ErrUserInfoFailed       = errors.New("user info request failed")
	ErrInvalidSubject       = errors.New("subject mismatch")
	ErrIntrospectionFailed  = errors.New("token introspection failed")
)

// AuthenticationError represents an OAuth 2.0 / OIDC error response returned
// on the callback redirect (see RFC 6749 section 4.1.2.1).  The standard
// error catalogue is surfaced verbatim and no token exchange is attempted
// once one is seen.
type AuthenticationError struct {
	// Code is the "error" parameter (access_denied, invalid_request, ...)
	Code string

	// Description is the optional "error_description" parameter
	Description string

	// URI is the optional "error_uri" parameter
	URI string
}

// Error implements the error interface
func (e *AuthenticationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authentication error %q: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("authentication error %q", e.Code)
}

// Unwrap supports errors.Is(err, ErrAuthenticationFailed)
func (e *AuthenticationError) Unwrap() error { return ErrAuthenticationFailed }

// TokenError represents an error document returned by the token endpoint
// (see RFC 6749 section 5.2).
type TokenError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

// Error implements the error interface
func (e *TokenError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token endpoint error %q: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("token endpoint error %q", e.Code)
}

// Unwrap supports errors.Is(err, ErrTokenExchangeFailed)
func (e *TokenError) Unwrap() error { return ErrTokenExchangeFailed }

// Package oidc is the protocol core of an OpenID Connect relying party.  It
// supports the Authorization Code Flow with PKCE, id_token and JWT access
// token validation, token introspection, userinfo and RP-initiated logout.
//
// The package is transport-agnostic about the caller's side of the flow: it
// mints requests, builds URLs, exchanges codes and validates tokens, while
// session storage and HTTP handling stay with the caller.
package oidc

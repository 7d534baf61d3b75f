// connect-go provides a small, complete OpenID Connect relying party
// implementation: the oidc package covers the Authorization Code Flow with
// PKCE, token validation, introspection, userinfo and RP-initiated logout.
//
// See README.md
package connect

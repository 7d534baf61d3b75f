package oidc

import (
	"bytes"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/simple-openid/connect-go/oidc/internal/strutils"
	"github.com/stretchr/testify/require"
)

// TestProvider is a local server that supports test provider capabilities
// which make writing tests much easier.  It implements enough of an OP to
// drive the full authorization code flow: discovery, auth, token (both the
// authorization_code and refresh_token grants), JWKS, userinfo,
// introspection and end session endpoints.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks                *jose.JSONWebKeySet
	keyID               string
	allowedRedirectURIs []string
	replySubject        string
	replyUserinfo       map[string]interface{}

	mu                   sync.Mutex
	clientID             string
	clientSecret         string
	expectedAuthCode     string
	expectedAuthNonce    string
	expectedRefreshToken string
	capturedNonce        string
	capturedChallenge    string
	customClaims         map[string]interface{}
	customAudiences      []string
	omitIdTokens         bool
	omitAccessTokens     bool
	disableUserInfo      bool
	disableIntrospection bool
	introspectActive     bool
	tokenRequestCount    int
	nowFunc              func() time.Time

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// StartTestProvider creates a disposable TestProvider serving TLS.  Its
// CACert() must be trusted by clients, typically via WithProviderCA.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t:     t,
		keyID: "test-key-1",
		allowedRedirectURIs: []string{
			"https://example.com/callback",
		},
		replySubject: "alice@example.com",
		replyUserinfo: map[string]interface{}{
			"color":       "red",
			"temperature": "76",
			"flavor":      "umami",
		},
		introspectActive: true,
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.keyID, p.ecdsaPublicKey)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows.  When clientSecret is not empty the token and
// introspection endpoints require client_secret_basic authentication.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the auth code to return from /auth and the
// allowed auth code for /token.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedAuthNonce configures the nonce /auth requires; when unset any
// nonce is accepted and echoed back in issued id_tokens.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetExpectedRefreshToken configures the refresh token the /token endpoint
// accepts for the refresh_token grant.
func (p *TestProvider) SetExpectedRefreshToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedRefreshToken = token
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs
// for the OIDC workflow.  If not configured a sample of "https://example.com/callback"
// is used.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetCustomClaims lets you set additional claims the provider will return in
// every issued id_token.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudiences overrides the aud claim of issued tokens.
func (p *TestProvider) SetCustomAudiences(auds ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudiences = auds
}

// SetNowFunc lets you override the provider's notion of the current time,
// which shifts the iat/exp/auth_time claims of issued tokens.
func (p *TestProvider) SetNowFunc(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nowFunc = now
}

// OmitIdTokens forces the /token endpoint to leave id_tokens out of its
// responses.
func (p *TestProvider) OmitIdTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIdTokens = true
}

// OmitAccessTokens forces the /token endpoint to leave access tokens out of
// its responses.
func (p *TestProvider) OmitAccessTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitAccessTokens = true
}

// DisableUserInfo removes the userinfo endpoint from the discovery document
// and makes the handler return 404.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// DisableIntrospection removes the introspection endpoint from the discovery
// document and makes the handler return 404.
func (p *TestProvider) DisableIntrospection() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableIntrospection = true
}

// SetIntrospectActive configures the active member of introspection
// responses.
func (p *TestProvider) SetIntrospectActive(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.introspectActive = active
}

// TokenRequestCount reports how many requests the token endpoint has
// received, which lets tests assert that short-circuit failures never
// reached it.
func (p *TestProvider) TokenRequestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequestCount
}

// CapturedNonce returns the nonce of the most recent /auth request.
func (p *TestProvider) CapturedNonce() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capturedNonce
}

// Addr returns the provider's url, which faces double duty as its issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the pem-encoded keys used to sign tokens.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// KeyID returns the kid the provider signs with and advertises in its JWKS.
func (p *TestProvider) KeyID() string { return p.keyID }

func (p *TestProvider) now() time.Time {
	if p.nowFunc != nil {
		return p.nowFunc()
	}
	return time.Now()
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

// writeAuthErrorResponse writes a redirect carrying a standard error
// parameter, per RFC 6749 section 4.1.2.1.
func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()
	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

// writeTokenErrorResponse writes an error document per RFC 6749 section 5.2.
func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code        string `json:"error"`
		Description string `json:"error_description,omitempty"`
	}{
		errorCode,
		errorMessage,
	}

	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// authenticated checks the client credential on a token or introspection
// request, honoring the percent-encoded basic auth shape of
// client_secret_basic.
func (p *TestProvider) authenticated(req *http.Request) bool {
	if p.clientSecret == "" {
		return req.FormValue("client_id") == p.clientID
	}
	user, pass, ok := req.BasicAuth()
	if !ok {
		return false
	}
	return user == url.QueryEscape(p.clientID) && pass == url.QueryEscape(p.clientSecret)
}

func (p *TestProvider) issueIdToken() string {
	claims := map[string]interface{}{
		"iss":       p.Addr(),
		"sub":       p.replySubject,
		"aud":       p.audiences(),
		"exp":       p.now().Add(5 * time.Minute).Unix(),
		"iat":       p.now().Unix(),
		"auth_time": p.now().Unix(),
	}
	if p.capturedNonce != "" {
		claims["nonce"] = p.capturedNonce
	}
	for k, v := range p.customClaims {
		claims[k] = v
	}
	return TestSignJWT(p.t, p.ecdsaPrivateKey, p.keyID, claims)
}

func (p *TestProvider) issueAccessToken() string {
	claims := map[string]interface{}{
		"iss":       p.Addr(),
		"sub":       p.replySubject,
		"aud":       p.audiences(),
		"client_id": p.clientID,
		"exp":       p.now().Add(5 * time.Minute).Unix(),
		"iat":       p.now().Unix(),
		"jti":       "test-jti-1",
		"scope":     "openid",
	}
	return TestSignJWT(p.t, p.ecdsaPrivateKey, p.keyID, claims)
}

func (p *TestProvider) audiences() []string {
	if len(p.customAudiences) > 0 {
		return p.customAudiences
	}
	return []string{p.clientID}
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		reply := ProviderMetadata{
			Issuer:                p.Addr(),
			AuthorizationEndpoint: p.Addr() + "/auth",
			TokenEndpoint:         p.Addr() + "/token",
			JWKSURI:               p.Addr() + "/certs",
			UserInfoEndpoint:      p.Addr() + "/userinfo",
			IntrospectionEndpoint: p.Addr() + "/introspect",
			EndSessionEndpoint:    p.Addr() + "/logout",
			ScopesSupported:       []string{"openid", "profile", "email"},
			CodeChallengeMethodsSupported: []string{
				string(S256),
			},
		}
		if p.disableUserInfo {
			reply.UserInfoEndpoint = ""
		}
		if p.disableIntrospection {
			reply.IntrospectionEndpoint = ""
		}

		_ = p.writeJSON(w, &reply)

	case "/auth":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		qv := req.URL.Query()

		if qv.Get("response_type") != "code" {
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		}

		nonce := qv.Get("nonce")
		if p.expectedAuthNonce != "" && p.expectedAuthNonce != nonce {
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}
		p.capturedNonce = nonce
		p.capturedChallenge = qv.Get("code_challenge")

		state := qv.Get("state")
		if state == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		}

		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing redirect_uri parameter")
			return
		}

		if p.expectedAuthCode == "" {
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}

		redirectURI += "?state=" + url.QueryEscape(state) +
			"&code=" + url.QueryEscape(p.expectedAuthCode)

		http.Redirect(w, req, redirectURI, http.StatusFound)

	case "/certs":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		_ = p.writeJSON(w, p.jwks)

	case "/certs_missing":
		w.WriteHeader(http.StatusNotFound)

	case "/certs_invalid":
		_, _ = w.Write([]byte("It's not a keyset!"))

	case "/token":
		p.tokenRequestCount++

		if req.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !p.authenticated(req) {
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		}

		switch req.FormValue("grant_type") {
		case "authorization_code":
			if !strutils.StrListContains(p.allowedRedirectURIs, req.FormValue("redirect_uri")) {
				_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
				return
			}
			if req.FormValue("code") != p.expectedAuthCode {
				_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected auth code")
				return
			}
			if p.capturedChallenge != "" {
				challenge, err := CreateCodeChallenge(S256, req.FormValue("code_verifier"))
				if err != nil || challenge != p.capturedChallenge {
					_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected code_verifier")
					return
				}
			}
		case "refresh_token":
			if p.expectedRefreshToken == "" || req.FormValue("refresh_token") != p.expectedRefreshToken {
				_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected refresh_token")
				return
			}
		default:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		}

		reply := struct {
			AccessToken  string `json:"access_token,omitempty"`
			RefreshToken string `json:"refresh_token,omitempty"`
			IdToken      string `json:"id_token,omitempty"`
			TokenType    string `json:"token_type"`
			ExpiresIn    int64  `json:"expires_in"`
		}{
			TokenType: "Bearer",
			ExpiresIn: 300,
		}
		if !p.omitAccessTokens {
			reply.AccessToken = p.issueAccessToken()
			reply.RefreshToken = "test-refresh-token"
		}
		if !p.omitIdTokens {
			reply.IdToken = p.issueIdToken()
		}
		_ = p.writeJSON(w, &reply)

	case "/userinfo":
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		const prefix = "Bearer "
		auth := req.Header.Get("Authorization")
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		reply := map[string]interface{}{
			"sub": p.replySubject,
		}
		for k, v := range p.replyUserinfo {
			reply[k] = v
		}
		_ = p.writeJSON(w, reply)

	case "/introspect":
		if p.disableIntrospection {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !p.authenticated(req) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if req.FormValue("token") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		reply := map[string]interface{}{
			"active": p.introspectActive,
		}
		if p.introspectActive {
			reply["sub"] = p.replySubject
			reply["client_id"] = p.clientID
			reply["token_type"] = "Bearer"
			reply["exp"] = p.now().Add(5 * time.Minute).Unix()
			reply["iss"] = p.Addr()
			reply["aud"] = p.audiences()
		}
		_ = p.writeJSON(w, reply)

	case "/logout":
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// testJWKS converts a pem-encoded public key into JWKS data suitable for a
// verification endpoint response
func testJWKS(t *testing.T, keyID string, pubKey string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubKey))
	require.NotNil(block)

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       pub,
				KeyID:     keyID,
				Algorithm: string(ES256),
				Use:       "sig",
			},
		},
	}
}

package confluence

import (
	"net/http"

	"golang.org/x/oauth2"
)

// Credential injects authentication into an outgoing upstream request.
// It is constructed once at startup and treated as immutable, so the
// client needs no locking around it. Tests substitute a fake Credential
// without touching any transport code.
type Credential interface {
	Apply(req *http.Request) error
}

// BasicAuth authenticates with a Confluence username and API token
// (Confluence Server / Data Center, or Cloud with an API token).
type BasicAuth struct {
	Username string
	Token    string
}

// Apply sets the HTTP basic auth header.
func (b BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Token)
	return nil
}

// TokenAuth authenticates with an OAuth 2.0 bearer token drawn from an
// oauth2.TokenSource, so a refreshing source can be dropped in without
// changing the client.
type TokenAuth struct {
	source oauth2.TokenSource
}

// NewTokenAuth wraps a static access token in a TokenAuth.
func NewTokenAuth(accessToken string) TokenAuth {
	return TokenAuth{source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})}
}

// NewTokenAuthFromSource builds a TokenAuth over an arbitrary token source.
func NewTokenAuthFromSource(source oauth2.TokenSource) TokenAuth {
	return TokenAuth{source: source}
}

// Apply fetches a token from the source and sets the Authorization header.
func (t TokenAuth) Apply(req *http.Request) error {
	tok, err := t.source.Token()
	if err != nil {
		return &Error{Kind: KindUpstreamAuth, Message: "obtaining upstream access token failed"}
	}
	tok.SetAuthHeader(req)
	return nil
}

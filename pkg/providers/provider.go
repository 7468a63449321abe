// Package providers abstracts the upstream identity provider the server
// delegates consent to. Only Google is implemented; the interface exists so
// handlers can be exercised against a fake.
package providers

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// Provider is the upstream side of the authorization flow.
type Provider interface {
	// ConsentURL builds the URL the user is sent to for consent. state is
	// round-tripped back to the callback unmodified.
	ConsentURL(redirectURI, state string) string

	// Exchange trades the upstream authorization code for Google tokens.
	Exchange(ctx context.Context, redirectURI, code string) (*oauth2.Token, error)

	// AccountEmail resolves the email address the tokens belong to.
	AccountEmail(ctx context.Context, tok *oauth2.Token) (string, error)

	// Client returns an HTTP client that authenticates with tok and
	// refreshes it as needed.
	Client(ctx context.Context, tok *oauth2.Token) *http.Client
}

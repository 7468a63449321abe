package providers

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// Google delegates consent and code exchange to Google's OAuth endpoints.
type Google struct {
	clientID     string
	clientSecret string
	scopes       []string
	endpoint     oauth2.Endpoint
}

// Option adjusts a Google provider. Used by tests to point the provider at a
// local stand-in for Google's endpoints.
type Option func(*Google)

func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(g *Google) {
		g.endpoint = endpoint
	}
}

func NewGoogle(clientID, clientSecret string, scopes []string, opts ...Option) *Google {
	g := &Google{
		clientID:     clientID,
		clientSecret: clientSecret,
		scopes:       scopes,
		endpoint:     google.Endpoint,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Google) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.clientID,
		ClientSecret: g.clientSecret,
		Endpoint:     g.endpoint,
		RedirectURL:  redirectURI,
		Scopes:       g.scopes,
	}
}

// ConsentURL requests offline access so Google issues a refresh token, and
// forces the consent prompt because Google only returns a refresh token on
// the first consent otherwise.
func (g *Google) ConsentURL(redirectURI, state string) string {
	return g.config(redirectURI).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

func (g *Google) Exchange(ctx context.Context, redirectURI, code string) (*oauth2.Token, error) {
	tok, err := g.config(redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code with Google: %w", err)
	}
	return tok, nil
}

func (g *Google) AccountEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	if err != nil {
		return "", fmt.Errorf("failed to create userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	return info.Email, nil
}

func (g *Google) Client(ctx context.Context, tok *oauth2.Token) *http.Client {
	return g.config("").Client(ctx, tok)
}

package authorize

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/veslink/calendar-mcp/pkg/clients"
	"github.com/veslink/calendar-mcp/pkg/random"
	"github.com/veslink/calendar-mcp/pkg/sessions"
	"github.com/veslink/calendar-mcp/pkg/snapshot"
	"github.com/veslink/calendar-mcp/pkg/types"
)

type fakeProvider struct{}

func (fakeProvider) ConsentURL(redirectURI, state string) string {
	return fmt.Sprintf("https://accounts.example.com/consent?redirect_uri=%s&state=%s",
		url.QueryEscape(redirectURI), url.QueryEscape(state))
}

func (fakeProvider) Exchange(ctx context.Context, redirectURI, code string) (*oauth2.Token, error) {
	return nil, nil
}

func (fakeProvider) AccountEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	return "", nil
}

func (fakeProvider) Client(ctx context.Context, tok *oauth2.Token) *http.Client {
	return http.DefaultClient
}

func newTestHandler(t *testing.T) (http.Handler, *clients.Registry, *sessions.Store, *types.ClientInfo) {
	t.Helper()

	registry := clients.New(snapshot.NewMemory(), random.New())
	store := sessions.New(random.New())
	t.Cleanup(func() { _ = store.Close() })

	client, err := registry.RegisterClient(&types.ClientInfo{
		RedirectUris:            []string{"http://localhost:9000/cb"},
		TokenEndpointAuthMethod: "none",
	})
	require.NoError(t, err)

	return NewHandler(registry, store, fakeProvider{}), registry, store, client
}

func authorizeRequest(clientID string) *http.Request {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", "http://localhost:9000/cb")
	q.Set("state", "client-state")
	q.Set("code_challenge", "challenge-value")
	q.Set("code_challenge_method", "S256")
	return httptest.NewRequest(http.MethodGet, "/authorize?"+q.Encode(), nil)
}

func TestAuthorizeRedirectsToConsent(t *testing.T) {
	h, _, store, client := newTestHandler(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, authorizeRequest(client.ClientID))

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.example.com", loc.Host)
	assert.Contains(t, loc.Query().Get("redirect_uri"), "/oauth2callback")

	stateData, err := base64.RawURLEncoding.DecodeString(loc.Query().Get("state"))
	require.NoError(t, err)
	var state State
	require.NoError(t, json.Unmarshal(stateData, &state))
	assert.Equal(t, StateType, state.Type)

	sess, ok := store.Consume(state.SessionID)
	require.True(t, ok)
	assert.Equal(t, client.ClientID, sess.ClientID)
	assert.Equal(t, "challenge-value", sess.CodeChallenge)
	assert.Equal(t, "http://localhost:9000/cb", sess.RedirectURI)
	assert.Equal(t, "client-state", sess.State)
}

func TestAuthorizeUnknownClient(t *testing.T) {
	h, _, _, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, authorizeRequest("unknown-client"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var oauthErr types.OAuthError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &oauthErr))
	assert.Equal(t, "invalid_client", oauthErr.Error)
}

func TestAuthorizeUnregisteredRedirectURI(t *testing.T) {
	h, _, _, client := newTestHandler(t)

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", client.ClientID)
	q.Set("redirect_uri", "http://evil.example.com/cb")
	q.Set("code_challenge", "challenge-value")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/authorize?"+q.Encode(), nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var oauthErr types.OAuthError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &oauthErr))
	assert.Equal(t, "invalid_request", oauthErr.Error)
}

func TestAuthorizeRequiresCodeChallenge(t *testing.T) {
	h, _, _, client := newTestHandler(t)

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", client.ClientID)
	q.Set("redirect_uri", "http://localhost:9000/cb")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/authorize?"+q.Encode(), nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthorizeRejectsPlainChallengeMethod(t *testing.T) {
	h, _, _, client := newTestHandler(t)

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", client.ClientID)
	q.Set("redirect_uri", "http://localhost:9000/cb")
	q.Set("code_challenge", "challenge-value")
	q.Set("code_challenge_method", "plain")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/authorize?"+q.Encode(), nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthorizeRejectsTokenResponseType(t *testing.T) {
	h, _, _, client := newTestHandler(t)

	q := url.Values{}
	q.Set("response_type", "token")
	q.Set("client_id", client.ClientID)
	q.Set("redirect_uri", "http://localhost:9000/cb")
	q.Set("code_challenge", "challenge-value")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/authorize?"+q.Encode(), nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var oauthErr types.OAuthError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &oauthErr))
	assert.Equal(t, "unsupported_response_type", oauthErr.Error)
}

package callback

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/veslink/calendar-mcp/pkg/accounts"
	"github.com/veslink/calendar-mcp/pkg/ledger"
	"github.com/veslink/calendar-mcp/pkg/oauth/authorize"
	"github.com/veslink/calendar-mcp/pkg/random"
	"github.com/veslink/calendar-mcp/pkg/sessions"
	"github.com/veslink/calendar-mcp/pkg/snapshot"
)

type fakeProvider struct {
	exchangeErr error
	email       string
}

func (f *fakeProvider) ConsentURL(redirectURI, state string) string { return "" }

func (f *fakeProvider) Exchange(ctx context.Context, redirectURI, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "ya29.access", RefreshToken: "1//refresh"}, nil
}

func (f *fakeProvider) AccountEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	if f.email == "" {
		return "", errors.New("userinfo unavailable")
	}
	return f.email, nil
}

func (f *fakeProvider) Client(ctx context.Context, tok *oauth2.Token) *http.Client {
	return http.DefaultClient
}

type recordingInvalidator struct {
	invalidated []string
}

func (r *recordingInvalidator) Invalidate(account string) {
	r.invalidated = append(r.invalidated, account)
}

type fixture struct {
	handler     http.Handler
	sessions    *sessions.Store
	ledger      *ledger.Ledger
	accounts    *accounts.Manager
	invalidator *recordingInvalidator
}

func newFixture(t *testing.T, provider *fakeProvider) *fixture {
	t.Helper()

	store := sessions.New(random.New())
	t.Cleanup(func() { _ = store.Close() })
	l := ledger.New(snapshot.NewMemory(), random.New())
	t.Cleanup(func() { _ = l.Close() })
	mgr, err := accounts.New(t.TempDir())
	require.NoError(t, err)
	inv := &recordingInvalidator{}

	return &fixture{
		handler:     NewHandler(store, l, mgr, inv, provider),
		sessions:    store,
		ledger:      l,
		accounts:    mgr,
		invalidator: inv,
	}
}

func encodeState(t *testing.T, sessionID string) string {
	t.Helper()
	data, err := json.Marshal(authorize.State{Type: authorize.StateType, SessionID: sessionID})
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(data)
}

func callbackRequest(state, code string) *http.Request {
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if code != "" {
		q.Set("code", code)
	}
	return httptest.NewRequest(http.MethodGet, "/oauth2callback?"+q.Encode(), nil)
}

func TestCallbackIssuesCode(t *testing.T) {
	f := newFixture(t, &fakeProvider{email: "work@example.com"})

	sess := f.sessions.Create("client-1", "challenge", "http://localhost:9000/cb", "client-state", "")

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, callbackRequest(encodeState(t, sess.ID), "upstream-code"))

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", loc.Host)
	assert.Equal(t, "client-state", loc.Query().Get("state"))

	code := loc.Query().Get("code")
	require.NotEmpty(t, code)
	authCode, ok := f.ledger.GetAuthCode(code)
	require.True(t, ok)
	assert.Equal(t, "client-1", authCode.ClientID)
	assert.Equal(t, "challenge", authCode.CodeChallenge)
	assert.Equal(t, "http://localhost:9000/cb", authCode.RedirectURI)

	tok, err := f.accounts.Tokens("work@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ya29.access", tok.AccessToken)
	assert.Equal(t, []string{"work@example.com"}, f.invalidator.invalidated)

	// The session was consumed, so replaying the callback fails.
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, callbackRequest(encodeState(t, sess.ID), "upstream-code"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallbackPreservesActiveAccount(t *testing.T) {
	f := newFixture(t, &fakeProvider{email: "new@example.com"})
	require.NoError(t, f.accounts.SetActiveAccount("existing@example.com"))

	sess := f.sessions.Create("client-1", "challenge", "http://localhost:9000/cb", "", "")

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, callbackRequest(encodeState(t, sess.ID), "upstream-code"))
	require.Equal(t, http.StatusFound, w.Code)

	assert.Equal(t, "existing@example.com", f.accounts.ActiveAccount())
	_, err := f.accounts.Tokens("new@example.com")
	assert.NoError(t, err)
}

func TestCallbackUnresolvedAccountInvalidatesActive(t *testing.T) {
	// No account on the session and a failing userinfo lookup: credentials
	// land under the active account, whose cache must still be invalidated.
	f := newFixture(t, &fakeProvider{})
	require.NoError(t, f.accounts.SetActiveAccount("existing@example.com"))

	sess := f.sessions.Create("client-1", "challenge", "http://localhost:9000/cb", "", "")

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, callbackRequest(encodeState(t, sess.ID), "upstream-code"))
	require.Equal(t, http.StatusFound, w.Code)

	tok, err := f.accounts.Tokens("existing@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ya29.access", tok.AccessToken)
	assert.Equal(t, []string{"existing@example.com"}, f.invalidator.invalidated)
}

func TestCallbackBadState(t *testing.T) {
	f := newFixture(t, &fakeProvider{})

	for _, state := range []string{"", "not-base64!!", base64.RawURLEncoding.EncodeToString([]byte(`{"type":"other"}`))} {
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, callbackRequest(state, "upstream-code"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestCallbackUnknownSession(t *testing.T) {
	f := newFixture(t, &fakeProvider{})

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, callbackRequest(encodeState(t, "missing-session"), "upstream-code"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallbackExchangeFailureRedirects(t *testing.T) {
	f := newFixture(t, &fakeProvider{exchangeErr: errors.New("upstream down")})

	sess := f.sessions.Create("client-1", "challenge", "http://localhost:9000/cb", "client-state", "")

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, callbackRequest(encodeState(t, sess.ID), "upstream-code"))

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "server_error", loc.Query().Get("error"))
	assert.Equal(t, "client-state", loc.Query().Get("state"))
	assert.Empty(t, loc.Query().Get("code"))
}

func TestCallbackUpstreamErrorPassthrough(t *testing.T) {
	f := newFixture(t, &fakeProvider{})

	sess := f.sessions.Create("client-1", "challenge", "http://localhost:9000/cb", "client-state", "")

	q := url.Values{}
	q.Set("state", encodeState(t, sess.ID))
	q.Set("error", "access_denied")
	q.Set("error_description", "User denied consent")

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth2callback?"+q.Encode(), nil))

	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", loc.Query().Get("error"))
	assert.Equal(t, "User denied consent", loc.Query().Get("error_description"))
}

func TestCallbackSessionAccountWins(t *testing.T) {
	f := newFixture(t, &fakeProvider{email: "resolved@example.com"})

	sess := f.sessions.Create("client-1", "challenge", "http://localhost:9000/cb", "", "named@example.com")

	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, callbackRequest(encodeState(t, sess.ID), "upstream-code"))
	require.Equal(t, http.StatusFound, w.Code)

	_, err := f.accounts.Tokens("named@example.com")
	assert.NoError(t, err)
	assert.Equal(t, []string{"named@example.com"}, f.invalidator.invalidated)
}

package gcal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/veslink/calendar-mcp/pkg/accounts"
)

type staticProvider struct{}

func (staticProvider) ConsentURL(redirectURI, state string) string { return "" }

func (staticProvider) Exchange(ctx context.Context, redirectURI, code string) (*oauth2.Token, error) {
	return nil, nil
}

func (staticProvider) AccountEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	return "", nil
}

func (staticProvider) Client(ctx context.Context, tok *oauth2.Token) *http.Client {
	return http.DefaultClient
}

func newTestRegistry(t *testing.T, listCalls *int64) *Registry {
	t.Helper()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if listCalls != nil {
			atomic.AddInt64(listCalls, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"primary-id","summary":"Work"},
			{"id":"family-id@group.calendar.google.com","summary":"Family"}
		]}`))
	}))
	t.Cleanup(api.Close)

	mgr, err := accounts.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, mgr.SetActiveAccount("work@example.com"))
	require.NoError(t, mgr.PersistTokens(&oauth2.Token{AccessToken: "ya29.access"}))

	return New(staticProvider{}, mgr, option.WithEndpoint(api.URL))
}

func TestCalendarsCached(t *testing.T) {
	var calls int64
	r := newTestRegistry(t, &calls)
	ctx := context.Background()

	entries, err := r.Calendars(ctx, "work@example.com")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = r.Calendars(ctx, "work@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	r.Invalidate("work@example.com")
	_, err = r.Calendars(ctx, "work@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestResolve(t *testing.T) {
	r := newTestRegistry(t, nil)
	ctx := context.Background()

	id, err := r.Resolve(ctx, "work@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "primary", id)

	id, err = r.Resolve(ctx, "work@example.com", "family-id@group.calendar.google.com")
	require.NoError(t, err)
	assert.Equal(t, "family-id@group.calendar.google.com", id)

	id, err = r.Resolve(ctx, "work@example.com", "family")
	require.NoError(t, err)
	assert.Equal(t, "family-id@group.calendar.google.com", id)

	_, err = r.Resolve(ctx, "work@example.com", "nope")
	assert.Error(t, err)
}

func TestServiceWithoutCredentials(t *testing.T) {
	mgr, err := accounts.New(t.TempDir())
	require.NoError(t, err)
	r := New(staticProvider{}, mgr)

	_, err = r.Service(context.Background(), "missing@example.com")
	assert.Error(t, err)
}

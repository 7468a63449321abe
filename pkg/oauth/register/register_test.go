package register

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veslink/calendar-mcp/pkg/clients"
	"github.com/veslink/calendar-mcp/pkg/random"
	"github.com/veslink/calendar-mcp/pkg/snapshot"
	"github.com/veslink/calendar-mcp/pkg/types"
)

func newTestHandler() (http.Handler, *clients.Registry) {
	registry := clients.New(snapshot.NewMemory(), random.New())
	return NewHandler(registry), registry
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRegisterPublicClient(t *testing.T) {
	h, registry := newTestHandler()

	w := post(h, `{
		"redirect_uris": ["http://localhost:9000/cb"],
		"client_name": "Test Client",
		"token_endpoint_auth_method": "none"
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp types.ClientInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ClientID)
	assert.Empty(t, resp.ClientSecret)
	assert.Equal(t, []string{"http://localhost:9000/cb"}, resp.RedirectUris)
	assert.Equal(t, "Test Client", resp.ClientName)
	assert.Equal(t, []string{"authorization_code", "refresh_token"}, resp.GrantTypes)
	assert.Equal(t, []string{"code"}, resp.ResponseTypes)
	assert.NotZero(t, resp.IssuedAt)

	stored, ok := registry.GetClient(resp.ClientID)
	require.True(t, ok)
	assert.Equal(t, "none", stored.TokenEndpointAuthMethod)
}

func TestRegisterConfidentialClient(t *testing.T) {
	h, _ := newTestHandler()

	w := post(h, `{"redirect_uris": ["http://localhost:9000/cb"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp types.ClientInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "client_secret_basic", resp.TokenEndpointAuthMethod)
	assert.True(t, strings.HasPrefix(resp.ClientSecret, random.PrefixClientSecret))
	assert.Zero(t, resp.SecretExpiresAt)
}

func TestRegisterUniqueClientIDs(t *testing.T) {
	h, _ := newTestHandler()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		w := post(h, `{"redirect_uris": ["http://localhost:9000/cb"]}`)
		require.Equal(t, http.StatusCreated, w.Code)
		var resp types.ClientInfo
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, seen[resp.ClientID])
		seen[resp.ClientID] = true
	}
}

func TestRegisterMissingRedirectURIs(t *testing.T) {
	h, _ := newTestHandler()

	w := post(h, `{"client_name": "No URIs"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var oauthErr types.OAuthError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &oauthErr))
	assert.Equal(t, "invalid_client_metadata", oauthErr.Error)
}

func TestRegisterInvalidJSON(t *testing.T) {
	h, _ := newTestHandler()

	w := post(h, `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/register", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRegisterBadFieldTypes(t *testing.T) {
	h, _ := newTestHandler()

	w := post(h, `{"redirect_uris": "not-an-array"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(h, `{"redirect_uris": ["http://localhost/cb"], "client_name": 42}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

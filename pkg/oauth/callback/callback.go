package callback

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/veslink/calendar-mcp/pkg/handlerutils"
	"github.com/veslink/calendar-mcp/pkg/oauth/authorize"
	"github.com/veslink/calendar-mcp/pkg/providers"
	"github.com/veslink/calendar-mcp/pkg/sessions"
	"github.com/veslink/calendar-mcp/pkg/types"
)

type SessionStore interface {
	Consume(id string) (*sessions.Session, bool)
}

type CodeStore interface {
	CreateAuthCode(clientID, codeChallenge, redirectURI, sessionID string) *types.AuthCode
}

// CredentialSink stores the Google tokens obtained from the exchange.
type CredentialSink interface {
	ActiveAccount() string
	SetActiveAccount(account string) error
	PersistTokens(tok *oauth2.Token) error
}

type CacheInvalidator interface {
	Invalidate(account string)
}

type Handler struct {
	sessions SessionStore
	codes    CodeStore
	sink     CredentialSink
	cache    CacheInvalidator
	provider providers.Provider
}

func NewHandler(sessions SessionStore, codes CodeStore, sink CredentialSink, cache CacheInvalidator, provider providers.Provider) http.Handler {
	return &Handler{
		sessions: sessions,
		codes:    codes,
		sink:     sink,
		cache:    cache,
		provider: provider,
	}
}

func (p *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	sess, ok := p.consumeSession(query.Get("state"))
	if !ok {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Invalid or expired authorization session",
		})
		return
	}

	// Google reported an error. The session is already consumed, so the
	// client has to start over.
	if errCode := query.Get("error"); errCode != "" {
		p.redirectError(w, r, sess, errCode, query.Get("error_description"))
		return
	}

	upstreamCode := query.Get("code")
	if upstreamCode == "" {
		p.redirectError(w, r, sess, "invalid_request", "Missing authorization code")
		return
	}

	callbackURI := fmt.Sprintf("%s/oauth2callback", handlerutils.GetBaseURL(r))
	tok, err := p.provider.Exchange(r.Context(), callbackURI, upstreamCode)
	if err != nil {
		log.Printf("Upstream token exchange failed: %v", err)
		p.redirectError(w, r, sess, "server_error", "Failed to exchange authorization code")
		return
	}

	account := sess.Account
	if account == "" {
		// Resolve the account from the tokens when the client did not
		// name one. Failure here is tolerable: the tokens still land
		// under the active account.
		if email, err := p.provider.AccountEmail(r.Context(), tok); err == nil && email != "" {
			account = email
		}
	}
	if account == "" {
		account = p.sink.ActiveAccount()
	}

	if err := p.persistTokens(account, tok); err != nil {
		log.Printf("Failed to persist Google credentials: %v", err)
		p.redirectError(w, r, sess, "server_error", "Failed to store credentials")
		return
	}
	p.cache.Invalidate(account)

	code := p.codes.CreateAuthCode(sess.ClientID, sess.CodeChallenge, sess.RedirectURI, sess.ID)

	redirect, err := url.Parse(sess.RedirectURI)
	if err != nil {
		http.Error(w, "Invalid redirect URI", http.StatusInternalServerError)
		return
	}
	q := redirect.Query()
	q.Set("code", code.Code)
	if sess.State != "" {
		q.Set("state", sess.State)
	}
	redirect.RawQuery = q.Encode()

	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

// consumeSession decodes the state blob and removes the pending session it
// names. Anything malformed or unknown yields no session.
func (p *Handler) consumeSession(rawState string) (*sessions.Session, bool) {
	if rawState == "" {
		return nil, false
	}
	data, err := base64.RawURLEncoding.DecodeString(rawState)
	if err != nil {
		return nil, false
	}
	var state authorize.State
	if err := json.Unmarshal(data, &state); err != nil || state.Type != authorize.StateType || state.SessionID == "" {
		return nil, false
	}
	return p.sessions.Consume(state.SessionID)
}

// persistTokens writes tok under account, restoring the previously active
// account afterwards so a reauthorization for one account does not silently
// switch the server to it.
func (p *Handler) persistTokens(account string, tok *oauth2.Token) error {
	if account == p.sink.ActiveAccount() {
		return p.sink.PersistTokens(tok)
	}

	previous := p.sink.ActiveAccount()
	if err := p.sink.SetActiveAccount(account); err != nil {
		return err
	}
	persistErr := p.sink.PersistTokens(tok)
	if err := p.sink.SetActiveAccount(previous); err != nil {
		log.Printf("Failed to restore active account %s: %v", previous, err)
	}
	return persistErr
}

// redirectError reports the failure to the client on its own redirect URI.
// The bare 500 path is reserved for a redirect URI that cannot be parsed.
func (p *Handler) redirectError(w http.ResponseWriter, r *http.Request, sess *sessions.Session, errCode, description string) {
	redirect, err := url.Parse(sess.RedirectURI)
	if err != nil {
		http.Error(w, "Invalid redirect URI", http.StatusInternalServerError)
		return
	}
	q := redirect.Query()
	q.Set("error", errCode)
	if description != "" {
		q.Set("error_description", description)
	}
	if sess.State != "" {
		q.Set("state", sess.State)
	}
	redirect.RawQuery = q.Encode()
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

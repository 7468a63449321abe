package authorize

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/veslink/calendar-mcp/pkg/handlerutils"
	"github.com/veslink/calendar-mcp/pkg/providers"
	"github.com/veslink/calendar-mcp/pkg/sessions"
	"github.com/veslink/calendar-mcp/pkg/types"
)

// StateType tags the state blob round-tripped through Google so the callback
// can reject state minted by anything else.
const StateType = "calendar-auth"

type ClientStore interface {
	GetClient(clientID string) (*types.ClientInfo, bool)
}

type SessionStore interface {
	Create(clientID, codeChallenge, redirectURI, state, account string) *sessions.Session
}

// State is the blob carried through the upstream flow as the OAuth state
// parameter, base64url-encoded JSON.
type State struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type Handler struct {
	clients  ClientStore
	sessions SessionStore
	provider providers.Provider
}

func NewHandler(clients ClientStore, sessions SessionStore, provider providers.Provider) http.Handler {
	return &Handler{
		clients:  clients,
		sessions: sessions,
		provider: provider,
	}
}

func (p *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var params url.Values
	if r.Method == http.MethodGet {
		params = r.URL.Query()
	} else {
		if err := r.ParseForm(); err != nil {
			handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
				Error:            "invalid_request",
				ErrorDescription: "Failed to parse form data",
			})
			return
		}
		params = r.Form
	}

	var (
		responseType        = params.Get("response_type")
		clientID            = params.Get("client_id")
		redirectURI         = params.Get("redirect_uri")
		state               = params.Get("state")
		codeChallenge       = params.Get("code_challenge")
		codeChallengeMethod = params.Get("code_challenge_method")
		account             = params.Get("account")
	)

	if responseType == "" || clientID == "" || redirectURI == "" {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Missing required parameters",
		})
		return
	}

	if responseType != "code" {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "unsupported_response_type",
			ErrorDescription: "Only the 'code' response type is supported",
		})
		return
	}

	clientInfo, ok := p.clients.GetClient(clientID)
	if !ok {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_client",
			ErrorDescription: "Client not found",
		})
		return
	}

	if !slices.Contains(clientInfo.RedirectUris, redirectURI) {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Invalid redirect URI",
		})
		return
	}

	if codeChallenge == "" {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "code_challenge is required",
		})
		return
	}

	if codeChallengeMethod != "" && codeChallengeMethod != "S256" {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Only the S256 code challenge method is supported",
		})
		return
	}

	sess := p.sessions.Create(clientID, codeChallenge, redirectURI, state, account)

	stateData, err := json.Marshal(State{Type: StateType, SessionID: sess.ID})
	if err != nil {
		handlerutils.JSON(w, http.StatusInternalServerError, types.OAuthError{
			Error:            "server_error",
			ErrorDescription: "Failed to encode state",
		})
		return
	}

	callbackURI := fmt.Sprintf("%s/oauth2callback", handlerutils.GetBaseURL(r))
	consentURL := p.provider.ConsentURL(callbackURI, base64.RawURLEncoding.EncodeToString(stateData))

	http.Redirect(w, r, consentURL, http.StatusFound)
}

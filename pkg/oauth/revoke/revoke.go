package revoke

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/veslink/calendar-mcp/pkg/handlerutils"
	"github.com/veslink/calendar-mcp/pkg/types"
)

type ClientStore interface {
	GetClient(clientID string) (*types.ClientInfo, bool)
}

type TokenStore interface {
	GetAccessToken(token string) (*types.AccessToken, bool)
	GetRefreshToken(token string) (*types.RefreshToken, bool)
	RevokeAccessToken(token string)
	RevokeTokensByRefreshToken(refreshToken string)
}

type Handler struct {
	clients ClientStore
	tokens  TokenStore
}

func NewHandler(clients ClientStore, tokens TokenStore) http.Handler {
	return &Handler{
		clients: clients,
		tokens:  tokens,
	}
}

func (p *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Invalid request body",
		})
		return
	}

	token := r.FormValue("token")
	tokenTypeHint := r.FormValue("token_type_hint")
	clientID := r.FormValue("client_id")
	clientSecret := r.FormValue("client_secret")

	if clientID == "" {
		handlerutils.JSON(w, http.StatusUnauthorized, types.OAuthError{
			Error:            "invalid_client",
			ErrorDescription: "Client ID is required",
		})
		return
	}

	clientInfo, ok := p.clients.GetClient(clientID)
	if !ok {
		handlerutils.JSON(w, http.StatusUnauthorized, types.OAuthError{
			Error:            "invalid_client",
			ErrorDescription: "Client not found",
		})
		return
	}

	if clientInfo.TokenEndpointAuthMethod != "none" {
		if clientSecret == "" {
			handlerutils.JSON(w, http.StatusUnauthorized, types.OAuthError{
				Error:            "invalid_client",
				ErrorDescription: "Client secret is required for confidential clients",
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(clientInfo.ClientSecret), []byte(clientSecret)) != 1 {
			handlerutils.JSON(w, http.StatusUnauthorized, types.OAuthError{
				Error:            "invalid_client",
				ErrorDescription: "Invalid client secret",
			})
			return
		}
	}

	if token == "" {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Token parameter is required",
		})
		return
	}

	// Unknown tokens and tokens held by another client both yield 200 with
	// nothing revoked. Revocation never discloses whether a token existed.
	switch tokenTypeHint {
	case "refresh_token":
		p.revokeRefreshToken(token, clientID)
	case "access_token":
		p.revokeAccessToken(token, clientID)
	default:
		if !p.revokeAccessToken(token, clientID) {
			p.revokeRefreshToken(token, clientID)
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (p *Handler) revokeAccessToken(token, clientID string) bool {
	tokenData, ok := p.tokens.GetAccessToken(token)
	if !ok {
		return false
	}
	if tokenData.ClientID != clientID {
		log.Printf("Revocation attempt by wrong client: token belongs to %s, requested by %s", tokenData.ClientID, clientID)
		return true
	}
	p.tokens.RevokeAccessToken(token)
	return true
}

func (p *Handler) revokeRefreshToken(token, clientID string) bool {
	tokenData, ok := p.tokens.GetRefreshToken(token)
	if !ok {
		return false
	}
	if tokenData.ClientID != clientID {
		log.Printf("Revocation attempt by wrong client: token belongs to %s, requested by %s", tokenData.ClientID, clientID)
		return true
	}
	// Taking down the refresh token takes every access token minted from it.
	p.tokens.RevokeTokensByRefreshToken(token)
	return true
}

package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/veslink/calendar-mcp/pkg/handlerutils"
	"github.com/veslink/calendar-mcp/pkg/ledger"
	"github.com/veslink/calendar-mcp/pkg/types"
)

type ClientStore interface {
	GetClient(clientID string) (*types.ClientInfo, bool)
}

type TokenStore interface {
	GetAuthCode(code string) (*types.AuthCode, bool)
	ConsumeAuthCode(code string) (*types.AuthCode, bool)
	CreateAccessToken(clientID string, scopes []string, refreshToken string) *types.AccessToken
	CreateRefreshToken(clientID string, scopes []string) *types.RefreshToken
	GetRefreshToken(token string) (*types.RefreshToken, bool)
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

	clientID := r.FormValue("client_id")
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

	// Public clients (auth method "none") carry no secret.
	if clientInfo.TokenEndpointAuthMethod != "none" {
		clientSecret := r.FormValue("client_secret")
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

	switch r.FormValue("grant_type") {
	case "authorization_code":
		p.handleAuthorizationCodeGrant(w, r, clientID)
	case "refresh_token":
		p.handleRefreshTokenGrant(w, r, clientID)
	default:
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "unsupported_grant_type",
			ErrorDescription: "The grant type is not supported by this authorization server",
		})
	}
}

func (p *Handler) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request, clientID string) {
	code := r.FormValue("code")
	codeVerifier := r.FormValue("code_verifier")
	redirectURI := r.FormValue("redirect_uri")

	if code == "" {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Authorization code is required",
		})
		return
	}

	// Validate against the code before consuming it, so a request from the
	// wrong client or with a bad verifier leaves the code intact for its
	// rightful owner.
	authCode, ok := p.tokens.GetAuthCode(code)
	if !ok {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_grant",
			ErrorDescription: "Invalid authorization code",
		})
		return
	}

	if authCode.ClientID != clientID {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_grant",
			ErrorDescription: "Authorization code was issued to another client",
		})
		return
	}

	if redirectURI != "" && redirectURI != authCode.RedirectURI {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_grant",
			ErrorDescription: "Redirect URI does not match the authorization request",
		})
		return
	}

	if codeVerifier == "" {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "code_verifier is required",
		})
		return
	}

	hash := sha256.Sum256([]byte(codeVerifier))
	calculated := base64.RawURLEncoding.EncodeToString(hash[:])
	if subtle.ConstantTimeCompare([]byte(calculated), []byte(authCode.CodeChallenge)) != 1 {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_grant",
			ErrorDescription: "Invalid PKCE code_verifier",
		})
		return
	}

	// Consume removes the code atomically, so concurrent exchanges of the
	// same code cannot both reach this point with ok set.
	authCode, ok = p.tokens.ConsumeAuthCode(code)
	if !ok || authCode.ClientID != clientID {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_grant",
			ErrorDescription: "Invalid authorization code",
		})
		return
	}

	refreshToken := p.tokens.CreateRefreshToken(clientID, nil)
	accessToken := p.tokens.CreateAccessToken(clientID, nil, refreshToken.Token)

	handlerutils.JSON(w, http.StatusOK, types.TokenResponse{
		AccessToken:  accessToken.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int(ledger.AccessTokenTTL.Seconds()),
		RefreshToken: refreshToken.Token,
		Scope:        strings.Join(accessToken.Scopes, " "),
	})
}

func (p *Handler) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request, clientID string) {
	refreshToken := r.FormValue("refresh_token")
	if refreshToken == "" {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Refresh token is required",
		})
		return
	}

	tokenData, ok := p.tokens.GetRefreshToken(refreshToken)
	if !ok {
		handlerutils.JSON(w, http.StatusUnauthorized, types.OAuthError{
			Error:            "invalid_grant",
			ErrorDescription: "Invalid refresh token",
		})
		return
	}

	if tokenData.ClientID != clientID {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_grant",
			ErrorDescription: "Token does not belong to the requesting client",
		})
		return
	}

	// The refresh token is not rotated; the new access token is bound to it
	// so revoking the refresh token later takes the access token with it.
	accessToken := p.tokens.CreateAccessToken(clientID, tokenData.Scopes, tokenData.Token)

	handlerutils.JSON(w, http.StatusOK, types.TokenResponse{
		AccessToken: accessToken.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ledger.AccessTokenTTL.Seconds()),
		Scope:       strings.Join(accessToken.Scopes, " "),
	})
}

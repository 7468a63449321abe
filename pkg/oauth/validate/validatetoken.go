package validate

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/veslink/calendar-mcp/pkg/handlerutils"
	"github.com/veslink/calendar-mcp/pkg/types"
)

type TokenStore interface {
	GetAccessToken(token string) (*types.AccessToken, bool)
}

type TokenValidator struct {
	tokens TokenStore
}

func NewTokenValidator(tokens TokenStore) *TokenValidator {
	return &TokenValidator{
		tokens: tokens,
	}
}

// WithTokenValidation rejects requests without a live bearer token and
// attaches the verified identity to the request context.
func (p *TokenValidator) WithTokenValidation(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			p.unauthorized(w, r, "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			p.unauthorized(w, r, "Invalid Authorization header format, expected 'Bearer TOKEN'")
			return
		}

		tokenData, ok := p.tokens.GetAccessToken(parts[1])
		if !ok {
			p.unauthorized(w, r, "Invalid or expired token")
			return
		}

		authInfo := &types.AuthInfo{
			Token:     tokenData.Token,
			ClientID:  tokenData.ClientID,
			Scopes:    tokenData.Scopes,
			ExpiresAt: tokenData.ExpiresAt,
		}
		next(w, r.WithContext(context.WithValue(r.Context(), authInfoKey{}, authInfo)))
	}
}

func (p *TokenValidator) unauthorized(w http.ResponseWriter, r *http.Request, description string) {
	resourceMetadataURL := fmt.Sprintf("%s/.well-known/oauth-protected-resource/mcp", handlerutils.GetBaseURL(r))
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(
		`Bearer error="invalid_token", error_description="%s", resource_metadata="%s"`,
		description, resourceMetadataURL))
	handlerutils.JSON(w, http.StatusUnauthorized, types.OAuthError{
		Error:            "invalid_token",
		ErrorDescription: description,
	})
}

// GetAuthInfo returns the identity attached by WithTokenValidation, or nil
// for requests that did not pass through it.
func GetAuthInfo(r *http.Request) *types.AuthInfo {
	info, _ := r.Context().Value(authInfoKey{}).(*types.AuthInfo)
	return info
}

type authInfoKey struct{}

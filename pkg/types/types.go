package types

import (
	"time"
)

// Config holds all configuration values for the calendar MCP server.
type Config struct {
	Host               string
	Port               string
	DataDir            string
	DatabaseDSN        string
	GoogleClientID     string
	GoogleClientSecret string
	ScopesSupported    string
}

// ClientInfo represents an OAuth client registered via dynamic client registration.
type ClientInfo struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	SecretExpiresAt         int64    `json:"client_secret_expires_at"`
	RedirectUris            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	LogoURI                 string   `json:"logo_uri,omitempty"`
	ClientURI               string   `json:"client_uri,omitempty"`
	Contacts                []string `json:"contacts,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	IssuedAt                int64    `json:"client_id_issued_at,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

// AuthCode is a short-lived, single-use proof that an authorization flow
// completed upstream consent. It carries the PKCE challenge the token
// endpoint verifies against.
type AuthCode struct {
	Code          string    `json:"code"`
	ClientID      string    `json:"client_id"`
	CodeChallenge string    `json:"code_challenge"`
	RedirectURI   string    `json:"redirect_uri"`
	SessionID     string    `json:"session_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// AccessToken is an opaque bearer credential for calling this server's tools.
// RefreshToken back-references the refresh token it was minted from, so that
// revoking the refresh token cascades to it.
type AccessToken struct {
	Token        string    `json:"token"`
	ClientID     string    `json:"client_id"`
	Scopes       []string  `json:"scopes"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

// RefreshToken is a long-lived credential used to mint new access tokens.
type RefreshToken struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthInfo is the request identity attached after bearer-token verification.
type AuthInfo struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OAuthMetadata represents OAuth authorization server metadata.
type OAuthMetadata struct {
	Issuer                                   string   `json:"issuer"`
	ServiceDocumentation                     string   `json:"service_documentation,omitempty"`
	AuthorizationEndpoint                    string   `json:"authorization_endpoint"`
	ResponseTypesSupported                   []string `json:"response_types_supported"`
	CodeChallengeMethodsSupported            []string `json:"code_challenge_methods_supported"`
	TokenEndpoint                            string   `json:"token_endpoint"`
	TokenEndpointAuthMethodsSupported        []string `json:"token_endpoint_auth_methods_supported"`
	GrantTypesSupported                      []string `json:"grant_types_supported"`
	ScopesSupported                          []string `json:"scopes_supported,omitempty"`
	RevocationEndpoint                       string   `json:"revocation_endpoint,omitempty"`
	RevocationEndpointAuthMethodsSupported   []string `json:"revocation_endpoint_auth_methods_supported,omitempty"`
	RegistrationEndpoint                     string   `json:"registration_endpoint,omitempty"`
	RegistrationEndpointAuthMethodsSupported []string `json:"registration_endpoint_auth_methods_supported,omitempty"`
}

// OAuthProtectedResourceMetadata represents protected resource metadata.
type OAuthProtectedResourceMetadata struct {
	Resource              string   `json:"resource"`
	AuthorizationServers  []string `json:"authorization_servers"`
	Scopes                []string `json:"scopes,omitempty"`
	ResourceName          string   `json:"resource_name,omitempty"`
	ResourceDocumentation string   `json:"resource_documentation,omitempty"`
}

// TokenResponse represents an OAuth token endpoint response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// OAuthError represents an OAuth error response.
type OAuthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}

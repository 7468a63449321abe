package register

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/veslink/calendar-mcp/pkg/handlerutils"
	"github.com/veslink/calendar-mcp/pkg/types"
)

type ClientStore interface {
	RegisterClient(client *types.ClientInfo) (*types.ClientInfo, error)
}

type Handler struct {
	clients ClientStore
}

func NewHandler(clients ClientStore) http.Handler {
	return &Handler{
		clients: clients,
	}
}

func (p *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		handlerutils.JSON(w, http.StatusMethodNotAllowed, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Method not allowed",
		})
		return
	}

	if r.ContentLength > 1024*1024 {
		handlerutils.JSON(w, http.StatusRequestEntityTooLarge, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Request payload too large, must be under 1 MiB",
		})
		return
	}

	var metadata map[string]interface{}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024*1024)).Decode(&metadata); err != nil {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Invalid JSON payload",
		})
		return
	}

	clientInfo, err := validateClientMetadata(metadata)
	if err != nil {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_client_metadata",
			ErrorDescription: err.Error(),
		})
		return
	}

	registered, err := p.clients.RegisterClient(clientInfo)
	if err != nil {
		log.Printf("Failed to register client: %v", err)
		handlerutils.JSON(w, http.StatusInternalServerError, types.OAuthError{
			Error:            "server_error",
			ErrorDescription: "Failed to register client",
		})
		return
	}

	handlerutils.JSON(w, http.StatusCreated, registered)
}

func validateClientMetadata(metadata map[string]interface{}) (*types.ClientInfo, error) {
	stringField := func(field interface{}, name string) (string, error) {
		if field == nil {
			return "", nil
		}
		if str, ok := field.(string); ok {
			return str, nil
		}
		return "", fmt.Errorf("field %s must be a string", name)
	}

	stringArray := func(arr interface{}, name string) ([]string, error) {
		if arr == nil {
			return nil, nil
		}
		if array, ok := arr.([]interface{}); ok {
			result := make([]string, len(array))
			for i, item := range array {
				str, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("all elements in %s must be strings", name)
				}
				result[i] = str
			}
			return result, nil
		}
		return nil, fmt.Errorf("field %s must be an array", name)
	}

	authMethod, err := stringField(metadata["token_endpoint_auth_method"], "token_endpoint_auth_method")
	if err != nil {
		return nil, err
	}
	if authMethod == "" {
		authMethod = "client_secret_basic"
	}

	redirectUris, err := stringArray(metadata["redirect_uris"], "redirect_uris")
	if err != nil {
		return nil, err
	}
	if len(redirectUris) == 0 {
		return nil, fmt.Errorf("at least one redirect URI is required")
	}

	clientName, err := stringField(metadata["client_name"], "client_name")
	if err != nil {
		return nil, err
	}

	logoURI, err := stringField(metadata["logo_uri"], "logo_uri")
	if err != nil {
		return nil, err
	}

	clientURI, err := stringField(metadata["client_uri"], "client_uri")
	if err != nil {
		return nil, err
	}

	contacts, err := stringArray(metadata["contacts"], "contacts")
	if err != nil {
		return nil, err
	}

	grantTypes, err := stringArray(metadata["grant_types"], "grant_types")
	if err != nil {
		return nil, err
	}
	if len(grantTypes) == 0 {
		grantTypes = []string{"authorization_code", "refresh_token"}
	}

	responseTypes, err := stringArray(metadata["response_types"], "response_types")
	if err != nil {
		return nil, err
	}
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}

	return &types.ClientInfo{
		RedirectUris:            redirectUris,
		ClientName:              clientName,
		LogoURI:                 logoURI,
		ClientURI:               clientURI,
		Contacts:                contacts,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		TokenEndpointAuthMethod: authMethod,
	}, nil
}

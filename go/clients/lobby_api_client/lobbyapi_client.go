package lobby_api_client

import (
	"github.com/mcdev12/sketchrelay/go/clients"
)

// LobbyApiClient talks to the lobby REST service that owns room metadata and
// user accounts. The relay treats it as an opaque upstream: lookups that fail
// fall back to relay defaults.
type LobbyApiClient struct {
	*clients.BaseClient
}

func NewLobbyApiClient(baseURL, serviceToken string) *LobbyApiClient {
	client := &LobbyApiClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	if serviceToken != "" {
		client.SetHeader(AuthorizationHeader, "Bearer "+serviceToken)
	}

	return client
}

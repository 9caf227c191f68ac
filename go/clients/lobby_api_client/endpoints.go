package lobby_api_client

const (
	// API Endpoints
	LobbiesEndpoint = "/lobbies"
	UsersEndpoint   = "/users"

	// Headers
	AuthorizationHeader = "Authorization"
)

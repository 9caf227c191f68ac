package lobby_api_client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// RoomSettings is the lobby service's configuration for one room.
type RoomSettings struct {
	RoomID              string   `json:"roomId"`
	MaxPlayers          int      `json:"maxPlayers"`
	TotalRounds         int      `json:"totalRounds"`
	DrawDurationSeconds int      `json:"drawDurationSeconds"`
	OwnerID             string   `json:"ownerId"`
	WordList            []string `json:"wordList"`
}

// GetRoomSettings fetches the configuration of a room by its code.
func (c *LobbyApiClient) GetRoomSettings(ctx context.Context, roomID string) (*RoomSettings, error) {
	endpoint := fmt.Sprintf("%s/%s", LobbiesEndpoint, url.PathEscape(roomID))
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get room settings: %w", err)
	}

	var settings RoomSettings
	if err := json.Unmarshal(body, &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}

	return &settings, nil
}

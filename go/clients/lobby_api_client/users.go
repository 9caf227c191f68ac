package lobby_api_client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// UserProfile is the account profile behind a participant ID.
type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

// GetUserProfile fetches a user's profile by their stable account ID.
func (c *LobbyApiClient) GetUserProfile(ctx context.Context, userID string) (*UserProfile, error) {
	endpoint := fmt.Sprintf("%s/%s", UsersEndpoint, url.PathEscape(userID))
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	var profile UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}

	return &profile, nil
}

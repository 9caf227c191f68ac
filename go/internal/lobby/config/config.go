package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds relay settings. Values come from an optional YAML file with
// environment variables taking precedence.
type Config struct {
	Port string `yaml:"port"`

	LobbyAPIURL   string `yaml:"lobby_api_url"`
	LobbyAPIToken string `yaml:"lobby_api_token"`

	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`

	DrawDurationSeconds   int `yaml:"draw_duration_seconds"`
	TotalRounds           int `yaml:"total_rounds"`
	HandoffTimeoutSeconds int `yaml:"handoff_timeout_seconds"`
}

// Default returns the relay's built-in settings.
func Default() Config {
	return Config{
		Port:                  "8082",
		NATSSubjectPrefix:     "lobby.events",
		DrawDurationSeconds:   80,
		TotalRounds:           3,
		HandoffTimeoutSeconds: 10,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays RELAY_* environment variables.
func (c Config) ApplyEnv() Config {
	c.Port = getEnv("RELAY_PORT", c.Port)
	c.LobbyAPIURL = getEnv("LOBBY_API_URL", c.LobbyAPIURL)
	c.LobbyAPIToken = getEnv("LOBBY_API_TOKEN", c.LobbyAPIToken)
	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.NATSSubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATSSubjectPrefix)
	c.DrawDurationSeconds = getEnvAsInt("RELAY_DRAW_DURATION_SEC", c.DrawDurationSeconds)
	c.TotalRounds = getEnvAsInt("RELAY_TOTAL_ROUNDS", c.TotalRounds)
	c.HandoffTimeoutSeconds = getEnvAsInt("RELAY_HANDOFF_TIMEOUT_SEC", c.HandoffTimeoutSeconds)
	return c
}

// HandoffTimeout returns the handoff timeout as a duration.
func (c Config) HandoffTimeout() time.Duration {
	return time.Duration(c.HandoffTimeoutSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

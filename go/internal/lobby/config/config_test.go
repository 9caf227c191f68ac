package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9090\"\ntotal_rounds: 7\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 7, cfg.TotalRounds)
	// Untouched keys keep their defaults.
	assert.Equal(t, 80, cfg.DrawDurationSeconds)
	assert.Equal(t, "lobby.events", cfg.NATSSubjectPrefix)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnvTakesPrecedence(t *testing.T) {
	t.Setenv("RELAY_PORT", "7000")
	t.Setenv("RELAY_TOTAL_ROUNDS", "9")
	t.Setenv("RELAY_HANDOFF_TIMEOUT_SEC", "5")
	t.Setenv("RELAY_DRAW_DURATION_SEC", "not-a-number")

	cfg := Default().ApplyEnv()

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, 9, cfg.TotalRounds)
	assert.Equal(t, 5*time.Second, cfg.HandoffTimeout())
	assert.Equal(t, 80, cfg.DrawDurationSeconds, "unparseable values fall back")
}

package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
port = ":8080"

[database]
dsn = "test.db"
migrations_dir = "./migrations"
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "X-Team-ID", config.API.TeamIDHeader)
	assert.Equal(t, 500*time.Millisecond, config.LeaderboardDebounce())
	assert.Equal(t, 5*time.Second, config.LeaderboardRefresh())
	assert.Equal(t, 60, config.Koth.AccrualSweepSecs)
	assert.Equal(t, 300, config.Reconcile.SweepSeconds)
	assert.Equal(t, 5500*time.Millisecond, config.StalenessBound())
}

func TestLoadConfigRequiresPort(t *testing.T) {
	path := writeConfig(t, `
[database]
dsn = "test.db"
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
port = ":9000"
enable_auth = true

[api]
team_id_header = "X-Squad"

[leaderboard]
debounce_millis = 100
refresh_seconds = 2
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, config.Server.EnableAuth)
	assert.Equal(t, "X-Squad", config.API.TeamIDHeader)
	assert.Equal(t, 2100*time.Millisecond, config.StalenessBound())
}

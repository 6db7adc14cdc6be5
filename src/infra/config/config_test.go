package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sandai/arena/src/infra/config"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ARENA_AUTH_SECRET", "dev-secret")
	t.Setenv("ARENA_ENGINE_SHARDS", "4")
	t.Setenv("ARENA_SCHEDULER_INTERVAL", "750ms")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, "dev-secret", cfg.Auth.Secret)
	assert.Equal(t, "admin", cfg.Auth.AdminRole)
	assert.Equal(t, 4, cfg.Engine.Shards)
	assert.Equal(t, 2*time.Minute, cfg.Engine.MatchmakingTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Engine.VerificationWindow)
	assert.Equal(t, 12*time.Minute, cfg.Engine.DefaultPlayDuration)
	assert.Equal(t, 10*time.Minute, cfg.Engine.PlayDurations["codm"])
	assert.Equal(t, 750*time.Millisecond, cfg.Scheduler.Interval)
	assert.Equal(t, config.StorageMemory, cfg.Storage.Driver)
}

func TestLoad_File(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "arena.yaml", `
auth:
  secret: from-file
engine:
  verification_window: 90s
  play_durations:
    codm: 8m
    fifa: 15m
storage:
  driver: postgres
  database_url: postgres://arena@localhost/arena
balances:
  alice: 500
profiles:
  alice:
    display_name: Alice
    rating: 1450
    ammo: Standard
  bob:
    rating: 1300
    suspended: true
`)
	t.Setenv("ARENA_AUTH_SECRET", "from-env")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.Secret, "env wins over the file")
	assert.Equal(t, 90*time.Second, cfg.Engine.VerificationWindow)
	assert.Equal(t, 8*time.Minute, cfg.Engine.PlayDurations["codm"])
	assert.Equal(t, 15*time.Minute, cfg.Engine.PlayDurations["fifa"])
	assert.Equal(t, config.StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, int64(500), cfg.Balances["alice"])
	require.Len(t, cfg.Profiles, 2)
	assert.Equal(t, config.ProfileConfig{DisplayName: "Alice", Rating: 1450, Ammo: "Standard"}, cfg.Profiles["alice"])
	assert.True(t, cfg.Profiles["bob"].Suspended)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing secret", body: "http:\n  address: :9000\n"},
		{name: "postgres without url", body: "auth:\n  secret: x\nstorage:\n  driver: postgres\n"},
		{name: "unknown driver", body: "auth:\n  secret: x\nstorage:\n  driver: mongo\n"},
		{name: "zero shards", body: "auth:\n  secret: x\nengine:\n  shards: 0\n"},
		{name: "negative profile rating", body: "auth:\n  secret: x\nprofiles:\n  alice:\n    rating: -5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			_, err := config.Load(writeFile(t, "arena.yaml", tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_YAMLRedactsSecrets(t *testing.T) {
	cfg := &config.Config{
		Auth:    config.AuthConfig{Secret: "hunter2", AdminRole: "admin"},
		Storage: config.StorageConfig{Driver: config.StoragePostgres, DatabaseURL: "postgres://u:p@db/arena"},
		Engine:  config.EngineConfig{VerificationWindow: 5 * time.Minute},
	}
	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.NotContains(t, string(out), "u:p@db")

	var back map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, "<redacted>", back["auth"]["secret"])
	assert.Equal(t, "5m0s", back["engine"]["verification_window"])
	assert.Equal(t, "hunter2", cfg.Auth.Secret, "the original is untouched")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("BATCH_SIZE", "")
	t.Setenv("BRIDGE_URL", "")
	t.Setenv("SOURCE_CANDIDATES", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvLocal, cfg.Env)
	assert.Equal(t, "http://localhost:8080", cfg.BridgeURL)
	assert.Equal(t, 490, cfg.BatchSize)
	assert.Equal(t, DefaultCandidates, cfg.SourceCandidates)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "@every 5m", cfg.SyncSchedule)
	assert.Equal(t, "connector.db", filepath.Base(cfg.StateDBPath))
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", EnvProd)
	t.Setenv("SOURCE_DIR", "/data/avimark")
	t.Setenv("SOURCE_CANDIDATES", "/a, /b,,")
	t.Setenv("BRIDGE_URL", "https://bridge.example.com/")
	t.Setenv("BRIDGE_API_KEY", "secret")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("SNAPSHOT_HELPER", "powershell")
	t.Setenv("SNAPSHOT_HELPER_ARGS", "-ExecutionPolicy Bypass -File shadow_copy.ps1")
	t.Setenv("POLL_SCHEDULE", "*/2 * * * *")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/data/avimark", cfg.SourceDir)
	assert.Equal(t, []string{"/a", "/b"}, cfg.SourceCandidates)
	assert.Equal(t, "https://bridge.example.com", cfg.BridgeURL)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, []string{"-ExecutionPolicy", "Bypass", "-File", "shadow_copy.ps1"}, cfg.SnapshotHelperArgs)
	assert.Equal(t, "*/2 * * * *", cfg.PollSchedule)
	assert.True(t, cfg.IsProd())
}

func TestLoad_ConfigFile(t *testing.T) {
	t.Setenv("BATCH_SIZE", "")
	t.Setenv("SHADOW_DIR", "")

	path := filepath.Join(t.TempDir(), "connector.yaml")
	require.NoError(t, os.WriteFile(path, []byte("BATCH_SIZE: 50\nSHADOW_DIR: /var/lib/vetbridge/shadow\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, "/var/lib/vetbridge/shadow", cfg.ShadowDir)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Env:             EnvLocal,
			ShadowDir:       "shadow",
			ImportDir:       "import",
			StateDBPath:     "state.db",
			BridgeURL:       "http://localhost:8080",
			APIKey:          "k",
			BatchSize:       490,
			MaxPerCycle:     1000,
			HTTPTimeout:     time.Second,
			MaxRetries:      3,
			SnapshotTimeout: time.Minute,
			SyncSchedule:    "@every 1m",
			PollSchedule:    "@every 30s",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "batch above ceiling", mutate: func(c *Config) { c.BatchSize = 491 }, wantErr: "BATCH_SIZE"},
		{name: "batch zero", mutate: func(c *Config) { c.BatchSize = 0 }, wantErr: "BATCH_SIZE"},
		{name: "bad url", mutate: func(c *Config) { c.BridgeURL = "localhost:8080" }, wantErr: "BRIDGE_URL"},
		{name: "bad schedule", mutate: func(c *Config) { c.SyncSchedule = "every minute" }, wantErr: "SYNC_SCHEDULE"},
		{name: "empty key", mutate: func(c *Config) { c.APIKey = "" }, wantErr: "BRIDGE_API_KEY"},
		{name: "no retries", mutate: func(c *Config) { c.MaxRetries = 0 }, wantErr: "MAX_RETRIES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

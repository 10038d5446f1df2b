package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("BRIDGE_API_KEY", "")
	t.Setenv("WRITE_CEILING", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvLocal, cfg.Env)
	assert.Equal(t, ":8080", cfg.Server.RunAddress)
	assert.Equal(t, "dev_key", cfg.Bridge.APIKey)
	assert.Equal(t, DefaultWriteCeiling, cfg.Bridge.WriteCeiling)
	assert.Equal(t, 10, cfg.Mailbox.PageSize)
	assert.Equal(t, 5*time.Minute, cfg.Mailbox.FetchTimeout)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("RUN_ADDRESS", ":9090")
	t.Setenv("BRIDGE_API_KEY", "secret")
	t.Setenv("WRITE_CEILING", "100")
	t.Setenv("FETCH_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDev, cfg.Env)
	assert.Equal(t, ":9090", cfg.Server.RunAddress)
	assert.Equal(t, "secret", cfg.Bridge.APIKey)
	assert.Equal(t, 100, cfg.Bridge.WriteCeiling)
	assert.Equal(t, 30*time.Second, cfg.Mailbox.FetchTimeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Env:    EnvProd,
			Server: server{RunAddress: ":8080"},
			Bridge: bridge{APIKey: "secret", WriteCeiling: DefaultWriteCeiling},
			Mailbox: mailbox{
				PageSize:       10,
				FetchTimeout:   time.Minute,
				MaxAttempts:    3,
				ReaperInterval: time.Minute,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "ceiling above store limit", mutate: func(c *Config) { c.Bridge.WriteCeiling = 501 }, wantErr: "WRITE_CEILING"},
		{name: "ceiling zero", mutate: func(c *Config) { c.Bridge.WriteCeiling = 0 }, wantErr: "WRITE_CEILING"},
		{name: "ceiling at store limit", mutate: func(c *Config) { c.Bridge.WriteCeiling = StoreAtomicWriteLimit }},
		{name: "default key in prod", mutate: func(c *Config) { c.Bridge.APIKey = "dev_key" }, wantErr: "must be changed"},
		{name: "unknown env", mutate: func(c *Config) { c.Env = "staging" }, wantErr: "APP_ENV"},
		{name: "empty page size", mutate: func(c *Config) { c.Mailbox.PageSize = 0 }, wantErr: "MAILBOX_PAGE_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

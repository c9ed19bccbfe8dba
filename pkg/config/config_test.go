package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
docker:
  network: testnet-fleet
routing:
  base_domain: services.test
restart:
  initial_backoff: 2s
  max_backoff: 30s
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "testnet-fleet", cfg.Docker.Network)
	assert.Equal(t, "services.test", cfg.Routing.BaseDomain)
	assert.Equal(t, 2*time.Second, cfg.Restart.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Restart.MaxBackoff)
	// Untouched sections keep their defaults.
	assert.Equal(t, "/var/lib/fleet/state", cfg.State.Root)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("FLEET_STATE_ROOT", "/tmp/fleet-state")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
state:
  root: ${FLEET_STATE_ROOT}
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/fleet-state", cfg.State.Root)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Docker.Network = "saved-fleet"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved-fleet", loaded.Docker.Network)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing network", func(c *Config) { c.Docker.Network = "" }},
		{"missing state root", func(c *Config) { c.State.Root = "" }},
		{"missing base domain", func(c *Config) { c.Routing.BaseDomain = "" }},
		{"non-positive backoff", func(c *Config) { c.Restart.InitialBackoff = 0 }},
		{"max below initial", func(c *Config) { c.Restart.MaxBackoff = c.Restart.InitialBackoff / 2 }},
		{"missing report dir", func(c *Config) { c.Reporting.OutputDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ModeDocker, cfg.Container.Mode)
	assert.Equal(t, 4, cfg.Executor.WorkerThreads)
	assert.Equal(t, 100*time.Millisecond, cfg.Consensus.HeartbeatInterval())
	assert.Equal(t, 500*time.Millisecond, cfg.Consensus.ElectionTimeoutMin())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`node:
  id: node-7
  log_level: debug
executor:
  worker_threads: 8
container:
  mode: cvm
  teepod_host: http://127.0.0.1:9200
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node-7", cfg.Node.ID)
	assert.Equal(t, 8, cfg.Executor.WorkerThreads)
	assert.Equal(t, ModeCVM, cfg.Container.Mode)
	// Untouched sections keep their defaults.
	assert.Equal(t, "127.0.0.1:8545", cfg.Gateway.BindAddr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty node id", mutate: func(c *Config) { c.Node.ID = "" }},
		{name: "zero workers", mutate: func(c *Config) { c.Executor.WorkerThreads = 0 }},
		{name: "inverted election bounds", mutate: func(c *Config) { c.Consensus.ElectionTimeoutMinMS = 2000 }},
		{name: "bad container mode", mutate: func(c *Config) { c.Container.Mode = "podman" }},
		{name: "cvm without teepod", mutate: func(c *Config) { c.Container.Mode = ModeCVM }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/micropipe/errors"
)

func TestLoadNode_Defaults(t *testing.T) {
	cfg, err := LoadNode("")
	require.NoError(t, err)

	_, err = uuid.Parse(cfg.NodeID)
	assert.NoError(t, err, "node id defaults to a uuid")
	assert.Equal(t, 10*time.Second, cfg.StatsInterval)
	assert.Equal(t, 16, cfg.SourceWorkers)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "micropipe.stats", cfg.NATS.StatsSubject)
}

func TestLoader_LayersAndEnv(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	override := filepath.Join(dir, "override.json")

	require.NoError(t, os.WriteFile(base, []byte(`
nodeId: node-a
statsInterval: 2s
metrics:
  enabled: true
  port: 9100
  path: /metrics
nats:
  url: nats://localhost:4222
`), 0o600))
	require.NoError(t, os.WriteFile(override, []byte(`{"statsInterval": "500ms", "sourceWorkers": 4}`), 0o600))

	t.Setenv("MICROPIPE_METRICS_PORT", "9200")
	t.Setenv("MICROPIPE_NODE_ID", "node-b")

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "node-b", cfg.NodeID)
	assert.Equal(t, 500*time.Millisecond, cfg.StatsInterval)
	assert.Equal(t, 4, cfg.SourceWorkers)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9200, cfg.Metrics.Port)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout, "untouched default")
}

func TestNodeConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NodeConfig)
	}{
		{"bad node id", func(c *NodeConfig) { c.NodeID = "node 1" }},
		{"zero stats interval", func(c *NodeConfig) { c.StatsInterval = 0 }},
		{"no workers", func(c *NodeConfig) { c.SourceWorkers = 0 }},
		{"bad port", func(c *NodeConfig) { c.Metrics.Enabled = true; c.Metrics.Port = 70000 }},
		{"bad path", func(c *NodeConfig) { c.Metrics.Enabled = true; c.Metrics.Path = "metrics" }},
		{"bad nats url", func(c *NodeConfig) { c.NATS.URL = "not a url" }},
		{"nats user without password", func(c *NodeConfig) {
			c.NATS.URL = "nats://localhost:4222"
			c.NATS.Username = "micropipe"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultNodeConfig()
			cfg.NodeID = "node-1"
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.True(t, errors.IsInvalid(err))
		})
	}

	cfg := DefaultNodeConfig()
	cfg.NodeID = "node-1"
	cfg.NATS.URL = "nats://a:4222,nats://b:4222"
	assert.NoError(t, cfg.Validate())
}

func TestLoader_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("statsInterval: [1"), 0o600))

	_, err := LoadNode(path)
	assert.ErrorIs(t, err, errors.ErrParsingFailed)

	_, err = LoadNode(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

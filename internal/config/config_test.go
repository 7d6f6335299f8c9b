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

	assert.Equal(t, int32(65535), cfg.Capture.SnapLen)
	assert.Equal(t, 4096, cfg.Capture.QueueSize)
	assert.Equal(t, "netlens.frames.raw", cfg.Probe.Subject)
	assert.Equal(t, 90*time.Second, cfg.Analysis.Tracker.IdleTimeout.D())
	assert.Equal(t, 10, cfg.Analysis.Stats.TopK)
	assert.NotEmpty(t, cfg.Analysis.Stats.Tiers)
	assert.NotEmpty(t, cfg.Analysis.LocalRanges)
	assert.Equal(t, "127.0.0.1:8472", cfg.API.ListenAddr)

	nets, err := cfg.Analysis.LocalNetworks()
	require.NoError(t, err)
	assert.NotEmpty(t, nets)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigOverridesAndFallbacks(t *testing.T) {
	path := writeConfig(t, `
capture:
  interface: eth1
  promiscuous: true
  queue_size: 128
analysis:
  history_size: 64
  tracker:
    idle_timeout: 30s
  stats:
    tiers:
      - name: fast
        interval: 500ms
        capacity: 10
api:
  listen_addr: "0.0.0.0:9000"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "eth1", cfg.Capture.Interface)
	assert.True(t, cfg.Capture.Promiscuous)
	assert.Equal(t, 128, cfg.Capture.QueueSize)
	assert.Equal(t, 64, cfg.Analysis.HistorySize)
	assert.Equal(t, 30*time.Second, cfg.Analysis.Tracker.IdleTimeout.D())
	// Unset durations fall back.
	assert.Equal(t, 5*time.Second, cfg.Analysis.Tracker.ClosingGrace.D())
	require.Len(t, cfg.Analysis.Stats.Tiers, 1)
	assert.Equal(t, 500*time.Millisecond, cfg.Analysis.Stats.Tiers[0].Interval.D())
	assert.Equal(t, "0.0.0.0:9000", cfg.API.ListenAddr)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := writeConfig(t, `
analysis:
  tracker:
    idle_timeout: ninety seconds
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	broken := []func(*Config){
		func(c *Config) { c.Capture.QueueSize = 0 },
		func(c *Config) { c.Analysis.HistorySize = -1 },
		func(c *Config) { c.Analysis.Stats.Tiers[0].Capacity = 0 },
		func(c *Config) { c.Analysis.Stats.TopK = 0 },
		func(c *Config) { c.Analysis.Tracker.IdleTimeout = 0 },
		func(c *Config) { c.Analysis.Topology.Damping = 1.5 },
		func(c *Config) { c.Analysis.LocalRanges = []string{"not-a-cidr"} },
	}
	for i, mutate := range broken {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
}

func TestDurationRoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)
	out, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", out)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 0.15, cfg.Proctoring.SampleRate)
	assert.Equal(t, 5, cfg.Proctoring.MinObserved)
	assert.Equal(t, 60, cfg.Proctoring.MaxObserved)
	assert.Equal(t, 5*time.Minute, cfg.Proctoring.RotationInterval)
	assert.Equal(t, 2, cfg.Proctoring.FrameRate)
	assert.Equal(t, 30*time.Second, cfg.Reaper.CheckInterval)
	assert.Equal(t, 60*time.Second, cfg.Reaper.StaleThreshold)
	assert.Equal(t, 10*time.Second, cfg.Reaper.GracePeriod)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Proctoring, cfg.Proctoring)
}

func TestLoad_MissingNamedFileIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
http:
  port: 9090
proctoring:
  sample_rate: 0.25
  max_observed: 30
reaper:
  stale_threshold: 120s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 0.25, cfg.Proctoring.SampleRate)
	assert.Equal(t, 30, cfg.Proctoring.MaxObserved)
	assert.Equal(t, 2*time.Minute, cfg.Reaper.StaleThreshold)

	// Untouched keys keep defaults
	assert.Equal(t, 5, cfg.Proctoring.MinObserved)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("PROCTORHUB_HTTP_PORT", "7070")
	t.Setenv("PROCTORHUB_PROCTORING_FRAME_RATE", "4")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, 4, cfg.Proctoring.FrameRate)
}

func TestLoad_InvalidFileValuesRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
proctoring:
  sample_rate: 1.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero port", func(c *Config) { c.HTTP.Port = 0 }},
		{"port above range", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero sample rate", func(c *Config) { c.Proctoring.SampleRate = 0 }},
		{"sample rate above one", func(c *Config) { c.Proctoring.SampleRate = 1.01 }},
		{"max below min observed", func(c *Config) { c.Proctoring.MaxObserved = 2; c.Proctoring.MinObserved = 5 }},
		{"zero rotation interval", func(c *Config) { c.Proctoring.RotationInterval = 0 }},
		{"zero frame rate", func(c *Config) { c.Proctoring.FrameRate = 0 }},
		{"zero reaper grace", func(c *Config) { c.Reaper.GracePeriod = 0 }},
		{"zero send buffer", func(c *Config) { c.WebSocket.SendBuffer = 0 }},
		{"metrics enabled without path", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("full sample rate accepted", func(t *testing.T) {
		cfg := Default()
		cfg.Proctoring.SampleRate = 1.0
		assert.NoError(t, cfg.Validate())
	})
}

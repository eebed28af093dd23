package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "fitconnect.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoader_Load(t *testing.T) {
	logger := zap.NewNop()

	t.Run("loads yaml and applies defaults", func(t *testing.T) {
		path := writeConfigFile(t, `
box: physicsperformance
username: jane.doe@example.com
password: hunter2
`)
		cfg, err := NewLoader(path, logger).Load()
		require.NoError(t, err)

		assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
		assert.Equal(t, "physicsperformance", cfg.Box)
		assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
		assert.Equal(t, DefaultRefreshInterval, cfg.RefreshInterval)
	})

	t.Run("refresh interval accepts a duration string", func(t *testing.T) {
		path := writeConfigFile(t, `
box: physicsperformance
username: jane.doe@example.com
password: hunter2
refresh_interval: 15m
`)
		cfg, err := NewLoader(path, logger).Load()
		require.NoError(t, err)
		assert.Equal(t, 15*time.Minute, cfg.RefreshInterval)
	})

	t.Run("invalid refresh interval fails to parse", func(t *testing.T) {
		path := writeConfigFile(t, `
box: physicsperformance
username: jane.doe@example.com
password: hunter2
refresh_interval: soonish
`)
		_, err := NewLoader(path, logger).Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "refresh_interval")
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		path := writeConfigFile(t, `
base_url: https://fitblocks.nl
box: physicsperformance
username: jane.doe@example.com
password: hunter2
`)
		t.Setenv("FITCONNECT_BOX", "othergym")
		t.Setenv("FITCONNECT_REFRESH_INTERVAL", "10m")

		cfg, err := NewLoader(path, logger).Load()
		require.NoError(t, err)
		assert.Equal(t, "othergym", cfg.Box)
		assert.Equal(t, 10*time.Minute, cfg.RefreshInterval)
	})

	t.Run("missing file falls back to environment", func(t *testing.T) {
		t.Setenv("FITCONNECT_BOX", "physicsperformance")
		t.Setenv("FITCONNECT_USERNAME", "jane.doe@example.com")
		t.Setenv("FITCONNECT_PASSWORD", "hunter2")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"), logger).Load()
		require.NoError(t, err)
		assert.Equal(t, "physicsperformance", cfg.Box)
	})

	t.Run("missing credentials fail validation", func(t *testing.T) {
		path := writeConfigFile(t, `
box: physicsperformance
username: jane.doe@example.com
`)
		_, err := NewLoader(path, logger).Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "password")
	})

	t.Run("slashes are trimmed", func(t *testing.T) {
		path := writeConfigFile(t, `
base_url: https://fitblocks.nl/
box: /physicsperformance/
username: jane.doe@example.com
password: hunter2
`)
		cfg, err := NewLoader(path, logger).Load()
		require.NoError(t, err)
		assert.Equal(t, "https://fitblocks.nl", cfg.BaseURL)
		assert.Equal(t, "physicsperformance", cfg.Box)
	})
}

func TestConfig_DeriveDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected string
	}{
		{"explicit override wins", Config{Username: "x@y", DisplayName: "Jane Doe"}, "Jane Doe"},
		{"derived from email local part", Config{Username: "jane.doe@example.com"}, "Jane Doe"},
		{"underscores also split words", Config{Username: "jane_doe@example.com"}, "Jane Doe"},
		{"no at sign", Config{Username: "jane"}, "Jane"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.DeriveDisplayName())
		})
	}
}

func TestConfig_Location(t *testing.T) {
	logger := zap.NewNop()

	t.Run("empty means local", func(t *testing.T) {
		cfg := Config{}
		assert.Equal(t, time.Local, cfg.Location(logger))
	})

	t.Run("invalid falls back to local", func(t *testing.T) {
		cfg := Config{Timezone: "Not/AZone"}
		assert.Equal(t, time.Local, cfg.Location(logger))
	})
}

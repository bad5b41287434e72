// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oakgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9876", cfg.Device.Addr)
	assert.Equal(t, 300, cfg.Pipeline.PreviewWidth)
	assert.InDelta(t, 30.0, cfg.Pipeline.FPS, 0.001)
	assert.Equal(t, "timestamp", cfg.Sync.Mode)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.True(t, cfg.Metrics.Enabled)

	// DataDir is resolved to an absolute path and recordings default under it.
	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.Equal(t, filepath.Join(cfg.DataDir, "recordings"), cfg.Recordings.Dir)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
logLevel: debug
device:
  addr: "10.0.0.5:9876"
  watchdogMisses: 5
pipeline:
  fps: 15
  nnConfidence: 0.7
sync:
  mode: sequence
`)

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "10.0.0.5:9876", cfg.Device.Addr)
	assert.Equal(t, 5, cfg.Device.WatchdogMisses)
	assert.InDelta(t, 15.0, cfg.Pipeline.FPS, 0.001)
	assert.InDelta(t, 0.7, cfg.Pipeline.NNConfidence, 0.001)
	assert.Equal(t, "sequence", cfg.Sync.Mode)

	// Untouched fields keep defaults.
	assert.Equal(t, 300, cfg.Pipeline.PreviewHeight)
	assert.Equal(t, ":8080", cfg.API.Listen)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
logLevel: debug
device:
  addr: "10.0.0.5:9876"
`)

	t.Setenv("OAKGATE_LOG_LEVEL", "warn")
	t.Setenv("OAKGATE_DEVICE_ADDR", "10.0.0.9:9876")
	t.Setenv("OAKGATE_PIPELINE_FPS", "10")
	t.Setenv("OAKGATE_DEVICE_ALLOWED_HOSTS", "10.0.0.9, 10.0.0.10")

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "10.0.0.9:9876", cfg.Device.Addr)
	assert.InDelta(t, 10.0, cfg.Pipeline.FPS, 0.001)
	assert.Equal(t, []string{"10.0.0.9", "10.0.0.10"}, cfg.Device.AllowedHosts)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, `
logLevel: debug
bogusKey: true
`)

	_, err := NewLoader(path, "test").Load()
	require.Error(t, err)
}

func TestLoadRejectsTrailingDocuments(t *testing.T) {
	path := writeConfigFile(t, `
logLevel: debug
---
logLevel: info
`)

	_, err := NewLoader(path, "test").Load()
	require.Error(t, err)
}

func TestLoadRejectsBadExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oakgate.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))

	_, err := NewLoader(path, "test").Load()
	require.Error(t, err)
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	path := writeConfigFile(t, "")

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestValidateRejections(t *testing.T) {
	base := func() AppConfig {
		cfg, err := NewLoader("", "test").Load()
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"empty device addr", func(c *AppConfig) { c.Device.Addr = "" }},
		{"bad log level", func(c *AppConfig) { c.LogLevel = "loud" }},
		{"zero fps", func(c *AppConfig) { c.Pipeline.FPS = 0 }},
		{"fps too high", func(c *AppConfig) { c.Pipeline.FPS = 500 }},
		{"confidence out of range", func(c *AppConfig) { c.Pipeline.NNConfidence = 1.5 }},
		{"bad median", func(c *AppConfig) { c.Pipeline.DepthMedian = 4 }},
		{"inverted depth range", func(c *AppConfig) { c.Pipeline.DepthMinMM = 5000; c.Pipeline.DepthMaxMM = 100 }},
		{"bad sync mode", func(c *AppConfig) { c.Sync.Mode = "latest" }},
		{"zero sync threshold", func(c *AppConfig) { c.Sync.Threshold = 0 }},
		{"bad cache backend", func(c *AppConfig) { c.Cache.Backend = "disk" }},
		{"redis without addr", func(c *AppConfig) { c.Cache.Backend = "redis"; c.Cache.RedisAddr = "" }},
		{"tiny segment size", func(c *AppConfig) { c.Recordings.SegmentBytes = 1024 }},
		{"bad telemetry protocol", func(c *AppConfig) { c.Telemetry.Endpoint = "otel:4317"; c.Telemetry.Protocol = "udp" }},
		{"inverted reconnect backoff", func(c *AppConfig) { c.Device.ReconnectMin = time.Minute; c.Device.ReconnectMax = time.Second }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestHolderReloadSwapsAtomically(t *testing.T) {
	path := writeConfigFile(t, "logLevel: debug\n")
	loader := NewLoader(path, "test")

	initial, err := loader.Load()
	require.NoError(t, err)

	holder := NewHolder(initial, loader, path)
	assert.Equal(t, "debug", holder.Get().LogLevel)

	require.NoError(t, os.WriteFile(path, []byte("logLevel: warn\n"), 0o600))
	require.NoError(t, holder.Reload(context.Background()))
	assert.Equal(t, "warn", holder.Get().LogLevel)
}

func TestHolderReloadKeepsOldConfigOnError(t *testing.T) {
	path := writeConfigFile(t, "logLevel: debug\n")
	loader := NewLoader(path, "test")

	initial, err := loader.Load()
	require.NoError(t, err)
	holder := NewHolder(initial, loader, path)

	require.NoError(t, os.WriteFile(path, []byte("logLevel: bogus\n"), 0o600))
	require.Error(t, holder.Reload(context.Background()))
	assert.Equal(t, "debug", holder.Get().LogLevel)
}

func TestHolderNotifiesListeners(t *testing.T) {
	path := writeConfigFile(t, "logLevel: debug\n")
	loader := NewLoader(path, "test")

	initial, err := loader.Load()
	require.NoError(t, err)
	holder := NewHolder(initial, loader, path)

	ch := make(chan AppConfig, 1)
	holder.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("logLevel: warn\n"), 0o600))
	require.NoError(t, holder.Reload(context.Background()))

	select {
	case got := <-ch:
		assert.Equal(t, "warn", got.LogLevel)
	case <-time.After(time.Second):
		t.Fatal("listener was not notified")
	}
}

func TestHolderWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfigFile(t, "logLevel: debug\n")
	loader := NewLoader(path, "test")

	initial, err := loader.Load()
	require.NoError(t, err)
	holder := NewHolder(initial, loader, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, holder.StartWatcher(ctx))
	defer holder.Stop()

	require.NoError(t, os.WriteFile(path, []byte("logLevel: error\n"), 0o600))

	require.Eventually(t, func() bool {
		return holder.Get().LogLevel == "error"
	}, 3*time.Second, 50*time.Millisecond)
}

func TestParseHelpers(t *testing.T) {
	t.Setenv("OAKGATE_TEST_INT", "42")
	t.Setenv("OAKGATE_TEST_BAD_INT", "nope")
	t.Setenv("OAKGATE_TEST_BOOL", "true")
	t.Setenv("OAKGATE_TEST_DUR", "1m30s")
	t.Setenv("OAKGATE_TEST_FLOAT", "0.25")
	t.Setenv("OAKGATE_TEST_LIST", "a, b ,c")

	assert.Equal(t, 42, ParseInt("OAKGATE_TEST_INT", 1))
	assert.Equal(t, 1, ParseInt("OAKGATE_TEST_BAD_INT", 1))
	assert.Equal(t, 7, ParseInt("OAKGATE_TEST_MISSING", 7))
	assert.True(t, ParseBool("OAKGATE_TEST_BOOL", false))
	assert.Equal(t, 90*time.Second, ParseDuration("OAKGATE_TEST_DUR", time.Second))
	assert.InDelta(t, 0.25, ParseFloat("OAKGATE_TEST_FLOAT", 1.0), 0.001)
	assert.Equal(t, []string{"a", "b", "c"}, ParseStringList("OAKGATE_TEST_LIST", nil))
}

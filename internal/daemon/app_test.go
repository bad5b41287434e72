// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakgate/oakgate/internal/cache"
	"github.com/oakgate/oakgate/internal/config"
	"github.com/oakgate/oakgate/internal/pump"
	"github.com/oakgate/oakgate/internal/store"
)

func testAppConfig() config.AppConfig {
	cfg := config.AppConfig{}
	cfg.Pipeline.PreviewWidth = 300
	cfg.Pipeline.PreviewHeight = 300
	cfg.Pipeline.FPS = 30
	cfg.Pipeline.MonoResolution = "400p"
	return cfg
}

func newTestApp(t *testing.T, cfg config.AppConfig) (*App, *Manager) {
	t.Helper()

	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	m, err := NewManager(ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		ShutdownTimeout: 5 * time.Second,
	}, okHandler(), nil)
	require.NoError(t, err)

	app, err := NewApp(AppOptions{
		Holder: config.NewHolder(cfg, nil, ""),
		Pump:   pump.New(pump.Options{}, cache.NewMemoryCache(16, 0)),
		Store:  st,
	})
	require.NoError(t, err)
	return app, m
}

func TestNewAppRequiresPump(t *testing.T) {
	_, err := NewApp(AppOptions{})
	assert.Error(t, err)
}

func TestConnectBeforeRunRejected(t *testing.T) {
	app, _ := newTestApp(t, testAppConfig())
	err := app.Connect(context.Background())
	assert.Error(t, err)
}

func TestAppConnectDisconnectLifecycle(t *testing.T) {
	// No device address is configured, so Run does not auto-connect and
	// the supervisor retries an unreachable endpoint in the background.
	app, m := newTestApp(t, testAppConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, m) }()

	require.Eventually(t, func() bool {
		return app.Connect(context.Background()) == nil
	}, 2*time.Second, 20*time.Millisecond)

	assert.ErrorIs(t, app.Connect(context.Background()), ErrAlreadyConnected)

	dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dcancel()
	require.NoError(t, app.Disconnect(dctx))
	assert.ErrorIs(t, app.Disconnect(dctx), ErrNotConnected)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestBuildPipelineStreams(t *testing.T) {
	cfg := testAppConfig()
	cfg.Pipeline.DepthEnabled = true
	cfg.Pipeline.NNBlob = "/models/mobilenet-ssd.blob"
	cfg.Pipeline.NNConfidence = 0.5
	cfg.Pipeline.NNThreads = 2

	p, err := BuildPipeline(cfg)
	require.NoError(t, err)

	var names []string
	for _, s := range p.Streams() {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t,
		[]string{StreamRGB, StreamLeft, StreamRight, StreamDepth, StreamNN, StreamNNRaw},
		names)
}

func TestBuildPipelineMinimal(t *testing.T) {
	p, err := BuildPipeline(testAppConfig())
	require.NoError(t, err)

	var names []string
	for _, s := range p.Streams() {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{StreamRGB, StreamLeft, StreamRight}, names)
}

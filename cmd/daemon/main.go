// SPDX-License-Identifier: MIT

// Command daemon runs the oakgate host daemon: device session supervision,
// stream processing, recording, and the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oakgate/oakgate/internal/api"
	"github.com/oakgate/oakgate/internal/config"
	"github.com/oakgate/oakgate/internal/daemon"
	"github.com/oakgate/oakgate/internal/health"
	oaklog "github.com/oakgate/oakgate/internal/log"
	"github.com/oakgate/oakgate/internal/telemetry"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the full configuration is loaded.
	oaklog.Configure(oaklog.Config{Level: "info", Service: "oakgate", Version: version})
	logger := oaklog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit flag, otherwise ${OAKGATE_DATA}/config.yaml
	// when it exists.
	effectivePath := strings.TrimSpace(*configPath)
	if effectivePath == "" {
		dataDir := strings.TrimSpace(config.ParseString("OAKGATE_DATA", ""))
		if dataDir != "" {
			autoPath := filepath.Join(dataDir, "config.yaml")
			if _, err := os.Stat(autoPath); err == nil {
				effectivePath = autoPath
			}
		}
	}

	loader := config.NewLoader(effectivePath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectivePath).
			Msg("failed to load configuration")
	}

	oaklog.Configure(oaklog.Config{Level: cfg.LogLevel, Service: "oakgate", Version: version})
	logger = oaklog.WithComponent("main")
	logger.Info().
		Str("event", "daemon.booting").
		Str("version", version).
		Str("config_path", effectivePath).
		Msg("oakgate starting")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.checks_failed").
			Msg("startup checks failed")
	}

	tracer, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceName:    "oakgate",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Protocol:       cfg.Telemetry.Protocol,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Insecure:       cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "telemetry.init_failed").
			Msg("failed to initialize tracing")
	}

	holder := config.NewHolder(cfg, config.NewLoader(effectivePath, version), effectivePath)

	if err := run(ctx, holder, tracer, effectivePath); err != nil {
		logger.Error().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Str("event", "daemon.exited").Msg("oakgate stopped")
}

// run wires the components and blocks until shutdown. Separated from main
// so deferred cleanup runs before os.Exit.
func run(ctx context.Context, holder *config.Holder, tracer *telemetry.Provider, configPath string) error {
	cfg := holder.Get()
	logger := oaklog.WithComponent("main")

	w, err := buildWiring(cfg)
	if err != nil {
		return err
	}

	app, err := daemon.NewApp(daemon.AppOptions{
		Holder:     holder,
		Pump:       w.pump,
		Store:      w.store,
		Recorder:   w.recorder,
		Sweeper:    w.sweeper,
		CalibStore: w.calibStore,
	})
	if err != nil {
		return err
	}

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewDirChecker("data_dir", cfg.DataDir))
	hm.RegisterChecker(health.NewStoreChecker(func(ctx context.Context) error {
		_, err := w.store.ListSessions(ctx)
		return err
	}))
	hm.RegisterChecker(health.NewDeviceChecker(func() (string, error) {
		return app.State(), app.LastError()
	}))
	if cfg.Pipeline.NNBlob != "" {
		hm.RegisterChecker(health.NewFileChecker("nn_blob", cfg.Pipeline.NNBlob))
	}

	apiServer := api.NewServer(api.Options{
		Version:       version,
		Holder:        holder,
		Device:        app,
		Pump:          w.pump,
		Store:         w.store,
		Cache:         w.cache,
		CalibStore:    w.calibStore,
		Recorder:      w.recorder,
		Catalog:       w.catalog,
		Health:        hm,
		BuildPipeline: daemon.BuildPipeline,
	})

	metricsAddr := ""
	if cfg.Metrics.Enabled {
		metricsAddr = cfg.Metrics.Listen
	}
	manager, err := daemon.NewManager(daemon.ServerConfig{
		ListenAddr:  cfg.API.Listen,
		MetricsAddr: metricsAddr,
	}, apiServer.Routes(), promhttp.Handler())
	if err != nil {
		return err
	}

	manager.RegisterShutdownHook("recorder", func(ctx context.Context) error {
		if w.recorder.Active() == nil {
			return nil
		}
		_, err := w.recorder.Stop(ctx)
		return err
	})
	manager.RegisterShutdownHook("catalog", func(context.Context) error { return w.catalog.Close() })
	manager.RegisterShutdownHook("store", func(context.Context) error { return w.store.Close() })
	manager.RegisterShutdownHook("telemetry", tracer.Shutdown)

	logger.Info().
		Str("event", "daemon.wired").
		Str("listen", cfg.API.Listen).
		Str("metrics_listen", metricsAddr).
		Str("device_addr", cfg.Device.Addr).
		Str("config_path", configPath).
		Msg("components wired, starting")

	return app.Run(ctx, manager)
}

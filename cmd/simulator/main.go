// SPDX-License-Identifier: MIT

// Command simulator runs a virtual OAK device for local development and
// integration testing. It speaks the same link protocol as a real device:
// point the daemon's device address at it. With --replay it serves a
// recorded session instead of synthetic streams.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oakgate/oakgate/internal/device/sim"
	oaklog "github.com/oakgate/oakgate/internal/log"
	"github.com/oakgate/oakgate/internal/record"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	listen := flag.String("listen", "127.0.0.1:9920", "listen address")
	mxid := flag.String("mxid", "", "device MxID to present (default: fixed simulator ID)")
	name := flag.String("name", "", "device name to present")
	fps := flag.Float64("fps", 30, "synthetic stream frame rate")
	logLevel := flag.String("log-level", "info", "log level")

	replayDir := flag.String("replay", "", "serve a recorded session from this directory instead of synthetic streams")
	replaySpeed := flag.Float64("replay-speed", 1, "replay speed factor (1 = real time)")
	replayFPS := flag.Float64("replay-fps", 0, "replay at a fixed packet rate instead of recorded timing")
	replayLoop := flag.Bool("replay-loop", false, "loop the recording")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	oaklog.Configure(oaklog.Config{Level: *logLevel, Service: "oakgate-sim", Version: version})
	logger := oaklog.WithComponent("main")

	opts := sim.Options{
		MxID: *mxid,
		Name: *name,
		FPS:  *fps,
	}
	if *replayDir != "" {
		dir := *replayDir
		replayOpts := record.ReplayOptions{
			Speed: *replaySpeed,
			FPS:   *replayFPS,
			Loop:  *replayLoop,
		}
		// Probe once up front so a bad path fails at startup, not on the
		// first session.
		probe, err := record.OpenReplay(dir, replayOpts)
		if err != nil {
			logger.Fatal().
				Err(err).
				Str("event", "sim.replay_open_failed").
				Str("dir", dir).
				Msg("cannot open recording")
		}
		_ = probe.Close()

		opts.OpenReplay = func() (sim.Source, error) {
			return record.OpenReplay(dir, replayOpts)
		}
	}

	srv, err := sim.Listen(*listen, opts)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "sim.listen_failed").
			Str("addr", *listen).
			Msg("simulator failed to start")
	}

	logger.Info().
		Str("event", "sim.listening").
		Str("addr", srv.Addr()).
		Msg("simulator listening")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Str("event", "sim.stopping").Msg("simulator stopping")
	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Str("event", "sim.close_failed").Msg("simulator close failed")
	}
}

// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/oakgate/oakgate/internal/config"
	"github.com/oakgate/oakgate/internal/log"
)

// PerformStartupChecks validates the environment before the daemon starts
// serving: directories writable, listen addresses parseable, the NN blob
// readable when configured.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Str("event", "startup.checks_begin").Msg("running pre-flight startup checks")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkListenAddr("api", cfg.API.Listen); err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		if err := checkListenAddr("metrics", cfg.Metrics.Listen); err != nil {
			return err
		}
	}
	if cfg.Pipeline.NNBlob != "" {
		if err := checkFileReadable(cfg.Pipeline.NNBlob); err != nil {
			return fmt.Errorf("nn blob %s: %w", cfg.Pipeline.NNBlob, err)
		}
	}
	if cfg.Recordings.Dir != "" {
		if !filepath.IsAbs(cfg.Recordings.Dir) {
			return fmt.Errorf("recordings dir must be an absolute path: %s", cfg.Recordings.Dir)
		}
		if err := os.MkdirAll(cfg.Recordings.Dir, 0o750); err != nil {
			return fmt.Errorf("failed to ensure recordings dir %s: %w", cfg.Recordings.Dir, err)
		}
	}
	if cfg.Device.Addr == "" {
		logger.Warn().Str("event", "startup.no_device").Msg("no device address configured; API runs without a session")
	}

	logger.Info().Str("event", "startup.checks_passed").Msg("all startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(path, 0o750); mkErr != nil {
				return fmt.Errorf("cannot create data directory %s: %w", path, mkErr)
			}
			info, err = os.Stat(path)
		}
		if err != nil {
			return err
		}
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	probe := filepath.Join(path, ".write_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("data directory not writable: %s: %w", path, err)
	}
	_ = os.Remove(probe)

	logger.Info().Str("event", "startup.data_dir_ok").Str("path", path).Msg("data directory is writable")
	return nil
}

func checkListenAddr(name, addr string) error {
	if addr == "" {
		return fmt.Errorf("%s listen address is empty", name)
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid %s listen address %q: %w", name, addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid %s listen port %q in %q", name, port, addr)
	}
	return nil
}

func checkFileReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return err
	}
	return f.Close()
}

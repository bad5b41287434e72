// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/oakgate/oakgate/internal/cache"
	"github.com/oakgate/oakgate/internal/calib"
	"github.com/oakgate/oakgate/internal/config"
	"github.com/oakgate/oakgate/internal/daemon"
	"github.com/oakgate/oakgate/internal/framesync"
	oaklog "github.com/oakgate/oakgate/internal/log"
	"github.com/oakgate/oakgate/internal/pump"
	"github.com/oakgate/oakgate/internal/record"
	"github.com/oakgate/oakgate/internal/store"
)

// wiring bundles the storage and processing components the daemon runs on.
type wiring struct {
	store      *store.Store
	cache      cache.Cache
	calibStore *calib.Store
	catalog    *record.Catalog
	recorder   *record.Recorder
	sweeper    *record.Sweeper
	pump       *pump.Pump
}

func buildWiring(cfg config.AppConfig) (*wiring, error) {
	st, err := store.Open(filepath.Join(cfg.DataDir, "store"))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	c, err := buildCache(cfg)
	if err != nil {
		return nil, err
	}

	calibStore, err := calib.NewStore(filepath.Join(cfg.DataDir, "calibration"))
	if err != nil {
		return nil, fmt.Errorf("open calibration store: %w", err)
	}

	catalog, err := record.OpenCatalog(filepath.Join(cfg.Recordings.Dir, "catalog.db"))
	if err != nil {
		return nil, fmt.Errorf("open recording catalog: %w", err)
	}

	recorder, err := record.NewRecorder(cfg.Recordings.Dir, catalog, record.WriterOptions{
		MaxSegmentBytes: cfg.Recordings.SegmentBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("create recorder: %w", err)
	}

	var sweeper *record.Sweeper
	if cfg.Recordings.MaxAge > 0 || cfg.Recordings.MaxBytes > 0 {
		sweeper = record.NewSweeper(catalog, cfg.Recordings.MaxAge, cfg.Recordings.MaxBytes, cfg.Recordings.SweepInterval)
	}

	p := pump.New(pumpOptions(cfg), c)

	return &wiring{
		store:      st,
		cache:      c,
		calibStore: calibStore,
		catalog:    catalog,
		recorder:   recorder,
		sweeper:    sweeper,
		pump:       p,
	}, nil
}

func buildCache(cfg config.AppConfig) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}, oaklog.WithComponent("cache"))
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		return rc, nil
	case "none":
		return cache.NewNoOpCache(), nil
	default:
		maxEntries := cfg.Cache.MaxEntries
		if maxEntries <= 0 {
			maxEntries = 256
		}
		return cache.NewMemoryCache(maxEntries, time.Minute), nil
	}
}

func pumpOptions(cfg config.AppConfig) pump.Options {
	opts := pump.Options{
		DepthMedianKernel: cfg.Pipeline.DepthMedian,
		DepthMinMM:        clampMM(cfg.Pipeline.DepthMinMM),
		DepthMaxMM:        clampMM(cfg.Pipeline.DepthMaxMM),
		TemporalAlpha:     cfg.Pipeline.DepthTemporalAlpha,
		TemporalFrames:    cfg.Pipeline.DepthTemporalFrames,
		SpatialEnabled:    cfg.Pipeline.SpatialEnabled,
		NNConfidence:      cfg.Pipeline.NNConfidence,
		SyncThreshold:     cfg.Sync.Threshold,
		SyncBuffer:        cfg.Sync.Buffer,
		MJPEGMaxClients:   cfg.API.MJPEGMaxClients,
	}

	// Spatial enrichment needs detections and depth from the same moment,
	// so those two streams go through the synchronizer.
	if cfg.Pipeline.DepthEnabled && cfg.Pipeline.NNBlob != "" {
		opts.SyncStreams = []string{daemon.StreamDepth, daemon.StreamNN}
	}
	switch cfg.Sync.Mode {
	case "timestamp":
		opts.SyncMode = framesync.ModeTimestamp
	default:
		opts.SyncMode = framesync.ModeSequence
	}
	return opts
}

func clampMM(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > 0xffff {
		return 0xffff
	}
	return uint16(v)
}

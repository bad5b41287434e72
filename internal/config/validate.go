// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"slices"
)

var (
	validMedians   = []int{0, 3, 5, 7}
	validSyncModes = []string{"sequence", "timestamp"}
	validBackends  = []string{"memory", "redis", "none"}
	validProtocols = []string{"grpc", "http"}
	validMonoModes = []string{"400p", "480p", "720p"}
	validLogLevels = []string{"trace", "debug", "info", "warn", "error"}
)

// Validate rejects configurations the daemon could not run with.
func Validate(cfg AppConfig) error {
	if !slices.Contains(validLogLevels, cfg.LogLevel) {
		return fmt.Errorf("logLevel %q: must be one of %v", cfg.LogLevel, validLogLevels)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("dataDir must not be empty")
	}

	if cfg.Device.Addr == "" {
		return fmt.Errorf("device.addr must not be empty")
	}
	if cfg.Device.ReconnectMin <= 0 || cfg.Device.ReconnectMax < cfg.Device.ReconnectMin {
		return fmt.Errorf("device reconnect backoff: min %v, max %v invalid", cfg.Device.ReconnectMin, cfg.Device.ReconnectMax)
	}
	if cfg.Device.WatchdogInterval <= 0 {
		return fmt.Errorf("device.watchdogInterval must be positive")
	}
	if cfg.Device.WatchdogMisses < 1 {
		return fmt.Errorf("device.watchdogMisses must be at least 1")
	}
	if cfg.Device.LeaseTTL <= 0 {
		return fmt.Errorf("device.leaseTtl must be positive")
	}

	p := cfg.Pipeline
	if p.PreviewWidth <= 0 || p.PreviewHeight <= 0 {
		return fmt.Errorf("pipeline preview %dx%d: dimensions must be positive", p.PreviewWidth, p.PreviewHeight)
	}
	if p.FPS <= 0 || p.FPS > 120 {
		return fmt.Errorf("pipeline.fps %v: must be in (0, 120]", p.FPS)
	}
	if !slices.Contains(validMonoModes, p.MonoResolution) {
		return fmt.Errorf("pipeline.monoResolution %q: must be one of %v", p.MonoResolution, validMonoModes)
	}
	if p.NNConfidence < 0 || p.NNConfidence > 1 {
		return fmt.Errorf("pipeline.nnConfidence %v: must be in [0, 1]", p.NNConfidence)
	}
	if p.NNThreads < 1 || p.NNThreads > 2 {
		return fmt.Errorf("pipeline.nnThreads %d: must be 1 or 2", p.NNThreads)
	}
	if !slices.Contains(validMedians, p.DepthMedian) {
		return fmt.Errorf("pipeline.depthMedian %d: must be one of %v", p.DepthMedian, validMedians)
	}
	if p.DepthMinMM < 0 || p.DepthMaxMM <= p.DepthMinMM {
		return fmt.Errorf("pipeline depth range [%d, %d]mm invalid", p.DepthMinMM, p.DepthMaxMM)
	}
	if p.DepthTemporalAlpha < 0 || p.DepthTemporalAlpha > 1 {
		return fmt.Errorf("pipeline.depthTemporalAlpha %v: must be in [0, 1]", p.DepthTemporalAlpha)
	}

	if cfg.Queues.Size < 1 {
		return fmt.Errorf("queues.size must be at least 1")
	}

	if !slices.Contains(validSyncModes, cfg.Sync.Mode) {
		return fmt.Errorf("sync.mode %q: must be one of %v", cfg.Sync.Mode, validSyncModes)
	}
	if cfg.Sync.Mode == "timestamp" && cfg.Sync.Threshold <= 0 {
		return fmt.Errorf("sync.threshold must be positive in timestamp mode")
	}
	if cfg.Sync.Buffer < 1 {
		return fmt.Errorf("sync.buffer must be at least 1")
	}

	if cfg.API.Listen == "" {
		return fmt.Errorf("api.listen must not be empty")
	}
	if cfg.API.RateLimit < 0 {
		return fmt.Errorf("api.rateLimit must not be negative")
	}
	if cfg.API.MJPEGMaxClients < 1 {
		return fmt.Errorf("api.mjpegMaxClients must be at least 1")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen must not be empty when metrics are enabled")
	}

	if cfg.Recordings.SegmentBytes < 1<<20 {
		return fmt.Errorf("recordings.segmentBytes %d: must be at least 1 MiB", cfg.Recordings.SegmentBytes)
	}
	if cfg.Recordings.MaxBytes < 0 {
		return fmt.Errorf("recordings.maxBytes must not be negative")
	}

	if !slices.Contains(validBackends, cfg.Cache.Backend) {
		return fmt.Errorf("cache.backend %q: must be one of %v", cfg.Cache.Backend, validBackends)
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.redisAddr must not be empty for the redis backend")
	}
	if cfg.Cache.Backend == "memory" && cfg.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache.maxEntries must be at least 1 for the memory backend")
	}

	t := cfg.Telemetry
	if t.Endpoint != "" {
		if !slices.Contains(validProtocols, t.Protocol) {
			return fmt.Errorf("telemetry.protocol %q: must be one of %v", t.Protocol, validProtocols)
		}
		if t.SampleRatio < 0 || t.SampleRatio > 1 {
			return fmt.Errorf("telemetry.sampleRatio %v: must be in [0, 1]", t.SampleRatio)
		}
	}

	return nil
}

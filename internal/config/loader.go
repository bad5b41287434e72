// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader resolves configuration with the precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a loader. configPath may be empty for ENV-only setups.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the configuration: defaults, then the strict YAML file,
// then OAKGATE_* environment overrides, then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFile(&cfg, fileCfg)
	}

	mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Recordings.Dir == "" {
		cfg.Recordings.Dir = filepath.Join(cfg.DataDir, "recordings")
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		DataDir:  "./data",
		Device: DeviceConfig{
			Addr:             "127.0.0.1:9876",
			ReconnectMin:     500 * time.Millisecond,
			ReconnectMax:     30 * time.Second,
			WatchdogInterval: time.Second,
			WatchdogMisses:   3,
			LeaseTTL:         15 * time.Second,
		},
		Pipeline: PipelineConfig{
			PreviewWidth:        300,
			PreviewHeight:       300,
			FPS:                 30,
			MonoResolution:      "400p",
			NNConfidence:        0.5,
			NNThreads:           2,
			DepthEnabled:        true,
			DepthMedian:         5,
			DepthMinMM:          200,
			DepthMaxMM:          10000,
			DepthTemporalAlpha:  0.4,
			DepthTemporalFrames: 3,
			SpatialEnabled:      true,
		},
		Queues: QueueConfig{Size: 8, Blocking: false},
		Sync: SyncConfig{
			Mode:      "timestamp",
			Threshold: 10 * time.Millisecond,
			Buffer:    8,
		},
		API: APIConfig{
			Listen:          ":8080",
			RateLimit:       100,
			RateBurst:       time.Minute,
			MJPEGMaxClients: 8,
		},
		Metrics: MetricsConfig{Enabled: true, Listen: ":9090"},
		Recordings: RecordingsConfig{
			SegmentBytes:  256 << 20,
			MaxAge:        7 * 24 * time.Hour,
			MaxBytes:      0,
			SweepInterval: time.Hour,
		},
		Cache: CacheConfig{Backend: "memory", MaxEntries: 256},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			SampleRatio: 0.1,
		},
	}
}

// loadFile parses one strict YAML document, rejecting unknown fields and
// trailing documents.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- config paths are operator-provided via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

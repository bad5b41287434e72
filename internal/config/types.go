// SPDX-License-Identifier: MIT

// Package config loads daemon configuration with the precedence
// ENV > file > defaults. Files are strict YAML: unknown keys are errors.
package config

import "time"

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	LogLevel string
	DataDir  string

	Device     DeviceConfig
	Pipeline   PipelineConfig
	Queues     QueueConfig
	Sync       SyncConfig
	API        APIConfig
	Metrics    MetricsConfig
	Recordings RecordingsConfig
	Cache      CacheConfig
	Telemetry  TelemetryConfig
}

// DeviceConfig controls device attachment.
type DeviceConfig struct {
	// Addr is the link endpoint (host:port) of the device or simulator.
	Addr string
	// ID pins a specific device MxID; empty accepts any.
	ID string
	// AllowedHosts restricts device endpoints; empty allows any.
	AllowedHosts []string

	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	WatchdogInterval time.Duration
	// WatchdogMisses closes the session after this many missed pongs.
	WatchdogMisses int
	LeaseTTL       time.Duration
}

// PipelineConfig shapes the default pipeline built at startup.
type PipelineConfig struct {
	PreviewWidth   int
	PreviewHeight  int
	FPS            float64
	MonoResolution string

	NNBlob       string
	NNConfidence float64
	NNThreads    int

	DepthEnabled        bool
	DepthMedian         int
	DepthMinMM          int
	DepthMaxMM          int
	DepthTemporalAlpha  float64
	DepthTemporalFrames int
	SpatialEnabled      bool
}

// QueueConfig applies to every host output queue.
type QueueConfig struct {
	Size     int
	Blocking bool
}

// SyncConfig controls the stream synchronizer.
type SyncConfig struct {
	// Mode is "sequence" or "timestamp".
	Mode      string
	Threshold time.Duration
	Buffer    int
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Listen    string
	Token     string
	RateLimit int
	RateBurst time.Duration
	// MJPEGMaxClients bounds concurrent MJPEG subscribers.
	MJPEGMaxClients int
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Listen  string
}

// RecordingsConfig controls recording storage and retention.
type RecordingsConfig struct {
	Dir           string
	SegmentBytes  int64
	MaxAge        time.Duration
	MaxBytes      int64
	SweepInterval time.Duration
}

// CacheConfig selects the snapshot cache backend.
type CacheConfig struct {
	// Backend is "memory", "redis" or "none".
	Backend       string
	MaxEntries    int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// TelemetryConfig controls OTLP trace export.
type TelemetryConfig struct {
	Endpoint    string
	Protocol    string // "grpc" or "http"
	SampleRatio float64
	Insecure    bool
}

// FileConfig is the YAML schema. Pointer fields distinguish "absent" from
// zero values when merging over defaults.
type FileConfig struct {
	LogLevel *string `yaml:"logLevel"`
	DataDir  *string `yaml:"dataDir"`

	Device *struct {
		Addr             *string        `yaml:"addr"`
		ID               *string        `yaml:"id"`
		AllowedHosts     []string       `yaml:"allowedHosts"`
		ReconnectMin     *time.Duration `yaml:"reconnectMin"`
		ReconnectMax     *time.Duration `yaml:"reconnectMax"`
		WatchdogInterval *time.Duration `yaml:"watchdogInterval"`
		WatchdogMisses   *int           `yaml:"watchdogMisses"`
		LeaseTTL         *time.Duration `yaml:"leaseTtl"`
	} `yaml:"device"`

	Pipeline *struct {
		PreviewWidth   *int     `yaml:"previewWidth"`
		PreviewHeight  *int     `yaml:"previewHeight"`
		FPS            *float64 `yaml:"fps"`
		MonoResolution *string  `yaml:"monoResolution"`

		NNBlob       *string  `yaml:"nnBlob"`
		NNConfidence *float64 `yaml:"nnConfidence"`
		NNThreads    *int     `yaml:"nnThreads"`

		DepthEnabled        *bool    `yaml:"depthEnabled"`
		DepthMedian         *int     `yaml:"depthMedian"`
		DepthMinMM          *int     `yaml:"depthMinMm"`
		DepthMaxMM          *int     `yaml:"depthMaxMm"`
		DepthTemporalAlpha  *float64 `yaml:"depthTemporalAlpha"`
		DepthTemporalFrames *int     `yaml:"depthTemporalFrames"`
		SpatialEnabled      *bool    `yaml:"spatialEnabled"`
	} `yaml:"pipeline"`

	Queues *struct {
		Size     *int  `yaml:"size"`
		Blocking *bool `yaml:"blocking"`
	} `yaml:"queues"`

	Sync *struct {
		Mode      *string        `yaml:"mode"`
		Threshold *time.Duration `yaml:"threshold"`
		Buffer    *int           `yaml:"buffer"`
	} `yaml:"sync"`

	API *struct {
		Listen          *string        `yaml:"listen"`
		Token           *string        `yaml:"token"`
		RateLimit       *int           `yaml:"rateLimit"`
		RateBurst       *time.Duration `yaml:"rateBurst"`
		MJPEGMaxClients *int           `yaml:"mjpegMaxClients"`
	} `yaml:"api"`

	Metrics *struct {
		Enabled *bool   `yaml:"enabled"`
		Listen  *string `yaml:"listen"`
	} `yaml:"metrics"`

	Recordings *struct {
		Dir           *string        `yaml:"dir"`
		SegmentBytes  *int64         `yaml:"segmentBytes"`
		MaxAge        *time.Duration `yaml:"maxAge"`
		MaxBytes      *int64         `yaml:"maxBytes"`
		SweepInterval *time.Duration `yaml:"sweepInterval"`
	} `yaml:"recordings"`

	Cache *struct {
		Backend       *string `yaml:"backend"`
		MaxEntries    *int    `yaml:"maxEntries"`
		RedisAddr     *string `yaml:"redisAddr"`
		RedisPassword *string `yaml:"redisPassword"`
		RedisDB       *int    `yaml:"redisDb"`
	} `yaml:"cache"`

	Telemetry *struct {
		Endpoint    *string  `yaml:"endpoint"`
		Protocol    *string  `yaml:"protocol"`
		SampleRatio *float64 `yaml:"sampleRatio"`
		Insecure    *bool    `yaml:"insecure"`
	} `yaml:"telemetry"`
}

// SPDX-License-Identifier: MIT

package config

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// mergeFile overlays non-nil file values onto cfg.
func mergeFile(cfg *AppConfig, f *FileConfig) {
	setIf(&cfg.LogLevel, f.LogLevel)
	setIf(&cfg.DataDir, f.DataDir)

	if d := f.Device; d != nil {
		setIf(&cfg.Device.Addr, d.Addr)
		setIf(&cfg.Device.ID, d.ID)
		if d.AllowedHosts != nil {
			cfg.Device.AllowedHosts = d.AllowedHosts
		}
		setIf(&cfg.Device.ReconnectMin, d.ReconnectMin)
		setIf(&cfg.Device.ReconnectMax, d.ReconnectMax)
		setIf(&cfg.Device.WatchdogInterval, d.WatchdogInterval)
		setIf(&cfg.Device.WatchdogMisses, d.WatchdogMisses)
		setIf(&cfg.Device.LeaseTTL, d.LeaseTTL)
	}

	if p := f.Pipeline; p != nil {
		setIf(&cfg.Pipeline.PreviewWidth, p.PreviewWidth)
		setIf(&cfg.Pipeline.PreviewHeight, p.PreviewHeight)
		setIf(&cfg.Pipeline.FPS, p.FPS)
		setIf(&cfg.Pipeline.MonoResolution, p.MonoResolution)
		setIf(&cfg.Pipeline.NNBlob, p.NNBlob)
		setIf(&cfg.Pipeline.NNConfidence, p.NNConfidence)
		setIf(&cfg.Pipeline.NNThreads, p.NNThreads)
		setIf(&cfg.Pipeline.DepthEnabled, p.DepthEnabled)
		setIf(&cfg.Pipeline.DepthMedian, p.DepthMedian)
		setIf(&cfg.Pipeline.DepthMinMM, p.DepthMinMM)
		setIf(&cfg.Pipeline.DepthMaxMM, p.DepthMaxMM)
		setIf(&cfg.Pipeline.DepthTemporalAlpha, p.DepthTemporalAlpha)
		setIf(&cfg.Pipeline.DepthTemporalFrames, p.DepthTemporalFrames)
		setIf(&cfg.Pipeline.SpatialEnabled, p.SpatialEnabled)
	}

	if q := f.Queues; q != nil {
		setIf(&cfg.Queues.Size, q.Size)
		setIf(&cfg.Queues.Blocking, q.Blocking)
	}

	if s := f.Sync; s != nil {
		setIf(&cfg.Sync.Mode, s.Mode)
		setIf(&cfg.Sync.Threshold, s.Threshold)
		setIf(&cfg.Sync.Buffer, s.Buffer)
	}

	if a := f.API; a != nil {
		setIf(&cfg.API.Listen, a.Listen)
		setIf(&cfg.API.Token, a.Token)
		setIf(&cfg.API.RateLimit, a.RateLimit)
		setIf(&cfg.API.RateBurst, a.RateBurst)
		setIf(&cfg.API.MJPEGMaxClients, a.MJPEGMaxClients)
	}

	if m := f.Metrics; m != nil {
		setIf(&cfg.Metrics.Enabled, m.Enabled)
		setIf(&cfg.Metrics.Listen, m.Listen)
	}

	if r := f.Recordings; r != nil {
		setIf(&cfg.Recordings.Dir, r.Dir)
		setIf(&cfg.Recordings.SegmentBytes, r.SegmentBytes)
		setIf(&cfg.Recordings.MaxAge, r.MaxAge)
		setIf(&cfg.Recordings.MaxBytes, r.MaxBytes)
		setIf(&cfg.Recordings.SweepInterval, r.SweepInterval)
	}

	if c := f.Cache; c != nil {
		setIf(&cfg.Cache.Backend, c.Backend)
		setIf(&cfg.Cache.MaxEntries, c.MaxEntries)
		setIf(&cfg.Cache.RedisAddr, c.RedisAddr)
		setIf(&cfg.Cache.RedisPassword, c.RedisPassword)
		setIf(&cfg.Cache.RedisDB, c.RedisDB)
	}

	if t := f.Telemetry; t != nil {
		setIf(&cfg.Telemetry.Endpoint, t.Endpoint)
		setIf(&cfg.Telemetry.Protocol, t.Protocol)
		setIf(&cfg.Telemetry.SampleRatio, t.SampleRatio)
		setIf(&cfg.Telemetry.Insecure, t.Insecure)
	}
}

// mergeEnv overlays OAKGATE_* environment variables, the highest
// precedence source.
func mergeEnv(cfg *AppConfig) {
	cfg.LogLevel = ParseString("OAKGATE_LOG_LEVEL", cfg.LogLevel)
	cfg.DataDir = ParseString("OAKGATE_DATA_DIR", cfg.DataDir)

	cfg.Device.Addr = ParseString("OAKGATE_DEVICE_ADDR", cfg.Device.Addr)
	cfg.Device.ID = ParseString("OAKGATE_DEVICE_ID", cfg.Device.ID)
	cfg.Device.AllowedHosts = ParseStringList("OAKGATE_DEVICE_ALLOWED_HOSTS", cfg.Device.AllowedHosts)
	cfg.Device.ReconnectMin = ParseDuration("OAKGATE_DEVICE_RECONNECT_MIN", cfg.Device.ReconnectMin)
	cfg.Device.ReconnectMax = ParseDuration("OAKGATE_DEVICE_RECONNECT_MAX", cfg.Device.ReconnectMax)
	cfg.Device.WatchdogInterval = ParseDuration("OAKGATE_DEVICE_WATCHDOG_INTERVAL", cfg.Device.WatchdogInterval)
	cfg.Device.WatchdogMisses = ParseInt("OAKGATE_DEVICE_WATCHDOG_MISSES", cfg.Device.WatchdogMisses)
	cfg.Device.LeaseTTL = ParseDuration("OAKGATE_DEVICE_LEASE_TTL", cfg.Device.LeaseTTL)

	cfg.Pipeline.PreviewWidth = ParseInt("OAKGATE_PIPELINE_PREVIEW_WIDTH", cfg.Pipeline.PreviewWidth)
	cfg.Pipeline.PreviewHeight = ParseInt("OAKGATE_PIPELINE_PREVIEW_HEIGHT", cfg.Pipeline.PreviewHeight)
	cfg.Pipeline.FPS = ParseFloat("OAKGATE_PIPELINE_FPS", cfg.Pipeline.FPS)
	cfg.Pipeline.MonoResolution = ParseString("OAKGATE_PIPELINE_MONO_RESOLUTION", cfg.Pipeline.MonoResolution)
	cfg.Pipeline.NNBlob = ParseString("OAKGATE_NN_BLOB", cfg.Pipeline.NNBlob)
	cfg.Pipeline.NNConfidence = ParseFloat("OAKGATE_NN_CONFIDENCE", cfg.Pipeline.NNConfidence)
	cfg.Pipeline.NNThreads = ParseInt("OAKGATE_NN_THREADS", cfg.Pipeline.NNThreads)
	cfg.Pipeline.DepthEnabled = ParseBool("OAKGATE_DEPTH_ENABLED", cfg.Pipeline.DepthEnabled)
	cfg.Pipeline.DepthMedian = ParseInt("OAKGATE_DEPTH_MEDIAN", cfg.Pipeline.DepthMedian)
	cfg.Pipeline.DepthMinMM = ParseInt("OAKGATE_DEPTH_MIN_MM", cfg.Pipeline.DepthMinMM)
	cfg.Pipeline.DepthMaxMM = ParseInt("OAKGATE_DEPTH_MAX_MM", cfg.Pipeline.DepthMaxMM)
	cfg.Pipeline.DepthTemporalAlpha = ParseFloat("OAKGATE_DEPTH_TEMPORAL_ALPHA", cfg.Pipeline.DepthTemporalAlpha)
	cfg.Pipeline.DepthTemporalFrames = ParseInt("OAKGATE_DEPTH_TEMPORAL_FRAMES", cfg.Pipeline.DepthTemporalFrames)
	cfg.Pipeline.SpatialEnabled = ParseBool("OAKGATE_SPATIAL_ENABLED", cfg.Pipeline.SpatialEnabled)

	cfg.Queues.Size = ParseInt("OAKGATE_QUEUE_SIZE", cfg.Queues.Size)
	cfg.Queues.Blocking = ParseBool("OAKGATE_QUEUE_BLOCKING", cfg.Queues.Blocking)

	cfg.Sync.Mode = ParseString("OAKGATE_SYNC_MODE", cfg.Sync.Mode)
	cfg.Sync.Threshold = ParseDuration("OAKGATE_SYNC_THRESHOLD", cfg.Sync.Threshold)
	cfg.Sync.Buffer = ParseInt("OAKGATE_SYNC_BUFFER", cfg.Sync.Buffer)

	cfg.API.Listen = ParseString("OAKGATE_API_LISTEN", cfg.API.Listen)
	cfg.API.Token = ParseString("OAKGATE_API_TOKEN", cfg.API.Token)
	cfg.API.RateLimit = ParseInt("OAKGATE_API_RATE_LIMIT", cfg.API.RateLimit)
	cfg.API.RateBurst = ParseDuration("OAKGATE_API_RATE_BURST", cfg.API.RateBurst)
	cfg.API.MJPEGMaxClients = ParseInt("OAKGATE_API_MJPEG_MAX_CLIENTS", cfg.API.MJPEGMaxClients)

	cfg.Metrics.Enabled = ParseBool("OAKGATE_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Listen = ParseString("OAKGATE_METRICS_LISTEN", cfg.Metrics.Listen)

	cfg.Recordings.Dir = ParseString("OAKGATE_RECORD_DIR", cfg.Recordings.Dir)
	cfg.Recordings.SegmentBytes = ParseInt64("OAKGATE_RECORD_SEGMENT_BYTES", cfg.Recordings.SegmentBytes)
	cfg.Recordings.MaxAge = ParseDuration("OAKGATE_RECORD_MAX_AGE", cfg.Recordings.MaxAge)
	cfg.Recordings.MaxBytes = ParseInt64("OAKGATE_RECORD_MAX_BYTES", cfg.Recordings.MaxBytes)
	cfg.Recordings.SweepInterval = ParseDuration("OAKGATE_RECORD_SWEEP_INTERVAL", cfg.Recordings.SweepInterval)

	cfg.Cache.Backend = ParseString("OAKGATE_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.MaxEntries = ParseInt("OAKGATE_CACHE_MAX_ENTRIES", cfg.Cache.MaxEntries)
	cfg.Cache.RedisAddr = ParseString("OAKGATE_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = ParseString("OAKGATE_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = ParseInt("OAKGATE_REDIS_DB", cfg.Cache.RedisDB)

	cfg.Telemetry.Endpoint = ParseString("OAKGATE_OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Protocol = ParseString("OAKGATE_OTLP_PROTOCOL", cfg.Telemetry.Protocol)
	cfg.Telemetry.SampleRatio = ParseFloat("OAKGATE_TRACE_SAMPLE_RATIO", cfg.Telemetry.SampleRatio)
	cfg.Telemetry.Insecure = ParseBool("OAKGATE_OTLP_INSECURE", cfg.Telemetry.Insecure)
}

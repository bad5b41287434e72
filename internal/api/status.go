// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"time"

	"github.com/oakgate/oakgate/internal/cache"
	"github.com/oakgate/oakgate/internal/device"
	"github.com/oakgate/oakgate/internal/record"
)

type streamStatus struct {
	Name       string `json:"name"`
	QueueDepth int    `json:"queueDepth"`
	Dropped    int64  `json:"dropped"`
}

type deviceStatus struct {
	State     string       `json:"state"`
	LastError string       `json:"lastError,omitempty"`
	Info      *device.Info `json:"info,omitempty"`
}

type statusResponse struct {
	Version       string            `json:"version"`
	UptimeSeconds float64           `json:"uptimeSeconds"`
	Device        deviceStatus      `json:"device"`
	Streams       []streamStatus    `json:"streams"`
	Cache         *cache.Stats      `json:"cache,omitempty"`
	Recording     *record.Recording `json:"recording,omitempty"`
	DetectionFPS  float64           `json:"detectionFps,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:       s.opts.Version,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Streams:       []streamStatus{},
	}

	if d := s.opts.Device; d != nil {
		resp.Device.State = d.State()
		if err := d.LastError(); err != nil {
			resp.Device.LastError = err.Error()
		}
		if info, ok := d.Info(); ok {
			resp.Device.Info = &info
		}
		if client := d.Client(); client != nil {
			for name, q := range client.Queues() {
				resp.Streams = append(resp.Streams, streamStatus{
					Name:       name,
					QueueDepth: q.Len(),
					Dropped:    q.Dropped(),
				})
			}
		}
	} else {
		resp.Device.State = "idle"
	}

	if s.opts.Cache != nil {
		stats := s.opts.Cache.Stats()
		resp.Cache = &stats
	}
	if s.opts.Recorder != nil {
		resp.Recording = s.opts.Recorder.Active()
	}
	if s.opts.Pump != nil {
		if res, ok := s.opts.Pump.Detections().Latest(); ok {
			resp.DetectionFPS = res.FPS
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

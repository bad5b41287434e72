// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oakgate/oakgate/internal/device"
)

type deviceEntry struct {
	ID        string       `json:"id"`
	Addr      string       `json:"addr"`
	State     string       `json:"state"`
	LastError string       `json:"lastError,omitempty"`
	Info      *device.Info `json:"info,omitempty"`
}

// deviceID resolves the identifier the API exposes for the configured
// device: the pinned MxID, the live MxID, or "default".
func (s *Server) deviceID() string {
	cfg := s.config()
	if cfg.Device.ID != "" {
		return cfg.Device.ID
	}
	if s.opts.Device != nil {
		if info, ok := s.opts.Device.Info(); ok && info.MxID != "" {
			return info.MxID
		}
	}
	return "default"
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	cfg := s.config()
	entries := []deviceEntry{}

	if cfg.Device.Addr != "" || s.opts.Device != nil {
		entry := deviceEntry{
			ID:    s.deviceID(),
			Addr:  cfg.Device.Addr,
			State: "idle",
		}
		if d := s.opts.Device; d != nil {
			entry.State = d.State()
			if err := d.LastError(); err != nil {
				entry.LastError = err.Error()
			}
			if info, ok := d.Info(); ok {
				entry.Info = &info
			}
		}
		entries = append(entries, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": entries})
}

func (s *Server) resolveDevice(w http.ResponseWriter, r *http.Request) bool {
	if s.opts.Device == nil {
		writeUnavailable(w, "no device configured")
		return false
	}
	id := chi.URLParam(r, "id")
	if id != s.deviceID() && id != "default" {
		writeNotFound(w, "unknown device: "+id)
		return false
	}
	return true
}

func (s *Server) handleDeviceConnect(w http.ResponseWriter, r *http.Request) {
	if !s.resolveDevice(w, r) {
		return
	}
	if err := s.opts.Device.Connect(r.Context()); err != nil {
		writeConflict(w, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"state": s.opts.Device.State()})
}

func (s *Server) handleDeviceDisconnect(w http.ResponseWriter, r *http.Request) {
	if !s.resolveDevice(w, r) {
		return
	}
	if err := s.opts.Device.Disconnect(r.Context()); err != nil {
		writeConflict(w, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"state": s.opts.Device.State()})
}

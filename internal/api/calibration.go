// SPDX-License-Identifier: MIT

package api

import (
	"io"
	"net/http"

	"github.com/oakgate/oakgate/internal/calib"
)

const maxCalibBody = 1 << 20

// handleGetCalibration prefers the live device EEPROM and falls back to the
// on-disk copy from the last session.
func (s *Server) handleGetCalibration(w http.ResponseWriter, r *http.Request) {
	if d := s.opts.Device; d != nil {
		if client := d.Client(); client != nil {
			data, err := client.CalibGet(r.Context())
			if err == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(data)
				return
			}
			s.logger.Warn().Err(err).Str("event", "api.calib_device_failed").Msg("device calibration read failed, trying store")
		}
	}

	if s.opts.CalibStore == nil {
		writeUnavailable(w, "no calibration store")
		return
	}
	data, found, err := s.opts.CalibStore.Load(s.deviceID())
	if err != nil {
		writeInternal(w, err.Error())
		return
	}
	if !found {
		writeNotFound(w, "no calibration cached for device")
		return
	}
	raw, err := data.Marshal()
	if err != nil {
		writeInternal(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// handlePutCalibration validates, persists, and pushes to the device when a
// session is live.
func (s *Server) handlePutCalibration(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCalibBody))
	if err != nil {
		writeBadRequest(w, "failed to read body")
		return
	}
	data, err := calib.Unmarshal(body)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if s.opts.CalibStore != nil {
		if err := s.opts.CalibStore.Save(s.deviceID(), data); err != nil {
			writeInternal(w, err.Error())
			return
		}
	}

	pushed := false
	if d := s.opts.Device; d != nil {
		if client := d.Client(); client != nil {
			if err := client.CalibSet(r.Context(), body); err != nil {
				writeError(w, http.StatusBadGateway, "device_rejected", err.Error())
				return
			}
			pushed = true
		}
	}

	s.logger.Info().
		Str("event", "api.calib_updated").
		Bool("pushed", pushed).
		Msg("calibration updated")
	writeJSON(w, http.StatusOK, map[string]any{"stored": s.opts.CalibStore != nil, "pushed": pushed})
}

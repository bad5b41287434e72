// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/oakgate/oakgate/internal/metrics"
	"github.com/oakgate/oakgate/internal/pump"
)

// mjpegBoundary separates frames in the multipart stream.
const mjpegBoundary = "oakgateframe"

func (s *Server) streamNames() []string {
	var names []string
	if d := s.opts.Device; d != nil {
		if client := d.Client(); client != nil {
			for name := range client.Queues() {
				names = append(names, name)
			}
		}
	}
	if s.opts.Pump != nil {
		for _, name := range s.opts.Pump.Broadcaster().Streams() {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
		if !slices.Contains(names, pump.AnnotatedStream) {
			names = append(names, pump.AnnotatedStream)
		}
	}
	slices.Sort(names)
	return names
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	names := s.streamNames()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": names})
}

// handleMJPEG serves a multipart/x-mixed-replace JPEG stream until the
// client disconnects.
func (s *Server) handleMJPEG(w http.ResponseWriter, r *http.Request) {
	if s.opts.Pump == nil {
		writeUnavailable(w, "streaming not running")
		return
	}
	name := chi.URLParam(r, "name")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeInternal(w, "streaming unsupported by connection")
		return
	}

	frames, cancel, err := s.opts.Pump.Broadcaster().Subscribe(name)
	if err != nil {
		writeError(w, http.StatusTooManyRequests, "too_many_subscribers", err.Error())
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.Debug().Str("event", "api.mjpeg_start").Str("stream", name).Msg("mjpeg subscriber attached")

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug().Str("event", "api.mjpeg_stop").Str("stream", name).Msg("mjpeg subscriber detached")
			return
		case jpeg, ok := <-frames:
			if !ok {
				return
			}
			if _, err := w.Write([]byte("--" + mjpegBoundary + "\r\n" +
				"Content-Type: image/jpeg\r\n" +
				"Content-Length: " + strconv.Itoa(len(jpeg)) + "\r\n\r\n")); err != nil {
				return
			}
			if _, err := w.Write(jpeg); err != nil {
				return
			}
			if _, err := w.Write([]byte("\r\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleSnapshot serves the latest cached JPEG for a stream.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.opts.Cache == nil {
		writeUnavailable(w, "snapshot cache disabled")
		return
	}
	name := chi.URLParam(r, "name")
	jpeg, ok := s.snapshots.Snapshot(name)
	if !ok {
		writeNotFound(w, "no snapshot for stream: "+name)
		return
	}
	metrics.IncSnapshotServed("cache")
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(jpeg)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(jpeg)
}

// SPDX-License-Identifier: MIT

package api

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/oakgate/oakgate/internal/record"
)

func (s *Server) recorderReady(w http.ResponseWriter) bool {
	if s.opts.Recorder == nil || s.opts.Catalog == nil {
		writeUnavailable(w, "recording disabled")
		return false
	}
	return true
}

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	if !s.recorderReady(w) {
		return
	}
	recs, err := s.opts.Catalog.List(r.Context())
	if err != nil {
		writeInternal(w, err.Error())
		return
	}
	if recs == nil {
		recs = []*record.Recording{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"recordings": recs})
}

type startRecordingRequest struct {
	Name    string   `json:"name"`
	Streams []string `json:"streams"`
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if !s.recorderReady(w) {
		return
	}
	var req startRecordingRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	// Default to every stream of the live session.
	if len(req.Streams) == 0 && s.opts.Device != nil {
		if client := s.opts.Device.Client(); client != nil {
			for name := range client.Queues() {
				req.Streams = append(req.Streams, name)
			}
		}
	}
	if len(req.Streams) == 0 {
		writeBadRequest(w, "no streams to record")
		return
	}

	rec, err := s.opts.Recorder.Start(r.Context(), req.Name, req.Streams)
	if err != nil {
		if errors.Is(err, record.ErrRecorderBusy) {
			writeConflict(w, err.Error())
			return
		}
		writeInternal(w, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if !s.recorderReady(w) {
		return
	}
	id := chi.URLParam(r, "id")
	active := s.opts.Recorder.Active()
	if active == nil || active.ID != id {
		writeConflict(w, "recording not active: "+id)
		return
	}
	rec, err := s.opts.Recorder.Stop(r.Context())
	if err != nil {
		if errors.Is(err, record.ErrRecorderIdle) {
			writeConflict(w, err.Error())
			return
		}
		writeInternal(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	if !s.recorderReady(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.opts.Recorder.Delete(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, record.ErrNotFound):
			writeNotFound(w, "unknown recording: "+id)
		case errors.Is(err, record.ErrActive):
			writeConflict(w, err.Error())
		default:
			writeInternal(w, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDownloadRecording streams the recording directory as a tar archive.
func (s *Server) handleDownloadRecording(w http.ResponseWriter, r *http.Request) {
	if !s.recorderReady(w) {
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := s.opts.Catalog.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			writeNotFound(w, "unknown recording: "+id)
			return
		}
		writeInternal(w, err.Error())
		return
	}
	if active := s.opts.Recorder.Active(); active != nil && active.ID == id {
		writeConflict(w, "recording still active")
		return
	}

	filename := safeFilename(rec.Name)
	if filename == "" {
		filename = rec.ID
	}
	w.Header().Set("Content-Type", "application/x-tar")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`.tar"`)
	w.WriteHeader(http.StatusOK)

	if err := tarDirectory(w, rec.Dir, filename); err != nil {
		// Headers are out; all we can do is log and drop the connection.
		s.logger.Error().Err(err).
			Str("event", "api.download_failed").
			Str("recording", id).
			Msg("recording download aborted")
	}
}

func tarDirectory(w io.Writer, dir, prefix string) error {
	tw := tar.NewWriter(w)
	defer tw.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		hdr := &tar.Header{
			Name:    prefix + "/" + entry.Name(),
			Mode:    0o644,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		if _, err := io.Copy(tw, f); err != nil {
			f.Close()
			return err
		}
		f.Close()
	}
	return tw.Close()
}

// safeFilename folds a user-supplied recording name into a plain ASCII
// download filename: accents are decomposed and stripped, everything else
// unsafe becomes an underscore.
func safeFilename(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "._")
}

// SPDX-License-Identifier: MIT

package record

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	oaklog "github.com/oakgate/oakgate/internal/log"
	"github.com/oakgate/oakgate/internal/metrics"
	"github.com/oakgate/oakgate/internal/xlink"
)

// Recorder manages at most one active recording fed by the host pump.
type Recorder struct {
	root    string
	catalog *Catalog
	opts    WriterOptions
	logger  zerolog.Logger

	mu      sync.Mutex
	writer  *Writer
	active  *Recording
	started time.Time
}

// NewRecorder creates a recorder storing recordings under root.
func NewRecorder(root string, catalog *Catalog, opts WriterOptions) (*Recorder, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("record: create root: %w", err)
	}
	return &Recorder{
		root:    root,
		catalog: catalog,
		opts:    opts,
		logger:  oaklog.WithComponent("record"),
	}, nil
}

// Start begins a new recording of the given streams.
func (r *Recorder) Start(ctx context.Context, name string, streams []string) (*Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer != nil {
		return nil, ErrRecorderBusy
	}

	id := uuid.NewString()
	dir := filepath.Join(r.root, id)
	w, err := NewWriter(id, name, dir, streams, r.opts)
	if err != nil {
		return nil, err
	}

	rec := &Recording{
		ID:        id,
		Name:      name,
		Dir:       dir,
		CreatedAt: time.Now().UTC(),
		Status:    StatusRecording,
	}
	if err := r.catalog.Insert(ctx, rec); err != nil {
		_ = w.Close()
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("record: register recording: %w", err)
	}

	r.writer = w
	r.active = rec
	r.started = time.Now()
	metrics.RecordingActive.Inc()
	r.logger.Info().
		Str("event", "recording.start").
		Str("id", id).
		Str("name", name).
		Strs("streams", streams).
		Msg("recording started")
	return rec, nil
}

// Active returns the in-progress recording, or nil.
func (r *Recorder) Active() *Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Consume persists one packet if a recording is active and subscribes to
// the packet's stream. It never blocks the pump.
func (r *Recorder) Consume(p *xlink.Packet) {
	r.mu.Lock()
	w := r.writer
	r.mu.Unlock()

	if w == nil || !w.Subscribed(p.Header.Stream) {
		return
	}
	if err := w.WritePacket(p); err != nil {
		r.logger.Error().
			Str("event", "recording.write_failed").
			Str("stream", p.Header.Stream).
			Err(err).
			Msg("dropping packet from recording")
	}
}

// Stop finalizes the active recording and updates the catalog.
func (r *Recorder) Stop(ctx context.Context) (*Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil, ErrRecorderIdle
	}

	w, rec := r.writer, r.active
	r.writer, r.active = nil, nil
	metrics.RecordingActive.Dec()

	status := StatusComplete
	if err := w.Close(); err != nil {
		status = StatusFailed
		r.logger.Error().
			Str("event", "recording.close_failed").
			Str("id", rec.ID).
			Err(err).
			Msg("recording finalization failed")
	}

	m := w.Manifest()
	rec.DurationMS = time.Since(r.started).Milliseconds()
	rec.Packets = m.Packets
	rec.Bytes = m.Bytes
	rec.Status = status
	rec.Streams = m.PerStream

	if err := r.catalog.Finish(ctx, rec.ID, rec.DurationMS, rec.Packets, rec.Bytes, status, m.PerStream); err != nil {
		return rec, fmt.Errorf("record: finalize catalog row: %w", err)
	}
	r.logger.Info().
		Str("event", "recording.stop").
		Str("id", rec.ID).
		Int64("packets", rec.Packets).
		Int64("bytes", rec.Bytes).
		Str("status", status).
		Msg("recording stopped")
	return rec, nil
}

// Delete removes a completed recording from disk and the catalog.
func (r *Recorder) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	if r.active != nil && r.active.ID == id {
		r.mu.Unlock()
		return ErrActive
	}
	r.mu.Unlock()

	rec, err := r.catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(rec.Dir); err != nil {
		return fmt.Errorf("record: remove recording dir: %w", err)
	}
	if err := r.catalog.Delete(ctx, id); err != nil {
		return err
	}
	metrics.IncRecordingSweep("manual")
	return nil
}

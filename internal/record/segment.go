// SPDX-License-Identifier: MIT

package record

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/oakgate/oakgate/internal/metrics"
	"github.com/oakgate/oakgate/internal/xlink"
)

// Writer persists packets into rotating segment files under one recording
// directory and maintains the manifest.
type Writer struct {
	dir         string
	maxSegBytes int64

	mu       sync.Mutex
	manifest Manifest
	perStat  map[string]*StreamStats
	seg      *os.File
	segBuf   *bufio.Writer
	segBytes int64
	closed   bool
}

// WriterOptions tunes segment rotation.
type WriterOptions struct {
	// MaxSegmentBytes rotates segments; zero uses DefaultMaxSegmentBytes.
	MaxSegmentBytes int64
}

// NewWriter creates the recording directory and opens the first segment.
func NewWriter(id, name, dir string, streams []string, opts WriterOptions) (*Writer, error) {
	if opts.MaxSegmentBytes <= 0 {
		opts.MaxSegmentBytes = DefaultMaxSegmentBytes
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("record: create dir: %w", err)
	}
	w := &Writer{
		dir:         dir,
		maxSegBytes: opts.MaxSegmentBytes,
		manifest: Manifest{
			ID:        id,
			Name:      name,
			Streams:   streams,
			StartedAt: time.Now().UTC(),
		},
		perStat: make(map[string]*StreamStats),
	}
	if err := w.rotateLocked(); err != nil {
		return nil, err
	}
	if err := w.writeManifestLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

// Dir returns the recording directory.
func (w *Writer) Dir() string { return w.dir }

// Subscribed reports whether the writer records the given stream. An empty
// stream list records everything. The list is fixed at creation.
func (w *Writer) Subscribed(stream string) bool {
	if len(w.manifest.Streams) == 0 {
		return true
	}
	return slices.Contains(w.manifest.Streams, stream)
}

// Manifest returns a snapshot of the current manifest.
func (w *Writer) Manifest() Manifest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Writer) snapshotLocked() Manifest {
	m := w.manifest
	m.PerStream = make([]StreamStats, 0, len(w.perStat))
	for _, st := range w.perStat {
		m.PerStream = append(m.PerStream, *st)
	}
	sort.Slice(m.PerStream, func(i, j int) bool {
		return m.PerStream[i].Stream < m.PerStream[j].Stream
	})
	return m
}

// WritePacket appends one packet, rotating the segment when full.
func (w *Writer) WritePacket(p *xlink.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrRecorderIdle
	}

	if w.segBytes >= w.maxSegBytes {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}

	n, err := xlink.EncodePacket(w.segBuf, p)
	if err != nil {
		return fmt.Errorf("record: write packet: %w", err)
	}
	w.segBytes += n
	w.manifest.Packets++
	w.manifest.Bytes += n

	st, ok := w.perStat[p.Header.Stream]
	if !ok {
		st = &StreamStats{Stream: p.Header.Stream}
		w.perStat[p.Header.Stream] = st
	}
	st.Packets++
	st.Bytes += n

	metrics.IncRecordingPacket(p.Header.Stream, int(n))
	return nil
}

func (w *Writer) rotateLocked() error {
	if w.seg != nil {
		if err := w.segBuf.Flush(); err != nil {
			return fmt.Errorf("record: flush segment: %w", err)
		}
		if err := w.seg.Close(); err != nil {
			return fmt.Errorf("record: close segment: %w", err)
		}
	}
	name := fmt.Sprintf(SegmentPattern, w.manifest.Segments)
	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("record: open segment: %w", err)
	}
	w.seg = f
	w.segBuf = bufio.NewWriterSize(f, 256<<10)
	w.segBytes = 0
	w.manifest.Segments++
	return nil
}

// Close flushes the open segment, stamps StoppedAt and writes the final
// manifest atomically.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.segBuf.Flush(); err != nil {
		return fmt.Errorf("record: flush segment: %w", err)
	}
	if err := w.seg.Close(); err != nil {
		return fmt.Errorf("record: close segment: %w", err)
	}
	w.manifest.StoppedAt = time.Now().UTC()
	return w.writeManifestLocked()
}

func (w *Writer) writeManifestLocked() error {
	buf, err := marshalManifest(w.snapshotLocked())
	if err != nil {
		return err
	}
	pending, err := renameio.NewPendingFile(filepath.Join(w.dir, ManifestName))
	if err != nil {
		return fmt.Errorf("record: create pending manifest: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck

	if _, err := pending.Write(buf); err != nil {
		return fmt.Errorf("record: write manifest: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("record: replace manifest: %w", err)
	}
	return nil
}

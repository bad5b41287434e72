// SPDX-License-Identifier: MIT

package record

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oakgate/oakgate/internal/xlink"
)

// ReplayOptions controls playback pacing.
type ReplayOptions struct {
	// Speed scales recorded inter-packet gaps; 1 is real time, 0 defaults
	// to 1. Ignored when FPS is set.
	Speed float64
	// FPS emits packets at a fixed rate instead of recorded timing.
	FPS float64
	// Loop restarts playback at the first segment after the last packet.
	Loop bool
}

// ReplayReader plays a recording back packet by packet, pacing Next calls
// so consumers see device-like timing.
type ReplayReader struct {
	manifest *Manifest
	segments []string
	opts     ReplayOptions

	segIdx int
	file   *os.File
	reader *bufio.Reader

	prevTS   int64 // device nanoseconds of the previous packet
	lastEmit time.Time
}

// OpenReplay opens a recording directory for playback.
func OpenReplay(dir string, opts ReplayOptions) (*ReplayReader, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	segments, err := SegmentFiles(dir)
	if err != nil {
		return nil, err
	}
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	r := &ReplayReader{manifest: m, segments: segments, opts: opts}
	if err := r.openSegment(0); err != nil {
		return nil, err
	}
	return r, nil
}

// Manifest returns the recording's manifest.
func (r *ReplayReader) Manifest() Manifest { return *r.manifest }

func (r *ReplayReader) openSegment(idx int) error {
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}
	f, err := os.Open(r.segments[idx])
	if err != nil {
		return fmt.Errorf("record: open segment: %w", err)
	}
	r.segIdx = idx
	r.file = f
	r.reader = bufio.NewReaderSize(f, 256<<10)
	return nil
}

// Next returns the next packet, sleeping to honor pacing. It returns io.EOF
// at the end of the recording (never with Loop).
func (r *ReplayReader) Next(ctx context.Context) (*xlink.Packet, error) {
	for {
		p, _, err := xlink.DecodePacket(r.reader)
		if err == nil {
			if err := r.pace(ctx, p); err != nil {
				return nil, err
			}
			return p, nil
		}
		if !errors.Is(err, io.EOF) {
			return nil, err
		}
		// Segment exhausted: advance, loop, or finish.
		switch {
		case r.segIdx+1 < len(r.segments):
			if err := r.openSegment(r.segIdx + 1); err != nil {
				return nil, err
			}
		case r.opts.Loop:
			r.prevTS = 0
			if err := r.openSegment(0); err != nil {
				return nil, err
			}
		default:
			return nil, io.EOF
		}
	}
}

func (r *ReplayReader) pace(ctx context.Context, p *xlink.Packet) error {
	var wait time.Duration
	switch {
	case r.opts.FPS > 0:
		interval := time.Duration(float64(time.Second) / r.opts.FPS)
		if !r.lastEmit.IsZero() {
			wait = interval - time.Since(r.lastEmit)
		}
	case r.prevTS > 0 && p.Header.DeviceTS > r.prevTS:
		wait = time.Duration(float64(p.Header.DeviceTS-r.prevTS) / r.opts.Speed)
	}
	r.prevTS = p.Header.DeviceTS

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	r.lastEmit = time.Now()
	return nil
}

// Close releases the open segment file.
func (r *ReplayReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// SPDX-License-Identifier: MIT

// Package framesync aligns messages from multiple device streams into
// matched sets, either by sequence number or by device timestamp proximity.
package framesync

import (
	"sync"
	"time"

	"github.com/oakgate/oakgate/internal/frame"
	"github.com/oakgate/oakgate/internal/metrics"
)

// Mode selects the matching strategy.
type Mode int

const (
	// ModeSequence matches messages carrying identical sequence numbers.
	ModeSequence Mode = iota
	// ModeTimestamp matches messages whose device timestamps fall within
	// the configured threshold, picking the closest candidate per stream.
	ModeTimestamp
)

const (
	// DefaultThreshold bounds timestamp skew inside one set.
	DefaultThreshold = 10 * time.Millisecond
	// DefaultBufferSize bounds each per-stream buffer.
	DefaultBufferSize = 8
	defaultOutSize    = 4
)

// MessageSet is one aligned message per configured stream.
type MessageSet struct {
	Messages map[string]frame.Message
}

// Spread is the device-timestamp distance between the earliest and latest
// member of the set.
func (s *MessageSet) Spread() time.Duration {
	var min, max time.Time
	for _, m := range s.Messages {
		ts := m.DeviceTime()
		if min.IsZero() || ts.Before(min) {
			min = ts
		}
		if ts.After(max) {
			max = ts
		}
	}
	return max.Sub(min)
}

// Options configures a Synchronizer.
type Options struct {
	// Streams is the full set a MessageSet must cover.
	Streams []string
	Mode    Mode
	// Threshold is the timestamp-mode tolerance; zero uses DefaultThreshold.
	Threshold time.Duration
	// BufferSize bounds each stream buffer; zero uses DefaultBufferSize.
	BufferSize int
	// OutSize bounds the emitted-set buffer.
	OutSize int
}

// Synchronizer buffers per-stream messages and emits complete sets. Push
// never blocks: full buffers evict their oldest entry and a full output
// drops the oldest pending set.
type Synchronizer struct {
	opts Options

	mu      sync.Mutex
	buffers map[string][]frame.Message
	closed  bool

	out chan *MessageSet
}

func New(opts Options) *Synchronizer {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.BufferSize < 1 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.OutSize < 1 {
		opts.OutSize = defaultOutSize
	}
	s := &Synchronizer{
		opts:    opts,
		buffers: make(map[string][]frame.Message, len(opts.Streams)),
		out:     make(chan *MessageSet, opts.OutSize),
	}
	for _, name := range opts.Streams {
		s.buffers[name] = nil
	}
	return s
}

// Sets delivers emitted message sets. The channel closes with the
// synchronizer.
func (s *Synchronizer) Sets() <-chan *MessageSet {
	return s.out
}

// Push inserts a message and emits any set it completes.
func (s *Synchronizer) Push(msg frame.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	stream := msg.StreamName()
	buf, known := s.buffers[stream]
	if !known {
		s.mu.Unlock()
		metrics.IncSyncDrop(stream, "unmatched")
		return
	}
	if len(buf) >= s.opts.BufferSize {
		buf = buf[1:]
		metrics.IncSyncDrop(stream, "overflow")
	}
	s.buffers[stream] = append(buf, msg)

	if set := s.matchLocked(msg); set != nil {
		s.emitLocked(set)
	}
	s.mu.Unlock()
}

// matchLocked attempts to complete a set around the just-inserted message.
func (s *Synchronizer) matchLocked(anchor frame.Message) *MessageSet {
	picked := make(map[string]int, len(s.opts.Streams))
	for _, stream := range s.opts.Streams {
		idx := -1
		if s.opts.Mode == ModeSequence {
			for i, m := range s.buffers[stream] {
				if m.Sequence() == anchor.Sequence() {
					idx = i
					break
				}
			}
		} else {
			best := s.opts.Threshold + 1
			for i, m := range s.buffers[stream] {
				d := absDuration(m.DeviceTime().Sub(anchor.DeviceTime()))
				if d <= s.opts.Threshold && d < best {
					best = d
					idx = i
				}
			}
		}
		if idx < 0 {
			return nil
		}
		picked[stream] = idx
	}

	set := &MessageSet{Messages: make(map[string]frame.Message, len(picked))}
	for stream, idx := range picked {
		buf := s.buffers[stream]
		set.Messages[stream] = buf[idx]
		// Members and anything older are consumed; older leftovers can
		// never complete a newer set.
		for i := 0; i < idx; i++ {
			metrics.IncSyncDrop(stream, "stale")
		}
		s.buffers[stream] = append([]frame.Message(nil), buf[idx+1:]...)
	}
	return set
}

// emitLocked hands the set to the output channel, evicting the oldest
// pending set when full. All sends happen under s.mu, so the drain-retry
// loop cannot race another producer.
func (s *Synchronizer) emitLocked(set *MessageSet) {
	metrics.IncSyncSet(set.Spread())
	for {
		select {
		case s.out <- set:
			return
		default:
		}
		select {
		case old := <-s.out:
			for stream := range old.Messages {
				metrics.IncSyncDrop(stream, "overflow")
			}
		default:
		}
	}
}

// Pending reports the buffered message count for one stream.
func (s *Synchronizer) Pending(stream string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffers[stream])
}

// Close stops the synchronizer and closes the output channel. Pushes after
// Close are ignored.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

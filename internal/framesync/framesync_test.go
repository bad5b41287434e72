// SPDX-License-Identifier: MIT

package framesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakgate/oakgate/internal/frame"
)

func msg(stream string, seq int64, ts time.Time) frame.Message {
	return &frame.ImgFrame{Meta: frame.Meta{Stream: stream, Seq: seq, DeviceTS: ts}}
}

func recvSet(t *testing.T, s *Synchronizer) *MessageSet {
	t.Helper()
	select {
	case set := <-s.Sets():
		require.NotNil(t, set)
		return set
	case <-time.After(time.Second):
		t.Fatal("no set emitted")
		return nil
	}
}

func TestSequenceMatch(t *testing.T) {
	s := New(Options{Streams: []string{"rgb", "depth"}, Mode: ModeSequence})
	defer s.Close()

	base := time.Unix(100, 0)
	s.Push(msg("rgb", 1, base))
	select {
	case <-s.Sets():
		t.Fatal("incomplete set emitted")
	case <-time.After(20 * time.Millisecond):
	}

	s.Push(msg("depth", 1, base.Add(2*time.Millisecond)))
	set := recvSet(t, s)
	require.Len(t, set.Messages, 2)
	assert.Equal(t, int64(1), set.Messages["rgb"].Sequence())
	assert.Equal(t, int64(1), set.Messages["depth"].Sequence())
	assert.Equal(t, 2*time.Millisecond, set.Spread())
	assert.Equal(t, 0, s.Pending("rgb"))
	assert.Equal(t, 0, s.Pending("depth"))
}

func TestSequenceEvictsOlderEntries(t *testing.T) {
	s := New(Options{Streams: []string{"rgb", "depth"}, Mode: ModeSequence})
	defer s.Close()

	base := time.Unix(100, 0)
	// rgb 1 and 2 buffered; depth 2 completes a set, rgb 1 becomes stale.
	s.Push(msg("rgb", 1, base))
	s.Push(msg("rgb", 2, base.Add(33*time.Millisecond)))
	s.Push(msg("depth", 2, base.Add(34*time.Millisecond)))

	set := recvSet(t, s)
	assert.Equal(t, int64(2), set.Messages["rgb"].Sequence())
	assert.Equal(t, 0, s.Pending("rgb"))
}

func TestTimestampMatchPicksClosest(t *testing.T) {
	s := New(Options{Streams: []string{"rgb", "depth"}, Mode: ModeTimestamp, Threshold: 10 * time.Millisecond})
	defer s.Close()

	base := time.Unix(100, 0)
	s.Push(msg("rgb", 10, base.Add(9*time.Millisecond))) // inside threshold
	s.Push(msg("rgb", 11, base.Add(1*time.Millisecond))) // closer
	s.Push(msg("depth", 99, base))

	set := recvSet(t, s)
	assert.Equal(t, int64(11), set.Messages["rgb"].Sequence())
}

func TestTimestampOutsideThreshold(t *testing.T) {
	s := New(Options{Streams: []string{"rgb", "depth"}, Mode: ModeTimestamp, Threshold: 10 * time.Millisecond})
	defer s.Close()

	base := time.Unix(100, 0)
	s.Push(msg("rgb", 1, base))
	s.Push(msg("depth", 1, base.Add(50*time.Millisecond)))

	select {
	case <-s.Sets():
		t.Fatal("set emitted beyond threshold")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 1, s.Pending("rgb"))
	assert.Equal(t, 1, s.Pending("depth"))
}

func TestUnknownStreamIgnored(t *testing.T) {
	s := New(Options{Streams: []string{"rgb"}, Mode: ModeSequence})
	defer s.Close()

	s.Push(msg("imu", 1, time.Unix(100, 0)))
	assert.Equal(t, 0, s.Pending("imu"))
}

func TestBufferOverflowDropsOldest(t *testing.T) {
	s := New(Options{Streams: []string{"rgb", "depth"}, Mode: ModeSequence, BufferSize: 3})
	defer s.Close()

	base := time.Unix(100, 0)
	for i := int64(1); i <= 5; i++ {
		s.Push(msg("rgb", i, base.Add(time.Duration(i)*time.Millisecond)))
	}
	assert.Equal(t, 3, s.Pending("rgb"))

	// Sequence 1 and 2 were evicted, 3 still matches.
	s.Push(msg("depth", 3, base.Add(3*time.Millisecond)))
	set := recvSet(t, s)
	assert.Equal(t, int64(3), set.Messages["rgb"].Sequence())
}

func TestOutputOverflowDropsOldestSet(t *testing.T) {
	s := New(Options{Streams: []string{"rgb"}, Mode: ModeSequence, OutSize: 1})
	defer s.Close()

	base := time.Unix(100, 0)
	// Single-stream sets complete immediately; the second evicts the first.
	s.Push(msg("rgb", 1, base))
	s.Push(msg("rgb", 2, base.Add(time.Millisecond)))

	set := recvSet(t, s)
	assert.Equal(t, int64(2), set.Messages["rgb"].Sequence())
}

func TestCloseStopsEmission(t *testing.T) {
	s := New(Options{Streams: []string{"rgb"}, Mode: ModeSequence})
	s.Close()
	s.Close() // idempotent

	s.Push(msg("rgb", 1, time.Unix(100, 0)))
	_, open := <-s.Sets()
	assert.False(t, open)
}

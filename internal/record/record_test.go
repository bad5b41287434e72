// SPDX-License-Identifier: MIT

package record

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakgate/oakgate/internal/frame"
	"github.com/oakgate/oakgate/internal/xlink"
)

func testPacket(stream string, seq int64, payload []byte) *xlink.Packet {
	return &xlink.Packet{
		Header: xlink.Header{
			Stream:   stream,
			Kind:     frame.KindImgFrame,
			Seq:      seq,
			DeviceTS: time.Unix(100, seq*int64(time.Millisecond)).UnixNano(),
		},
		Payload: payload,
	}
}

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := OpenCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestWriterSegmentsAndManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rec-1")
	w, err := NewWriter("rec-1", "test", dir, []string{"rgb"}, WriterOptions{MaxSegmentBytes: 256})
	require.NoError(t, err)

	// Each packet is well over 64 bytes framed; force at least one rotation.
	for i := int64(0); i < 8; i++ {
		require.NoError(t, w.WritePacket(testPacket("rgb", i, make([]byte, 128))))
	}
	require.NoError(t, w.Close())

	m, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", m.ID)
	assert.Equal(t, int64(8), m.Packets)
	assert.Greater(t, m.Segments, 1)
	assert.False(t, m.StoppedAt.IsZero())
	require.Len(t, m.PerStream, 1)
	assert.Equal(t, int64(8), m.PerStream[0].Packets)

	segments, err := SegmentFiles(dir)
	require.NoError(t, err)
	assert.Len(t, segments, m.Segments)

	// Closed writers reject further packets.
	assert.ErrorIs(t, w.WritePacket(testPacket("rgb", 9, nil)), ErrRecorderIdle)
}

func TestReplayRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rec-2")
	w, err := NewWriter("rec-2", "replay", dir, nil, WriterOptions{MaxSegmentBytes: 200})
	require.NoError(t, err)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, w.WritePacket(testPacket("depth", i, []byte{byte(i)})))
	}
	require.NoError(t, w.Close())

	r, err := OpenReplay(dir, ReplayOptions{Speed: 1000})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "replay", r.Manifest().Name)

	ctx := context.Background()
	for i := int64(0); i < 5; i++ {
		p, err := r.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, p.Header.Seq)
		assert.Equal(t, []byte{byte(i)}, p.Payload)
	}
	_, err = r.Next(ctx)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReplayLoop(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rec-3")
	w, err := NewWriter("rec-3", "loop", dir, nil, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.WritePacket(testPacket("rgb", 1, nil)))
	require.NoError(t, w.Close())

	r, err := OpenReplay(dir, ReplayOptions{Speed: 1000, Loop: true})
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		p, err := r.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), p.Header.Seq)
	}
}

func TestReplayHonorsContext(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rec-4")
	w, err := NewWriter("rec-4", "slow", dir, nil, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.WritePacket(testPacket("rgb", 1, nil)))
	require.NoError(t, w.Close())

	r, err := OpenReplay(dir, ReplayOptions{FPS: 0.1}) // 10s between packets
	require.NoError(t, err)
	defer r.Close()

	// First packet is unpaced.
	_, err = r.Next(context.Background())
	require.NoError(t, err)
}

func TestCatalogCRUD(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	rec := &Recording{
		ID: "r1", Name: "first", Dir: "/tmp/r1",
		CreatedAt: time.Now().UTC(), Status: StatusRecording,
	}
	require.NoError(t, c.Insert(ctx, rec))

	streams := []StreamStats{{Stream: "rgb", Packets: 10, Bytes: 1000}}
	require.NoError(t, c.Finish(ctx, "r1", 5000, 10, 1000, StatusComplete, streams))

	got, err := c.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Equal(t, int64(5000), got.DurationMS)
	require.Len(t, got.Streams, 1)
	assert.Equal(t, int64(10), got.Streams[0].Packets)

	list, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	total, err := c.TotalBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), total)

	require.NoError(t, c.Delete(ctx, "r1"))
	_, err = c.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, "r1"), ErrNotFound)
	assert.ErrorIs(t, c.Finish(ctx, "r1", 0, 0, 0, StatusComplete, nil), ErrNotFound)
}

func TestRecorderLifecycle(t *testing.T) {
	root := t.TempDir()
	c := openTestCatalog(t)
	rec, err := NewRecorder(root, c, WriterOptions{})
	require.NoError(t, err)
	ctx := context.Background()

	assert.Nil(t, rec.Active())
	_, err = rec.Stop(ctx)
	assert.ErrorIs(t, err, ErrRecorderIdle)

	active, err := rec.Start(ctx, "session", []string{"rgb"})
	require.NoError(t, err)
	require.NotNil(t, rec.Active())

	_, err = rec.Start(ctx, "second", nil)
	assert.ErrorIs(t, err, ErrRecorderBusy)

	// Subscribed stream recorded, others ignored.
	rec.Consume(testPacket("rgb", 1, []byte{1}))
	rec.Consume(testPacket("imu", 2, []byte{2}))

	// Active recordings refuse deletion.
	assert.ErrorIs(t, rec.Delete(ctx, active.ID), ErrActive)

	done, err := rec.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, done.Status)
	assert.Equal(t, int64(1), done.Packets)

	got, err := c.Get(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)

	require.NoError(t, rec.Delete(ctx, active.ID))
	_, err = os.Stat(done.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestSweeperAgeAndSize(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	root := t.TempDir()

	mk := func(id string, age time.Duration, bytes int64) {
		dir := filepath.Join(root, id)
		require.NoError(t, os.MkdirAll(dir, 0o750))
		require.NoError(t, c.Insert(ctx, &Recording{
			ID: id, Name: id, Dir: dir,
			CreatedAt: time.Now().UTC().Add(-age), Status: StatusRecording,
		}))
		require.NoError(t, c.Finish(ctx, id, 1000, 1, bytes, StatusComplete, nil))
	}

	mk("old", 48*time.Hour, 100)
	mk("mid", 2*time.Hour, 600)
	mk("new", time.Minute, 600)

	s := NewSweeper(c, 24*time.Hour, 1000, time.Hour)
	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	// "old" goes by age; then 1200 bytes > 1000 drops the oldest survivor.
	assert.Equal(t, 2, removed)

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].ID)
}

func TestReadManifestMissing(t *testing.T) {
	_, err := ReadManifest(t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

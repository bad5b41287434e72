// SPDX-License-Identifier: MIT

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oakgate/oakgate/internal/frame"
)

func msg(stream string, seq int64) frame.Message {
	return &frame.ImgDetections{Meta: frame.Meta{Stream: stream, Seq: seq}}
}

func TestTryGetEmptyReturnsFalse(t *testing.T) {
	q := New("RGB", Options{MaxSize: 2})
	m, ok := q.TryGet()
	assert.Nil(t, m)
	assert.False(t, ok)
}

func TestFIFOOrder(t *testing.T) {
	q := New("RGB", Options{MaxSize: 4})
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.Put(ctx, msg("RGB", i)))
	}
	assert.Equal(t, 3, q.Len())

	for i := int64(1); i <= 3; i++ {
		m, ok := q.TryGet()
		require.True(t, ok)
		assert.Equal(t, i, m.Sequence())
	}
}

func TestNonBlockingOverflowDropsOldest(t *testing.T) {
	q := New("nn", Options{MaxSize: 2, Blocking: false})
	ctx := context.Background()
	for i := int64(1); i <= 4; i++ {
		require.NoError(t, q.Put(ctx, msg("nn", i)))
	}
	assert.Equal(t, int64(2), q.Dropped())

	m, _ := q.TryGet()
	assert.Equal(t, int64(3), m.Sequence())
	m, _ = q.TryGet()
	assert.Equal(t, int64(4), m.Sequence())
}

func TestBlockingPutWaitsForSpace(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := New("Left", Options{MaxSize: 1, Blocking: true})
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, msg("Left", 1)))

	done := make(chan error, 1)
	go func() { done <- q.Put(ctx, msg("Left", 2)) }()

	select {
	case <-done:
		t.Fatal("Put returned before space was available")
	case <-time.After(50 * time.Millisecond):
	}

	m, ok := q.TryGet()
	require.True(t, ok)
	assert.Equal(t, int64(1), m.Sequence())
	require.NoError(t, <-done)

	m, ok = q.TryGet()
	require.True(t, ok)
	assert.Equal(t, int64(2), m.Sequence())
	assert.Equal(t, int64(0), q.Dropped())
}

func TestBlockingPutHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := New("Left", Options{MaxSize: 1, Blocking: true})
	require.NoError(t, q.Put(context.Background(), msg("Left", 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := q.Put(ctx, msg("Left", 2))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetBlocksUntilPut(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := New("RGB", Options{MaxSize: 2})
	type result struct {
		m   frame.Message
		err error
	}
	got := make(chan result, 1)
	go func() {
		m, err := q.Get(context.Background())
		got <- result{m, err}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Put(context.Background(), msg("RGB", 9)))

	r := <-got
	require.NoError(t, r.err)
	assert.Equal(t, int64(9), r.m.Sequence())
}

func TestCloseReleasesWaiters(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	q := New("RGB", Options{MaxSize: 2})
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Get(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()
	assert.ErrorIs(t, <-errCh, ErrQueueClosed)

	// Put after close fails, buffered data stays readable.
	assert.ErrorIs(t, q.Put(context.Background(), msg("RGB", 1)), ErrQueueClosed)
}

func TestGetAllDrains(t *testing.T) {
	q := New("imu", Options{MaxSize: 8})
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, q.Put(ctx, msg("imu", i)))
	}
	all := q.GetAll()
	require.Len(t, all, 5)
	assert.Equal(t, int64(1), all[0].Sequence())
	assert.Equal(t, int64(5), all[4].Sequence())
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.GetAll())
}

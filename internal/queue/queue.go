// SPDX-License-Identifier: MIT

// Package queue provides the bounded per-stream output queues the host pump
// reads from, mirroring device host-queue semantics: blocking queues stall
// the producer when full, non-blocking queues drop the oldest message.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/oakgate/oakgate/internal/frame"
	"github.com/oakgate/oakgate/internal/metrics"
)

var ErrQueueClosed = errors.New("queue: closed")

// Queue is a bounded FIFO of decoded messages for one stream.
type Queue struct {
	stream   string
	capacity int
	blocking bool

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []frame.Message
	closed   bool

	dropped int64
}

// Options configures a queue.
type Options struct {
	// MaxSize bounds the queue; values below 1 get the device default of 8.
	MaxSize int
	// Blocking selects producer behavior on overflow: wait (true) or
	// drop-oldest (false).
	Blocking bool
}

// New creates a queue for the named stream.
func New(stream string, opts Options) *Queue {
	size := opts.MaxSize
	if size < 1 {
		size = 8
	}
	q := &Queue{
		stream:   stream,
		capacity: size,
		blocking: opts.Blocking,
		buf:      make([]frame.Message, 0, size),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Stream returns the stream name the queue serves.
func (q *Queue) Stream() string { return q.stream }

// Len returns the number of buffered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Dropped returns the number of messages discarded by overflow.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Put enqueues a message. With Blocking it waits for space (or ctx/close);
// otherwise a full queue evicts its oldest entry.
func (q *Queue) Put(ctx context.Context, msg frame.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if q.blocking {
		for len(q.buf) >= q.capacity && !q.closed {
			if err := ctx.Err(); err != nil {
				return err
			}
			waitCancel := waitWithContext(ctx, q.notFull, &q.mu)
			q.notFull.Wait()
			waitCancel()
		}
		if q.closed {
			return ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	} else if len(q.buf) >= q.capacity {
		copy(q.buf, q.buf[1:])
		q.buf = q.buf[:len(q.buf)-1]
		q.dropped++
		metrics.IncQueueDropped(q.stream, "overflow")
	}

	q.buf = append(q.buf, msg)
	metrics.IncQueueEnqueued(q.stream)
	metrics.SetQueueDepth(q.stream, len(q.buf))
	q.notEmpty.Signal()
	return nil
}

// Get blocks until a message is available, the queue closes, or ctx ends.
func (q *Queue) Get(ctx context.Context) (frame.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.buf) == 0 {
		if q.closed {
			return nil, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		waitCancel := waitWithContext(ctx, q.notEmpty, &q.mu)
		q.notEmpty.Wait()
		waitCancel()
	}
	return q.takeLocked(), nil
}

// TryGet returns the next message without blocking. The second result is
// false when the queue is empty.
func (q *Queue) TryGet() (frame.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil, false
	}
	return q.takeLocked(), true
}

// GetAll drains every buffered message without blocking.
func (q *Queue) GetAll() []frame.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil
	}
	out := make([]frame.Message, len(q.buf))
	copy(out, q.buf)
	q.buf = q.buf[:0]
	metrics.SetQueueDepth(q.stream, 0)
	q.notFull.Broadcast()
	return out
}

func (q *Queue) takeLocked() frame.Message {
	msg := q.buf[0]
	copy(q.buf, q.buf[1:])
	q.buf = q.buf[:len(q.buf)-1]
	metrics.SetQueueDepth(q.stream, len(q.buf))
	q.notFull.Signal()
	return msg
}

// Close releases all waiters with ErrQueueClosed. Buffered messages remain
// readable through TryGet and GetAll.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// waitWithContext arranges for a cond.Wait to be interrupted when ctx ends.
// It returns a stop function the caller runs after Wait returns.
func waitWithContext(ctx context.Context, cond *sync.Cond, mu *sync.Mutex) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			mu.Lock()
			cond.Broadcast()
			mu.Unlock()
		case <-stopped:
		}
	}()
	return func() { close(stopped) }
}

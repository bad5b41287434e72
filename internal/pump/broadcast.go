// SPDX-License-Identifier: MIT

package pump

import (
	"errors"
	"sort"
	"sync"

	"github.com/oakgate/oakgate/internal/metrics"
)

// ErrTooManySubscribers rejects MJPEG subscriptions over the client cap.
var ErrTooManySubscribers = errors.New("pump: too many stream subscribers")

const subscriberBuffer = 2

// Broadcaster fans the latest JPEG of each stream out to MJPEG subscribers.
// Slow subscribers lose frames, never stall the pump.
type Broadcaster struct {
	maxClients int

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan []byte
	total  int
}

// NewBroadcaster caps concurrent subscribers across all streams.
func NewBroadcaster(maxClients int) *Broadcaster {
	if maxClients < 1 {
		maxClients = 8
	}
	return &Broadcaster{
		maxClients: maxClients,
		subs:       make(map[string]map[int]chan []byte),
	}
}

// Subscribe returns a frame channel for one stream and a cancel function.
// The channel closes on cancel.
func (b *Broadcaster) Subscribe(stream string) (<-chan []byte, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.total >= b.maxClients {
		return nil, nil, ErrTooManySubscribers
	}

	ch := make(chan []byte, subscriberBuffer)
	id := b.nextID
	b.nextID++
	if b.subs[stream] == nil {
		b.subs[stream] = make(map[int]chan []byte)
	}
	b.subs[stream][id] = ch
	b.total++
	metrics.AddMJPEGSubscriber(stream, 1)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[stream][id]; !ok {
				return
			}
			delete(b.subs[stream], id)
			b.total--
			close(ch)
			metrics.AddMJPEGSubscriber(stream, -1)
		})
	}
	return ch, cancel, nil
}

// Publish delivers a JPEG to every subscriber of a stream, dropping the
// oldest buffered frame of a lagging subscriber.
func (b *Broadcaster) Publish(stream string, jpeg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[stream] {
		for {
			select {
			case ch <- jpeg:
			default:
				select {
				case <-ch:
					metrics.IncPumpUnrouted("mjpeg", "subscriber_lag")
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribers reports the live subscriber count of a stream.
func (b *Broadcaster) Subscribers(stream string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[stream])
}

// Streams lists streams that currently have subscribers, sorted.
func (b *Broadcaster) Streams() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.subs))
	for name, m := range b.subs {
		if len(m) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// SPDX-License-Identifier: MIT

package detect

import (
	"sync"
	"time"

	"github.com/oakgate/oakgate/internal/metrics"
)

// FPSCounter measures inference throughput over a sliding window.
type FPSCounter struct {
	mu     sync.Mutex
	window time.Duration
	ticks  []time.Time
	now    func() time.Time
}

// NewFPSCounter creates a counter averaging over the given window.
// A zero window defaults to one second.
func NewFPSCounter(window time.Duration) *FPSCounter {
	if window <= 0 {
		window = time.Second
	}
	return &FPSCounter{window: window, now: time.Now}
}

// Tick records one completed inference.
func (c *FPSCounter) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.ticks = append(c.ticks, now)
	c.prune(now)
	metrics.SetNNFPS(c.fpsLocked(now))
}

// FPS reports frames per second over the window.
func (c *FPSCounter) FPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.prune(now)
	return c.fpsLocked(now)
}

func (c *FPSCounter) prune(now time.Time) {
	cutoff := now.Add(-c.window)
	i := 0
	for i < len(c.ticks) && c.ticks[i].Before(cutoff) {
		i++
	}
	c.ticks = c.ticks[i:]
}

func (c *FPSCounter) fpsLocked(now time.Time) float64 {
	if len(c.ticks) == 0 {
		return 0
	}
	elapsed := now.Sub(c.ticks[0])
	if elapsed <= 0 {
		// All ticks within one instant, report over the full window.
		return float64(len(c.ticks)) / c.window.Seconds()
	}
	return float64(len(c.ticks)-1) / elapsed.Seconds()
}

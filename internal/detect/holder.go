// SPDX-License-Identifier: MIT

package detect

import (
	"sync"
	"time"

	"github.com/oakgate/oakgate/internal/frame"
)

// Result is a detection batch plus the wall time it was produced.
type Result struct {
	Detections *frame.ImgDetections
	FPS        float64
	At         time.Time
}

// Holder keeps the most recent detection result for API consumers.
type Holder struct {
	mu   sync.RWMutex
	last Result
	set  bool
}

func NewHolder() *Holder {
	return &Holder{}
}

// Set replaces the held result.
func (h *Holder) Set(batch *frame.ImgDetections, fps float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = Result{Detections: batch, FPS: fps, At: time.Now()}
	h.set = true
}

// Latest returns the most recent result, or ok=false before the first Set.
func (h *Holder) Latest() (Result, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.set
}

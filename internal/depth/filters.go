// SPDX-License-Identifier: MIT

// Package depth post-processes raw16 depth and disparity frames on the host:
// median and temporal filtering, range thresholding, disparity-to-depth
// conversion, colorization and spatial location calculation.
package depth

import (
	"errors"
	"fmt"
	"math"

	"github.com/oakgate/oakgate/internal/frame"
	"github.com/oakgate/oakgate/internal/metrics"
)

var ErrNotRaw16 = errors.New("depth: frame is not raw16")

// Zero samples mark invalid depth throughout this package; every filter is
// zero-aware and never invents data where the device measured none.

func raw16Samples(f *frame.ImgFrame) ([]uint16, error) {
	if f.Type != frame.TypeRaw16 {
		return nil, fmt.Errorf("%w: %s", ErrNotRaw16, f.Type)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	out := make([]uint16, f.Width*f.Height)
	stride := f.Width * 2
	if f.Stride > 0 {
		stride = f.Stride
	}
	for y := 0; y < f.Height; y++ {
		row := f.Data[y*stride:]
		for x := 0; x < f.Width; x++ {
			out[y*f.Width+x] = uint16(row[x*2]) | uint16(row[x*2+1])<<8
		}
	}
	return out, nil
}

func samplesToFrame(src *frame.ImgFrame, samples []uint16) *frame.ImgFrame {
	data := make([]byte, len(samples)*2)
	for i, v := range samples {
		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}
	out := *src
	out.Stride = 0
	out.Data = data
	return &out
}

// MedianFilter applies a zero-aware k x k median (k in {3,5,7}). Zero
// samples neither contribute to the window nor get filled in.
func MedianFilter(f *frame.ImgFrame, kernel int) (*frame.ImgFrame, error) {
	if kernel != 3 && kernel != 5 && kernel != 7 {
		return nil, fmt.Errorf("depth: median kernel %d (want 3, 5 or 7)", kernel)
	}
	samples, err := raw16Samples(f)
	if err != nil {
		return nil, err
	}
	w, h := f.Width, f.Height
	r := kernel / 2
	out := make([]uint16, len(samples))
	window := make([]uint16, 0, kernel*kernel)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := samples[y*w+x]
			if center == 0 {
				continue
			}
			window = window[:0]
			for dy := -r; dy <= r; dy++ {
				yy := y + dy
				if yy < 0 || yy >= h {
					continue
				}
				for dx := -r; dx <= r; dx++ {
					xx := x + dx
					if xx < 0 || xx >= w {
						continue
					}
					if v := samples[yy*w+xx]; v != 0 {
						window = append(window, v)
					}
				}
			}
			out[y*w+x] = medianOf(window)
		}
	}
	metrics.IncDepthFiltered(fmt.Sprintf("median%dx%d", kernel, kernel))
	return samplesToFrame(f, out), nil
}

func medianOf(window []uint16) uint16 {
	if len(window) == 0 {
		return 0
	}
	// Insertion sort; windows hold at most 49 entries.
	for i := 1; i < len(window); i++ {
		v := window[i]
		j := i - 1
		for j >= 0 && window[j] > v {
			window[j+1] = window[j]
			j--
		}
		window[j+1] = v
	}
	return window[len(window)/2]
}

// RangeThreshold zeroes samples outside [minMM, maxMM]. A zero maxMM means
// no upper bound.
func RangeThreshold(f *frame.ImgFrame, minMM, maxMM uint16) (*frame.ImgFrame, error) {
	samples, err := raw16Samples(f)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, len(samples))
	for i, v := range samples {
		if v == 0 || v < minMM || (maxMM > 0 && v > maxMM) {
			continue
		}
		out[i] = v
	}
	metrics.IncDepthFiltered("range")
	return samplesToFrame(f, out), nil
}

// TemporalFilter smooths depth across frames with an exponential moving
// average and fills holes from recent history.
type TemporalFilter struct {
	// Alpha weighs the current frame; 1 disables smoothing.
	Alpha float64
	// Persistency is how many consecutive frames a historical sample may
	// fill a hole before it is dropped.
	Persistency int

	width, height int
	history       []float64
	age           []int
}

// NewTemporalFilter creates a temporal filter with the given alpha and
// hole-filling persistency.
func NewTemporalFilter(alpha float64, persistency int) *TemporalFilter {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.4
	}
	if persistency < 0 {
		persistency = 3
	}
	return &TemporalFilter{Alpha: alpha, Persistency: persistency}
}

// Apply folds the frame into the running average and returns the smoothed
// frame. A geometry change resets the history.
func (t *TemporalFilter) Apply(f *frame.ImgFrame) (*frame.ImgFrame, error) {
	samples, err := raw16Samples(f)
	if err != nil {
		return nil, err
	}
	if t.width != f.Width || t.height != f.Height {
		t.width, t.height = f.Width, f.Height
		t.history = make([]float64, len(samples))
		t.age = make([]int, len(samples))
	}

	out := make([]uint16, len(samples))
	for i, v := range samples {
		switch {
		case v != 0 && t.history[i] != 0:
			t.history[i] = t.Alpha*float64(v) + (1-t.Alpha)*t.history[i]
			t.age[i] = 0
		case v != 0:
			t.history[i] = float64(v)
			t.age[i] = 0
		case t.history[i] != 0 && t.age[i] < t.Persistency:
			// Hole: keep the historical value for a bounded time.
			t.age[i]++
		default:
			t.history[i] = 0
			t.age[i] = 0
		}
		if t.history[i] > 0 {
			out[i] = uint16(math.Round(t.history[i]))
		}
	}
	metrics.IncDepthFiltered("temporal")
	return samplesToFrame(f, out), nil
}

// DisparityToDepth converts a disparity frame to depth in millimetres using
// depth = focal * baseline / disparity. disparityScale is the fixed-point
// divisor of the raw samples (1 for integer disparity, 8 for subpixel).
func DisparityToDepth(f *frame.ImgFrame, focalPx, baselineMM, disparityScale float64) (*frame.ImgFrame, error) {
	if focalPx <= 0 || baselineMM <= 0 {
		return nil, fmt.Errorf("depth: focal %.2f and baseline %.2f must be positive", focalPx, baselineMM)
	}
	if disparityScale <= 0 {
		disparityScale = 1
	}
	samples, err := raw16Samples(f)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, len(samples))
	for i, v := range samples {
		if v == 0 {
			continue
		}
		d := focalPx * baselineMM / (float64(v) / disparityScale)
		if d > math.MaxUint16 {
			d = math.MaxUint16
		}
		out[i] = uint16(d)
	}
	metrics.IncDepthFiltered("disparity_to_depth")
	return samplesToFrame(f, out), nil
}

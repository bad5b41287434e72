// SPDX-License-Identifier: MIT

package depth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakgate/oakgate/internal/calib"
	"github.com/oakgate/oakgate/internal/frame"
)

func raw16Frame(w, h int, samples []uint16) *frame.ImgFrame {
	data := make([]byte, len(samples)*2)
	for i, v := range samples {
		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}
	return &frame.ImgFrame{
		Meta:   frame.Meta{Stream: "depth", Seq: 1},
		Width:  w,
		Height: h,
		Type:   frame.TypeRaw16,
		Data:   data,
	}
}

func sampleAt(t *testing.T, f *frame.ImgFrame, x, y int) uint16 {
	t.Helper()
	v, err := f.Raw16At(x, y)
	require.NoError(t, err)
	return v
}

func TestMedianFilterSuppressesSpike(t *testing.T) {
	samples := make([]uint16, 25)
	for i := range samples {
		samples[i] = 1000
	}
	samples[12] = 9000 // spike at center
	f := raw16Frame(5, 5, samples)

	out, err := MedianFilter(f, 3)
	require.NoError(t, err)
	assert.Equal(t, uint16(1000), sampleAt(t, out, 2, 2))
}

func TestMedianFilterZeroAware(t *testing.T) {
	samples := make([]uint16, 9)
	samples[4] = 1200 // lone valid center, zero neighbors
	f := raw16Frame(3, 3, samples)

	out, err := MedianFilter(f, 3)
	require.NoError(t, err)
	// Zeros never enter the window; the lone sample survives.
	assert.Equal(t, uint16(1200), sampleAt(t, out, 1, 1))
	// Holes stay holes.
	assert.Equal(t, uint16(0), sampleAt(t, out, 0, 0))

	_, err = MedianFilter(f, 4)
	assert.Error(t, err)
}

func TestRangeThreshold(t *testing.T) {
	f := raw16Frame(2, 2, []uint16{100, 1500, 4000, 0})
	out, err := RangeThreshold(f, 300, 3000)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), sampleAt(t, out, 0, 0))
	assert.Equal(t, uint16(1500), sampleAt(t, out, 1, 0))
	assert.Equal(t, uint16(0), sampleAt(t, out, 0, 1))
	assert.Equal(t, uint16(0), sampleAt(t, out, 1, 1))
}

func TestTemporalFilterSmoothsAndFillsHoles(t *testing.T) {
	tf := NewTemporalFilter(0.5, 2)

	out, err := tf.Apply(raw16Frame(1, 1, []uint16{1000}))
	require.NoError(t, err)
	assert.Equal(t, uint16(1000), sampleAt(t, out, 0, 0))

	out, err = tf.Apply(raw16Frame(1, 1, []uint16{2000}))
	require.NoError(t, err)
	assert.Equal(t, uint16(1500), sampleAt(t, out, 0, 0))

	// Two holes ride on history, the third clears it.
	for i := 0; i < 2; i++ {
		out, err = tf.Apply(raw16Frame(1, 1, []uint16{0}))
		require.NoError(t, err)
		assert.Equal(t, uint16(1500), sampleAt(t, out, 0, 0))
	}
	out, err = tf.Apply(raw16Frame(1, 1, []uint16{0}))
	require.NoError(t, err)
	assert.Equal(t, uint16(0), sampleAt(t, out, 0, 0))
}

func TestDisparityToDepth(t *testing.T) {
	// focal 450px, baseline 75mm, disparity 45 => depth 750mm
	f := raw16Frame(2, 1, []uint16{45, 0})
	out, err := DisparityToDepth(f, 450, 75, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(750), sampleAt(t, out, 0, 0))
	assert.Equal(t, uint16(0), sampleAt(t, out, 1, 0))

	_, err = DisparityToDepth(f, 0, 75, 1)
	assert.Error(t, err)
}

func TestColorize(t *testing.T) {
	f := raw16Frame(3, 1, []uint16{500, 2000, 0})
	out, err := Colorize(f, 500, 2000)
	require.NoError(t, err)
	assert.Equal(t, frame.TypeBGR888, out.Type)

	// Invalid depth renders black.
	b, g, r, err := out.BGRAt(2, 0)
	require.NoError(t, err)
	assert.Zero(t, b+g+r)

	// Near and far ends land on different palette entries.
	nb, ng, nr, _ := out.BGRAt(0, 0)
	fb, fg, fr, _ := out.BGRAt(1, 0)
	assert.NotEqual(t, [3]uint8{nb, ng, nr}, [3]uint8{fb, fg, fr})

	// Rejects non-raw16 input.
	_, err = Colorize(out, 0, 0)
	assert.ErrorIs(t, err, ErrNotRaw16)
}

func TestSpatialCalculator(t *testing.T) {
	in := calib.Intrinsics{Width: 10, Height: 10, FX: 100, FY: 100, CX: 5, CY: 5}
	calc := NewCalculator(in)

	samples := make([]uint16, 100)
	for i := range samples {
		samples[i] = 1000
	}
	f := raw16Frame(10, 10, samples)

	// Centered ROI: X and Y vanish at the principal point.
	loc, ok, err := calc.Locate(f, ROI{XMin: 0.4, YMin: 0.4, XMax: 0.6, YMax: 0.6})
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1000, loc.Z, 1)
	assert.InDelta(t, 0, loc.X, 10)
	assert.InDelta(t, 0, loc.Y, 10)

	// Offset ROI produces a positive X.
	loc, ok, err = calc.Locate(f, ROI{XMin: 0.7, YMin: 0.4, XMax: 0.9, YMax: 0.6})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Greater(t, loc.X, 0.0)

	// ROI with no valid depth.
	empty := raw16Frame(10, 10, make([]uint16, 100))
	_, ok, err = calc.Locate(empty, ROI{XMin: 0.1, YMin: 0.1, XMax: 0.3, YMax: 0.3})
	require.NoError(t, err)
	assert.False(t, ok)

	// Degenerate ROI is an error.
	_, _, err = calc.Locate(f, ROI{XMin: 1.2, YMin: 0, XMax: 1.4, YMax: 0.1})
	assert.Error(t, err)
}

// SPDX-License-Identifier: MIT

package depth

import (
	"fmt"
	"math"

	"github.com/oakgate/oakgate/internal/frame"
)

// turboAnchors sample the turbo palette; intermediate colors are linearly
// interpolated. Order is R, G, B.
var turboAnchors = [][3]float64{
	{48, 18, 59},
	{70, 107, 227},
	{40, 187, 235},
	{31, 233, 175},
	{122, 252, 82},
	{217, 220, 48},
	{253, 149, 39},
	{225, 66, 22},
	{122, 4, 3},
}

func turbo(t float64) (r, g, b uint8) {
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	pos := t * float64(len(turboAnchors)-1)
	i := int(pos)
	if i >= len(turboAnchors)-1 {
		a := turboAnchors[len(turboAnchors)-1]
		return uint8(a[0]), uint8(a[1]), uint8(a[2])
	}
	fr := pos - float64(i)
	a, c := turboAnchors[i], turboAnchors[i+1]
	return uint8(math.Round(a[0] + (c[0]-a[0])*fr)),
		uint8(math.Round(a[1] + (c[1]-a[1])*fr)),
		uint8(math.Round(a[2] + (c[2]-a[2])*fr))
}

// Colorize maps a raw16 frame onto a turbo-like palette as bgr888. Samples
// at minMM map to the near end, maxMM to the far end; zeros render black.
// A zero window autoscales to the frame's non-zero extent.
func Colorize(f *frame.ImgFrame, minMM, maxMM uint16) (*frame.ImgFrame, error) {
	samples, err := raw16Samples(f)
	if err != nil {
		return nil, err
	}

	lo, hi := float64(minMM), float64(maxMM)
	if minMM == 0 && maxMM == 0 {
		loV, hiV := uint16(math.MaxUint16), uint16(0)
		for _, v := range samples {
			if v == 0 {
				continue
			}
			if v < loV {
				loV = v
			}
			if v > hiV {
				hiV = v
			}
		}
		lo, hi = float64(loV), float64(hiV)
	}
	if hi <= lo {
		hi = lo + 1
	}

	data := make([]byte, f.Width*f.Height*3)
	for i, v := range samples {
		if v == 0 {
			continue
		}
		r, g, b := turbo((float64(v) - lo) / (hi - lo))
		data[i*3+0] = b
		data[i*3+1] = g
		data[i*3+2] = r
	}

	out := &frame.ImgFrame{
		Meta:   f.Meta,
		Width:  f.Width,
		Height: f.Height,
		Type:   frame.TypeBGR888,
		Data:   data,
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("depth: colorize: %w", err)
	}
	return out, nil
}

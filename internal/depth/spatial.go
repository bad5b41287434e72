// SPDX-License-Identifier: MIT

package depth

import (
	"fmt"
	"math"
	"sort"

	"github.com/oakgate/oakgate/internal/calib"
	"github.com/oakgate/oakgate/internal/frame"
)

// ROI is a region of interest normalized to the unit square.
type ROI struct {
	XMin, YMin, XMax, YMax float64
}

// Clamp limits the ROI to [0,1] and returns whether anything remains.
func (r ROI) Clamp() (ROI, bool) {
	out := ROI{
		XMin: math.Max(0, r.XMin),
		YMin: math.Max(0, r.YMin),
		XMax: math.Min(1, r.XMax),
		YMax: math.Min(1, r.YMax),
	}
	return out, out.XMax > out.XMin && out.YMax > out.YMin
}

// Location is a point in camera coordinates, millimetres. X grows right,
// Y grows down, Z grows away from the camera.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Calculator derives spatial locations from depth frames using the aligned
// camera's intrinsics.
type Calculator struct {
	intrinsics calib.Intrinsics
	// LowerPercentile selects which slice of the ROI's depth distribution
	// represents the object: the median of the nearest fraction. Defaults
	// to 0.3, cutting background bleed inside loose boxes.
	LowerPercentile float64
}

// NewCalculator creates a calculator for frames aligned to the camera the
// intrinsics describe. The intrinsics must be scaled to the depth frame
// geometry (calib.Intrinsics.Scaled).
func NewCalculator(in calib.Intrinsics) *Calculator {
	return &Calculator{intrinsics: in, LowerPercentile: 0.3}
}

// Locate computes the camera-space location of the ROI on a raw16 depth
// frame (millimetre samples). It returns false when the ROI holds no valid
// depth.
func (c *Calculator) Locate(f *frame.ImgFrame, roi ROI) (Location, bool, error) {
	clamped, ok := roi.Clamp()
	if !ok {
		return Location{}, false, fmt.Errorf("depth: empty roi after clamp")
	}
	samples, err := raw16Samples(f)
	if err != nil {
		return Location{}, false, err
	}

	x0 := int(clamped.XMin * float64(f.Width))
	x1 := int(clamped.XMax * float64(f.Width))
	y0 := int(clamped.YMin * float64(f.Height))
	y1 := int(clamped.YMax * float64(f.Height))
	if x1 >= f.Width {
		x1 = f.Width - 1
	}
	if y1 >= f.Height {
		y1 = f.Height - 1
	}

	var window []uint16
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if v := samples[y*f.Width+x]; v != 0 {
				window = append(window, v)
			}
		}
	}
	if len(window) == 0 {
		return Location{}, false, nil
	}

	sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
	p := c.LowerPercentile
	if p <= 0 || p > 1 {
		p = 0.3
	}
	cut := int(math.Ceil(float64(len(window)) * p))
	if cut < 1 {
		cut = 1
	}
	z := float64(window[cut/2])

	// Back-project the ROI centroid at the estimated depth.
	cx := (clamped.XMin + clamped.XMax) / 2 * float64(f.Width)
	cy := (clamped.YMin + clamped.YMax) / 2 * float64(f.Height)
	in := c.intrinsics
	loc := Location{
		X: (cx - in.CX) * z / in.FX,
		Y: (cy - in.CY) * z / in.FY,
		Z: z,
	}
	return loc, true, nil
}

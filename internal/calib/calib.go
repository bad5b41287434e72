// SPDX-License-Identifier: MIT

// Package calib models device calibration: per-socket intrinsics, stereo
// extrinsics and board metadata. Calibration is read from the device at
// session start, cached on disk, and editable over the API.
package calib

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/oakgate/oakgate/internal/graph"
)

var ErrInvalid = errors.New("calib: invalid calibration data")

// Intrinsics are the pinhole parameters of one camera at its calibration
// resolution, plus the distortion coefficients (5 to 14 terms).
type Intrinsics struct {
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	FX         float64   `json:"fx"`
	FY         float64   `json:"fy"`
	CX         float64   `json:"cx"`
	CY         float64   `json:"cy"`
	Distortion []float64 `json:"distortion,omitempty"`
}

// Scaled returns the intrinsics adjusted to a resized frame geometry.
func (in Intrinsics) Scaled(width, height int) Intrinsics {
	if in.Width == 0 || in.Height == 0 || width <= 0 || height <= 0 {
		return in
	}
	sx := float64(width) / float64(in.Width)
	sy := float64(height) / float64(in.Height)
	out := in
	out.Width = width
	out.Height = height
	out.FX *= sx
	out.CX *= sx
	out.FY *= sy
	out.CY *= sy
	return out
}

// Extrinsics describe the rigid transform between the stereo pair.
type Extrinsics struct {
	// Rotation is a row-major 3x3 matrix.
	Rotation [9]float64 `json:"rotation"`
	// Translation is in centimetres, matching EEPROM convention.
	Translation [3]float64 `json:"translation"`
}

// BaselineMM derives the stereo baseline in millimetres from the
// translation vector.
func (e Extrinsics) BaselineMM() float64 {
	t := e.Translation
	return 10 * math.Sqrt(t[0]*t[0]+t[1]*t[1]+t[2]*t[2])
}

// Data is the complete calibration block of one device.
type Data struct {
	BoardName  string                           `json:"boardName,omitempty"`
	BatchName  string                           `json:"batchName,omitempty"`
	Cameras    map[graph.BoardSocket]Intrinsics `json:"cameras"`
	Stereo     Extrinsics                       `json:"stereo"`
	// StereoBaselineMM overrides the derived baseline when set; some EEPROMs
	// store it directly.
	StereoBaselineMM float64 `json:"stereoBaselineMm,omitempty"`
}

// Baseline returns the effective stereo baseline in millimetres.
func (d *Data) Baseline() float64 {
	if d.StereoBaselineMM > 0 {
		return d.StereoBaselineMM
	}
	return d.Stereo.BaselineMM()
}

// Socket returns the intrinsics for a socket.
func (d *Data) Socket(s graph.BoardSocket) (Intrinsics, bool) {
	in, ok := d.Cameras[s]
	return in, ok
}

// Validate checks for physically plausible values: positive focal lengths,
// principal points inside the frame, a plausible baseline and a sane
// distortion term count.
func (d *Data) Validate() error {
	if len(d.Cameras) == 0 {
		return fmt.Errorf("%w: no camera intrinsics", ErrInvalid)
	}
	for socket, in := range d.Cameras {
		if in.Width <= 0 || in.Height <= 0 {
			return fmt.Errorf("%w: socket %q: geometry %dx%d", ErrInvalid, socket, in.Width, in.Height)
		}
		if in.FX <= 0 || in.FY <= 0 {
			return fmt.Errorf("%w: socket %q: focal lengths must be positive", ErrInvalid, socket)
		}
		if in.CX < 0 || in.CX > float64(in.Width) || in.CY < 0 || in.CY > float64(in.Height) {
			return fmt.Errorf("%w: socket %q: principal point outside frame", ErrInvalid, socket)
		}
		if n := len(in.Distortion); n != 0 && (n < 5 || n > 14) {
			return fmt.Errorf("%w: socket %q: %d distortion terms (want 5..14)", ErrInvalid, socket, n)
		}
	}
	if _, hasLeft := d.Cameras[graph.SocketLeft]; hasLeft {
		if _, hasRight := d.Cameras[graph.SocketRight]; hasRight {
			b := d.Baseline()
			// OAK boards range roughly 20mm (Lite) to 150mm.
			if b < 5 || b > 500 {
				return fmt.Errorf("%w: stereo baseline %.1fmm implausible", ErrInvalid, b)
			}
		}
	}
	return nil
}

// Marshal renders the calibration as indented JSON.
func (d *Data) Marshal() ([]byte, error) {
	buf, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("calib: marshal: %w", err)
	}
	return append(buf, '\n'), nil
}

// Unmarshal parses and validates a calibration blob.
func Unmarshal(data []byte) (*Data, error) {
	var d Data
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("calib: parse: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

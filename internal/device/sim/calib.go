// SPDX-License-Identifier: MIT

package sim

import (
	"github.com/oakgate/oakgate/internal/calib"
	"github.com/oakgate/oakgate/internal/graph"
)

// defaultCalib mimics an OAK-D factory calibration: 7.5cm baseline, 400p
// mono pair and a 1080p color sensor.
func defaultCalib() *calib.Data {
	mono := calib.Intrinsics{
		Width: 640, Height: 400,
		FX: 451.2, FY: 451.2, CX: 320, CY: 200,
		Distortion: []float64{-0.1, 0.02, 0, 0, 0},
	}
	return &calib.Data{
		BoardName: "OAK-D-SIM",
		BatchName: "sim",
		Cameras: map[graph.BoardSocket]calib.Intrinsics{
			graph.SocketLeft:  mono,
			graph.SocketRight: mono,
			graph.SocketRGB: {
				Width: 1920, Height: 1080,
				FX: 1480.0, FY: 1480.0, CX: 960, CY: 540,
				Distortion: []float64{0.05, -0.1, 0, 0, 0},
			},
		},
		Stereo: calib.Extrinsics{
			Rotation:    [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
			Translation: [3]float64{-7.5, 0, 0},
		},
	}
}

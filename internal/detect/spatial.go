// SPDX-License-Identifier: MIT

package detect

import (
	"github.com/oakgate/oakgate/internal/depth"
	"github.com/oakgate/oakgate/internal/frame"
)

// Enricher back-projects detection bounding boxes into 3D using a depth
// frame aligned with the detection source.
type Enricher struct {
	calc *depth.Calculator
}

func NewEnricher(calc *depth.Calculator) *Enricher {
	return &Enricher{calc: calc}
}

// Enrich fills SpatialX/Y/Z for every detection that overlaps valid depth.
// Detections over depth holes keep Spatial=false. The input batch is
// modified in place and returned.
func (e *Enricher) Enrich(batch *frame.ImgDetections, depthFrame *frame.ImgFrame) *frame.ImgDetections {
	if e == nil || e.calc == nil || depthFrame == nil {
		return batch
	}
	for i := range batch.Detections {
		det := &batch.Detections[i]
		roi := depth.ROI{XMin: det.XMin, YMin: det.YMin, XMax: det.XMax, YMax: det.YMax}
		loc, ok, err := e.calc.Locate(depthFrame, roi)
		if err != nil || !ok {
			continue
		}
		det.SpatialX = loc.X
		det.SpatialY = loc.Y
		det.SpatialZ = loc.Z
		det.Spatial = true
	}
	return batch
}

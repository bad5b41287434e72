// SPDX-License-Identifier: MIT

// Package detect consumes neural-network output from the device: it decodes
// MobileNet-SSD tensors, enriches detections with spatial coordinates,
// tracks inference throughput and annotates preview frames.
package detect

import (
	"errors"
	"fmt"

	"github.com/oakgate/oakgate/internal/frame"
	"github.com/oakgate/oakgate/internal/metrics"
)

// DefaultLabels is the PASCAL VOC class list MobileNet-SSD blobs ship with.
var DefaultLabels = []string{
	"background", "aeroplane", "bicycle", "bird", "boat", "bottle", "bus",
	"car", "cat", "chair", "cow", "diningtable", "dog", "horse", "motorbike",
	"person", "pottedplant", "sheep", "sofa", "train", "tvmonitor",
}

var ErrNoDetectionLayer = errors.New("detect: no detection output layer")

// ssdRecordLen is the per-detection float count of the SSD output layout:
// image id, label, confidence, xmin, ymin, xmax, ymax.
const ssdRecordLen = 7

// Decoder turns raw NNData into filtered, clamped detections.
type Decoder struct {
	// Threshold drops detections below this confidence.
	Threshold float64
	// Labels maps class indices to names. Nil falls back to DefaultLabels.
	Labels []string
	// LayerName selects the output tensor; empty takes the first layer.
	LayerName string
}

// NewDecoder creates a decoder with the given confidence threshold.
func NewDecoder(threshold float64) *Decoder {
	return &Decoder{Threshold: threshold, Labels: DefaultLabels}
}

func (d *Decoder) labelName(idx int) string {
	labels := d.Labels
	if labels == nil {
		labels = DefaultLabels
	}
	if idx >= 0 && idx < len(labels) {
		return labels[idx]
	}
	return fmt.Sprintf("class_%d", idx)
}

// DecodeNNData parses the SSD detection layer of raw tensor output. Records
// run until image id goes negative; malformed tails are a decode error.
func (d *Decoder) DecodeNNData(nn *frame.NNData) (*frame.ImgDetections, error) {
	var layer *frame.NNLayer
	if d.LayerName != "" {
		layer = nn.Layer(d.LayerName)
	} else if len(nn.Layers) > 0 {
		layer = &nn.Layers[0]
	}
	if layer == nil {
		metrics.IncDetectionDecodeError("missing_layer")
		return nil, ErrNoDetectionLayer
	}

	floats := layer.Floats()
	if len(floats)%ssdRecordLen != 0 {
		metrics.IncDetectionDecodeError("truncated")
		return nil, fmt.Errorf("detect: layer %q holds %d floats, not a multiple of %d",
			layer.Name, len(floats), ssdRecordLen)
	}

	out := &frame.ImgDetections{Meta: nn.Meta}
	for i := 0; i+ssdRecordLen <= len(floats); i += ssdRecordLen {
		rec := floats[i : i+ssdRecordLen]
		if rec[0] < 0 {
			break
		}
		conf := float64(rec[2])
		if conf < d.Threshold {
			continue
		}
		det := frame.Detection{
			Label:      int(rec[1]),
			Confidence: conf,
			XMin:       clamp01(float64(rec[3])),
			YMin:       clamp01(float64(rec[4])),
			XMax:       clamp01(float64(rec[5])),
			YMax:       clamp01(float64(rec[6])),
		}
		det.LabelName = d.labelName(det.Label)
		out.Detections = append(out.Detections, det)
	}

	d.count(out)
	return out, nil
}

// Normalize applies threshold, clamping and label naming to detections the
// device already decoded.
func (d *Decoder) Normalize(in *frame.ImgDetections) *frame.ImgDetections {
	out := &frame.ImgDetections{Meta: in.Meta}
	for _, det := range in.Detections {
		if det.Confidence < d.Threshold {
			continue
		}
		det.XMin = clamp01(det.XMin)
		det.YMin = clamp01(det.YMin)
		det.XMax = clamp01(det.XMax)
		det.YMax = clamp01(det.YMax)
		if det.LabelName == "" {
			det.LabelName = d.labelName(det.Label)
		}
		out.Detections = append(out.Detections, det)
	}
	d.count(out)
	return out
}

func (d *Decoder) count(batch *frame.ImgDetections) {
	labels := make([]string, 0, len(batch.Detections))
	for _, det := range batch.Detections {
		labels = append(labels, det.LabelName)
	}
	metrics.IncDetections(labels)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

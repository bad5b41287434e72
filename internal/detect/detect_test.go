// SPDX-License-Identifier: MIT

package detect

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakgate/oakgate/internal/calib"
	"github.com/oakgate/oakgate/internal/depth"
	"github.com/oakgate/oakgate/internal/frame"
)

func ssdLayer(t *testing.T, records ...[7]float32) frame.NNLayer {
	t.Helper()
	buf := make([]byte, 0, (len(records)*7+7)*4)
	for _, rec := range records {
		for _, v := range rec {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	// Terminator record.
	term := [7]float32{-1, 0, 0, 0, 0, 0, 0}
	for _, v := range term {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return frame.NNLayer{Name: "detection_out", Dims: []int{1, 1, len(records) + 1, 7}, Data: buf}
}

func TestDecodeNNData(t *testing.T) {
	dec := NewDecoder(0.5)
	nn := &frame.NNData{
		Meta: frame.Meta{Stream: "nnNet", Seq: 7},
		Layers: []frame.NNLayer{ssdLayer(t,
			[7]float32{0, 15, 0.92, 0.1, 0.2, 0.4, 0.8},
			[7]float32{0, 7, 0.31, 0.5, 0.5, 0.9, 0.9},  // below threshold
			[7]float32{0, 8, 0.66, -0.1, 0.0, 1.3, 0.7}, // needs clamping
		)},
	}

	out, err := dec.DecodeNNData(nn)
	require.NoError(t, err)
	require.Len(t, out.Detections, 2)

	person := out.Detections[0]
	assert.Equal(t, 15, person.Label)
	assert.Equal(t, "person", person.LabelName)
	assert.InDelta(t, 0.92, person.Confidence, 1e-6)

	cat := out.Detections[1]
	assert.Equal(t, "cat", cat.LabelName)
	assert.Equal(t, 0.0, cat.XMin)
	assert.Equal(t, 1.0, cat.XMax)

	assert.Equal(t, "nnNet", out.StreamName())
	assert.Equal(t, int64(7), out.Sequence())
}

func TestDecodeStopsAtTerminator(t *testing.T) {
	dec := NewDecoder(0)
	layer := ssdLayer(t, [7]float32{0, 1, 0.9, 0, 0, 1, 1})
	// Append garbage after the terminator; it must be ignored.
	tail := [7]float32{0, 2, 0.9, 0, 0, 1, 1}
	for _, v := range tail {
		layer.Data = binary.LittleEndian.AppendUint32(layer.Data, math.Float32bits(v))
	}
	out, err := dec.DecodeNNData(&frame.NNData{Layers: []frame.NNLayer{layer}})
	require.NoError(t, err)
	assert.Len(t, out.Detections, 1)
}

func TestDecodeErrors(t *testing.T) {
	dec := NewDecoder(0.5)

	_, err := dec.DecodeNNData(&frame.NNData{})
	assert.ErrorIs(t, err, ErrNoDetectionLayer)

	truncated := frame.NNLayer{Name: "detection_out", Data: make([]byte, 12)}
	_, err = dec.DecodeNNData(&frame.NNData{Layers: []frame.NNLayer{truncated}})
	assert.Error(t, err)
}

func TestDecoderLayerSelection(t *testing.T) {
	dec := NewDecoder(0)
	dec.LayerName = "detection_out"
	nn := &frame.NNData{Layers: []frame.NNLayer{
		{Name: "features", Data: make([]byte, 8)},
		ssdLayer(t, [7]float32{0, 5, 0.8, 0.1, 0.1, 0.2, 0.2}),
	}}
	out, err := dec.DecodeNNData(nn)
	require.NoError(t, err)
	assert.Len(t, out.Detections, 1)
	assert.Equal(t, "bottle", out.Detections[0].LabelName)
}

func TestNormalize(t *testing.T) {
	dec := NewDecoder(0.4)
	in := &frame.ImgDetections{Detections: []frame.Detection{
		{Label: 15, Confidence: 0.9, XMin: -0.2, XMax: 1.2, YMin: 0.1, YMax: 0.9},
		{Label: 3, Confidence: 0.1},
	}}
	out := dec.Normalize(in)
	require.Len(t, out.Detections, 1)
	assert.Equal(t, "person", out.Detections[0].LabelName)
	assert.Equal(t, 0.0, out.Detections[0].XMin)
	assert.Equal(t, 1.0, out.Detections[0].XMax)
}

func TestUnknownLabelName(t *testing.T) {
	dec := NewDecoder(0)
	assert.Equal(t, "class_99", dec.labelName(99))
}

func TestFPSCounter(t *testing.T) {
	c := NewFPSCounter(time.Second)
	base := time.Unix(1000, 0)
	clock := base
	c.now = func() time.Time { return clock }

	assert.Equal(t, 0.0, c.FPS())

	// 10 ticks, 100ms apart: 9 intervals over 900ms = 10 fps.
	for i := 0; i < 10; i++ {
		clock = base.Add(time.Duration(i) * 100 * time.Millisecond)
		c.Tick()
	}
	assert.InDelta(t, 10.0, c.FPS(), 0.1)

	// Everything ages out of the window.
	clock = base.Add(5 * time.Second)
	assert.Equal(t, 0.0, c.FPS())
}

func TestHolder(t *testing.T) {
	h := NewHolder()
	_, ok := h.Latest()
	assert.False(t, ok)

	batch := &frame.ImgDetections{Detections: []frame.Detection{{LabelName: "person"}}}
	h.Set(batch, 12.5)
	res, ok := h.Latest()
	require.True(t, ok)
	assert.Same(t, batch, res.Detections)
	assert.Equal(t, 12.5, res.FPS)
	assert.False(t, res.At.IsZero())
}

func TestEnricher(t *testing.T) {
	intr := calib.Intrinsics{Width: 4, Height: 4, FX: 450, FY: 450, CX: 2, CY: 2}
	enr := NewEnricher(depth.NewCalculator(intr))

	df := &frame.ImgFrame{
		Width: 4, Height: 4, Type: frame.TypeRaw16, Stride: 8,
		Data: make([]byte, 32),
	}
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint16(df.Data[i*2:], 1500)
	}

	batch := &frame.ImgDetections{Detections: []frame.Detection{
		{XMin: 0, YMin: 0, XMax: 1, YMax: 1},
	}}
	out := enr.Enrich(batch, df)
	require.True(t, out.Detections[0].Spatial)
	assert.InDelta(t, 1500, out.Detections[0].SpatialZ, 1)

	// Depth hole: detection stays non-spatial.
	for i := range df.Data {
		df.Data[i] = 0
	}
	batch2 := &frame.ImgDetections{Detections: []frame.Detection{
		{XMin: 0, YMin: 0, XMax: 1, YMax: 1},
	}}
	out2 := enr.Enrich(batch2, df)
	assert.False(t, out2.Detections[0].Spatial)
}

func TestAnnotate(t *testing.T) {
	a := NewAnnotator()
	f := &frame.ImgFrame{
		Width: 64, Height: 48, Type: frame.TypeBGR888, Stride: 64 * 3,
		Data: make([]byte, 64*48*3),
	}
	batch := &frame.ImgDetections{Detections: []frame.Detection{
		{LabelName: "person", Confidence: 0.9, XMin: 0.1, YMin: 0.1, XMax: 0.6, YMax: 0.8},
	}}
	out := a.Annotate(f, batch, 11.2)
	require.NotSame(t, f, out)
	assert.Equal(t, len(f.Data), len(out.Data))

	// Source stays untouched, output has painted pixels.
	allZero := true
	for _, b := range f.Data {
		if b != 0 {
			allZero = false
			break
		}
	}
	assert.True(t, allZero)

	painted := false
	for _, b := range out.Data {
		if b != 0 {
			painted = true
			break
		}
	}
	assert.True(t, painted)

	// Non-bgr frames pass through unchanged.
	gray := &frame.ImgFrame{Width: 2, Height: 2, Type: frame.TypeGray8, Stride: 2, Data: make([]byte, 4)}
	assert.Same(t, gray, a.Annotate(gray, batch, 1))
}

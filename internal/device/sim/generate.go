// SPDX-License-Identifier: MIT

package sim

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/oakgate/oakgate/internal/frame"
	"github.com/oakgate/oakgate/internal/graph"
	"github.com/oakgate/oakgate/internal/xlink"
)

// Synthetic frame geometry. Color streams mirror the 300x300 preview the
// detection network consumes; mono and depth streams use the 400p sensor mode.
const (
	colorWidth  = 300
	colorHeight = 300
	monoWidth   = 640
	monoHeight  = 400

	imuBatchSize = 10
)

// generate emits deterministic synthetic messages for one stream until ctx
// is canceled.
func (ss *session) generate(ctx context.Context, info graph.StreamInfo) error {
	fps := info.FPSLimit
	if fps <= 0 {
		fps = ss.server.opts.FPS
	}
	interval := time.Duration(float64(time.Second) / fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq int64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		msg := synthesize(info, seq, time.Now())
		seq++
		if msg == nil {
			continue
		}

		p, err := xlink.DataPacket(msg)
		if err != nil {
			return err
		}
		if err := ss.conn.WritePacket(ctx, p); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// synthesize builds the message for one tick of a stream. The content is a
// pure function of (stream, seq) so replays and assertions are reproducible.
func synthesize(info graph.StreamInfo, seq int64, now time.Time) frame.Message {
	meta := frame.Meta{Stream: info.Name, Seq: seq, DeviceTS: now, HostTS: now}

	switch info.Kind {
	case frame.KindImgFrame:
		switch info.SourceNode {
		case graph.KindStereoDepth:
			return depthCone(meta)
		case graph.KindMonoCamera:
			return monoGradient(meta, seq)
		default:
			return colorGradient(meta, seq)
		}
	case frame.KindDetections:
		return scriptedDetections(meta, seq)
	case frame.KindNNData:
		return scriptedNNData(meta, seq)
	case frame.KindIMUData:
		return imuWave(meta, seq, now)
	default:
		return nil
	}
}

// colorGradient is a bgr888 gradient that scrolls horizontally with seq.
func colorGradient(meta frame.Meta, seq int64) *frame.ImgFrame {
	data := make([]byte, colorWidth*colorHeight*3)
	shift := int(seq % colorWidth)
	for y := 0; y < colorHeight; y++ {
		row := y * colorWidth * 3
		for x := 0; x < colorWidth; x++ {
			off := row + x*3
			data[off] = byte((x + shift) * 255 / colorWidth)   // B
			data[off+1] = byte(y * 255 / colorHeight)          // G
			data[off+2] = byte(255 - (x+shift)*255/colorWidth) // R
		}
	}
	return &frame.ImgFrame{
		Meta: meta, Width: colorWidth, Height: colorHeight,
		Type: frame.TypeBGR888, Data: data,
	}
}

// monoGradient is a gray8 vertical gradient that scrolls with seq.
func monoGradient(meta frame.Meta, seq int64) *frame.ImgFrame {
	data := make([]byte, monoWidth*monoHeight)
	shift := int(seq % monoHeight)
	for y := 0; y < monoHeight; y++ {
		v := byte((y + shift) * 255 / monoHeight)
		row := y * monoWidth
		for x := 0; x < monoWidth; x++ {
			data[row+x] = v
		}
	}
	return &frame.ImgFrame{
		Meta: meta, Width: monoWidth, Height: monoHeight,
		Type: frame.TypeGray8, Data: data,
	}
}

// depthCone is a raw16 depth map: nearest at the image center, growing
// radially, in millimetres.
func depthCone(meta frame.Meta) *frame.ImgFrame {
	data := make([]byte, monoWidth*monoHeight*2)
	cx, cy := float64(monoWidth)/2, float64(monoHeight)/2
	for y := 0; y < monoHeight; y++ {
		for x := 0; x < monoWidth; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			mm := 500 + uint16(math.Sqrt(dx*dx+dy*dy)*10)
			binary.LittleEndian.PutUint16(data[(y*monoWidth+x)*2:], mm)
		}
	}
	return &frame.ImgFrame{
		Meta: meta, Width: monoWidth, Height: monoHeight,
		Type: frame.TypeRaw16, Data: data,
	}
}

// scriptedDetections sweeps one labeled box across the frame.
func scriptedDetections(meta frame.Meta, seq int64) *frame.ImgDetections {
	xmin, label := scriptPosition(seq)
	return &frame.ImgDetections{
		Meta: meta,
		Detections: []frame.Detection{{
			Label:      label,
			Confidence: 0.9,
			XMin:       xmin,
			YMin:       0.3,
			XMax:       xmin + 0.2,
			YMax:       0.7,
		}},
	}
}

// scriptedNNData is the same script in raw MobileNet-SSD tensor form.
func scriptedNNData(meta frame.Meta, seq int64) *frame.NNData {
	xmin, label := scriptPosition(seq)
	records := []float32{
		0, float32(label), 0.9, float32(xmin), 0.3, float32(xmin + 0.2), 0.7,
		-1, 0, 0, 0, 0, 0, 0,
	}
	data := make([]byte, len(records)*4)
	for i, v := range records {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return &frame.NNData{
		Meta: meta,
		Layers: []frame.NNLayer{{
			Name: "detection_out",
			Dims: []int{1, 1, len(records) / 7, 7},
			Data: data,
		}},
	}
}

func scriptPosition(seq int64) (xmin float64, label int) {
	xmin = 0.4 + 0.4*math.Sin(float64(seq)/30)
	if xmin < 0 {
		xmin = 0
	}
	label = int(seq/90)%20 + 1
	return xmin, label
}

// imuWave batches sinusoidal accelerometer and gyro readings.
func imuWave(meta frame.Meta, seq int64, now time.Time) *frame.IMUData {
	samples := make([]frame.IMUSample, imuBatchSize)
	for i := range samples {
		t := float64(seq)*imuBatchSize + float64(i)
		samples[i] = frame.IMUSample{
			AccelX: math.Sin(t / 50),
			AccelY: math.Cos(t / 50),
			AccelZ: 9.81,
			GyroX:  0.1 * math.Sin(t/25),
			GyroY:  0.1 * math.Cos(t/25),
			GyroZ:  0,
			TS:     now.Add(time.Duration(i) * time.Millisecond),
		}
	}
	return &frame.IMUData{Meta: meta, Samples: samples}
}

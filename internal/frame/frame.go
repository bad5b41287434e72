// SPDX-License-Identifier: MIT

// Package frame defines the host-side message types produced by a device
// session: image frames, decoded detections, raw neural-network tensors and
// IMU batches.
package frame

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind identifies the wire-level message family of a packet.
type Kind string

const (
	KindImgFrame   Kind = "imgframe"
	KindDetections Kind = "detections"
	KindIMUData    Kind = "imudata"
	KindNNData     Kind = "nndata"
	KindControl    Kind = "control"
)

// FrameType identifies the pixel layout of an ImgFrame payload.
type FrameType string

const (
	TypeGray8  FrameType = "gray8"  // 1 byte per pixel
	TypeBGR888 FrameType = "bgr888" // 3 bytes per pixel, B-G-R order
	TypeNV12   FrameType = "nv12"   // planar Y + interleaved UV, 3/2 bytes per pixel
	TypeRaw16  FrameType = "raw16"  // 2 bytes per pixel little-endian, depth/disparity
	TypeJPEG   FrameType = "jpeg"   // pre-encoded JPEG bitstream
)

var (
	ErrUnknownKind     = errors.New("frame: unknown message kind")
	ErrPayloadSize     = errors.New("frame: payload size does not match geometry")
	ErrUnsupportedType = errors.New("frame: unsupported frame type for operation")
)

// Message is the common surface of every decoded device message.
type Message interface {
	StreamName() string
	Sequence() int64
	// DeviceTime is the timestamp assigned by the device clock.
	DeviceTime() time.Time
	// HostTime is the arrival timestamp assigned by the host.
	HostTime() time.Time
}

// Meta carries the identity fields shared by all message types.
type Meta struct {
	Stream   string    `json:"stream"`
	Seq      int64     `json:"seq"`
	DeviceTS time.Time `json:"deviceTs"`
	HostTS   time.Time `json:"hostTs"`
}

func (m Meta) StreamName() string    { return m.Stream }
func (m Meta) Sequence() int64       { return m.Seq }
func (m Meta) DeviceTime() time.Time { return m.DeviceTS }
func (m Meta) HostTime() time.Time   { return m.HostTS }

// ImgFrame is a single image frame from a camera, stereo or encoder node.
type ImgFrame struct {
	Meta
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Type   FrameType `json:"type"`
	// Stride is the number of bytes per row of the first plane. Zero means
	// tightly packed.
	Stride int    `json:"stride,omitempty"`
	Data   []byte `json:"-"`
}

// rowStride returns the effective bytes-per-row for the first plane.
func (f *ImgFrame) rowStride() int {
	if f.Stride > 0 {
		return f.Stride
	}
	switch f.Type {
	case TypeGray8, TypeNV12:
		return f.Width
	case TypeBGR888:
		return f.Width * 3
	case TypeRaw16:
		return f.Width * 2
	default:
		return f.Width
	}
}

// Validate checks that the payload length matches the declared geometry.
// JPEG frames carry an opaque bitstream and always pass.
func (f *ImgFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrPayloadSize, f.Width, f.Height)
	}
	var want int
	switch f.Type {
	case TypeGray8:
		want = f.rowStride() * f.Height
	case TypeBGR888:
		want = f.rowStride() * f.Height
	case TypeRaw16:
		want = f.rowStride() * f.Height
	case TypeNV12:
		want = f.rowStride() * f.Height * 3 / 2
	case TypeJPEG:
		if len(f.Data) == 0 {
			return fmt.Errorf("%w: empty jpeg payload", ErrPayloadSize)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedType, f.Type)
	}
	if len(f.Data) < want {
		return fmt.Errorf("%w: have %d want %d (%s %dx%d)", ErrPayloadSize, len(f.Data), want, f.Type, f.Width, f.Height)
	}
	return nil
}

// Gray8At returns the luminance value at (x, y) of a gray8 frame.
func (f *ImgFrame) Gray8At(x, y int) (uint8, error) {
	if f.Type != TypeGray8 {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, f.Type)
	}
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0, fmt.Errorf("frame: point (%d,%d) outside %dx%d", x, y, f.Width, f.Height)
	}
	return f.Data[y*f.rowStride()+x], nil
}

// Raw16At returns the 16-bit sample at (x, y) of a raw16 frame. Depth frames
// encode millimetres, disparity frames encode fixed-point disparity.
func (f *ImgFrame) Raw16At(x, y int) (uint16, error) {
	if f.Type != TypeRaw16 {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, f.Type)
	}
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0, fmt.Errorf("frame: point (%d,%d) outside %dx%d", x, y, f.Width, f.Height)
	}
	off := y*f.rowStride() + x*2
	return uint16(f.Data[off]) | uint16(f.Data[off+1])<<8, nil
}

// BGRAt returns the blue, green and red components at (x, y) of a bgr888 frame.
func (f *ImgFrame) BGRAt(x, y int) (b, g, r uint8, err error) {
	if f.Type != TypeBGR888 {
		return 0, 0, 0, fmt.Errorf("%w: %s", ErrUnsupportedType, f.Type)
	}
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0, 0, 0, fmt.Errorf("frame: point (%d,%d) outside %dx%d", x, y, f.Width, f.Height)
	}
	off := y*f.rowStride() + x*3
	return f.Data[off], f.Data[off+1], f.Data[off+2], nil
}

// Detection is one decoded object detection with a bounding box normalized to
// the unit square. Spatial coordinates are millimetres in the camera frame
// and are only present when depth enrichment ran.
type Detection struct {
	Label      int     `json:"label"`
	LabelName  string  `json:"labelName,omitempty"`
	Confidence float64 `json:"confidence"`
	XMin       float64 `json:"xmin"`
	YMin       float64 `json:"ymin"`
	XMax       float64 `json:"xmax"`
	YMax       float64 `json:"ymax"`

	SpatialX float64 `json:"spatialX,omitempty"`
	SpatialY float64 `json:"spatialY,omitempty"`
	SpatialZ float64 `json:"spatialZ,omitempty"`
	Spatial  bool    `json:"spatial,omitempty"`
}

// ImgDetections is a batch of detections tied to one inference input frame.
type ImgDetections struct {
	Meta
	Detections []Detection `json:"detections"`
}

// NNLayer is one raw output tensor of the neural network.
type NNLayer struct {
	Name  string `json:"name"`
	Order string `json:"order,omitempty"`
	Dims  []int  `json:"dims,omitempty"`
	Data  []byte `json:"data"`
}

// Floats interprets the layer payload as packed little-endian float32.
func (l *NNLayer) Floats() []float32 {
	out := make([]float32, len(l.Data)/4)
	for i := range out {
		off := i * 4
		bits := uint32(l.Data[off]) | uint32(l.Data[off+1])<<8 |
			uint32(l.Data[off+2])<<16 | uint32(l.Data[off+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// NNData carries the unparsed inference output of the device network.
type NNData struct {
	Meta
	Layers []NNLayer `json:"layers"`
}

// LayerNames lists the tensor names in payload order.
func (n *NNData) LayerNames() []string {
	names := make([]string, 0, len(n.Layers))
	for _, l := range n.Layers {
		names = append(names, l.Name)
	}
	return names
}

// Layer returns the named layer, or nil when absent.
func (n *NNData) Layer(name string) *NNLayer {
	for i := range n.Layers {
		if n.Layers[i].Name == name {
			return &n.Layers[i]
		}
	}
	return nil
}

// IMUSample is one accelerometer + gyroscope reading.
type IMUSample struct {
	AccelX float64   `json:"accelX"`
	AccelY float64   `json:"accelY"`
	AccelZ float64   `json:"accelZ"`
	GyroX  float64   `json:"gyroX"`
	GyroY  float64   `json:"gyroY"`
	GyroZ  float64   `json:"gyroZ"`
	TS     time.Time `json:"ts"`
}

// IMUData is a device-batched sequence of IMU samples.
type IMUData struct {
	Meta
	Samples []IMUSample `json:"samples"`
}

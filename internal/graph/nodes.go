// SPDX-License-Identifier: MIT

package graph

import "github.com/oakgate/oakgate/internal/frame"

const (
	KindMonoCamera       = "MonoCamera"
	KindColorCamera      = "ColorCamera"
	KindStereoDepth      = "StereoDepth"
	KindDetectionNetwork = "MobileNetDetectionNetwork"
	KindIMU              = "IMU"
	KindXLinkOut         = "XLinkOut"
)

// MonoCamera is a grayscale sensor source node.
type MonoCamera struct {
	*node
	socket     BoardSocket
	resolution MonoResolution
	fps        float64
	out        Output
}

// CreateMonoCamera adds a mono camera node to the pipeline.
func (p *Pipeline) CreateMonoCamera() *MonoCamera {
	c := &MonoCamera{
		node:       p.newNode(KindMonoCamera),
		resolution: Mono480P,
		fps:        30,
	}
	c.node.impl = c
	c.out = Output{node: c.node, name: "out", kind: frame.KindImgFrame}
	return c
}

// SetBoardSocket selects the physical connector. Mono cameras have no
// default and must be assigned explicitly.
func (c *MonoCamera) SetBoardSocket(s BoardSocket) { c.socket = s }

// BoardSocket returns the assigned connector.
func (c *MonoCamera) BoardSocket() BoardSocket { return c.socket }

// SetResolution selects the sensor mode.
func (c *MonoCamera) SetResolution(r MonoResolution) { c.resolution = r }

// SetFPS sets the sensor frame rate.
func (c *MonoCamera) SetFPS(fps float64) { c.fps = fps }

// Out is the gray8 frame output.
func (c *MonoCamera) Out() *Output { return &c.out }

// ColorCamera is the RGB sensor source node.
type ColorCamera struct {
	*node
	socket        BoardSocket
	resolution    ColorResolution
	previewWidth  int
	previewHeight int
	interleaved   bool
	order         ColorOrder
	fps           float64
	preview       Output
	video         Output
}

// CreateColorCamera adds a color camera node. The socket defaults to the
// single RGB connector of OAK-D style boards.
func (p *Pipeline) CreateColorCamera() *ColorCamera {
	c := &ColorCamera{
		node:          p.newNode(KindColorCamera),
		socket:        SocketRGB,
		resolution:    Color1080P,
		previewWidth:  300,
		previewHeight: 300,
		order:         OrderBGR,
		fps:           30,
	}
	c.node.impl = c
	c.preview = Output{node: c.node, name: "preview", kind: frame.KindImgFrame}
	c.video = Output{node: c.node, name: "video", kind: frame.KindImgFrame}
	return c
}

// SetPreviewSize sets the width and height of the preview output.
func (c *ColorCamera) SetPreviewSize(w, h int) {
	c.previewWidth, c.previewHeight = w, h
}

// SetInterleaved selects interleaved (HWC) versus planar (CHW) preview data.
func (c *ColorCamera) SetInterleaved(v bool) { c.interleaved = v }

// SetColorOrder selects the channel order of preview frames.
func (c *ColorCamera) SetColorOrder(o ColorOrder) { c.order = o }

// SetResolution selects the sensor mode.
func (c *ColorCamera) SetResolution(r ColorResolution) { c.resolution = r }

// SetFPS sets the sensor frame rate.
func (c *ColorCamera) SetFPS(fps float64) { c.fps = fps }

// Preview is the scaled preview-size frame output.
func (c *ColorCamera) Preview() *Output { return &c.preview }

// Video is the full-resolution frame output.
func (c *ColorCamera) Video() *Output { return &c.video }

// StereoDepth computes disparity/depth from a mono camera pair on the device.
type StereoDepth struct {
	*node
	alignSocket   BoardSocket
	confidence    int
	median        MedianFilter
	leftRightCheck bool
	extended      bool
	subpixel      bool

	left      Input
	right     Input
	depth     Output
	disparity Output
}

// CreateStereoDepth adds a stereo depth node.
func (p *Pipeline) CreateStereoDepth() *StereoDepth {
	s := &StereoDepth{
		node:       p.newNode(KindStereoDepth),
		confidence: 245,
		median:     Median5x5,
	}
	s.node.impl = s
	s.left = Input{node: s.node, name: "left", kind: frame.KindImgFrame, mandatory: true, queueSize: 8}
	s.right = Input{node: s.node, name: "right", kind: frame.KindImgFrame, mandatory: true, queueSize: 8}
	s.depth = Output{node: s.node, name: "depth", kind: frame.KindImgFrame}
	s.disparity = Output{node: s.node, name: "disparity", kind: frame.KindImgFrame}
	return s
}

// SetDepthAlign aligns the depth map to the given camera socket.
func (s *StereoDepth) SetDepthAlign(socket BoardSocket) { s.alignSocket = socket }

// SetConfidenceThreshold sets the disparity confidence cutoff (0-255).
func (s *StereoDepth) SetConfidenceThreshold(v int) { s.confidence = v }

// SetMedianFilter selects the on-device median kernel.
func (s *StereoDepth) SetMedianFilter(m MedianFilter) { s.median = m }

// SetLeftRightCheck enables the left-right consistency check.
func (s *StereoDepth) SetLeftRightCheck(v bool) { s.leftRightCheck = v }

// SetExtendedDisparity enables the extended disparity range mode.
func (s *StereoDepth) SetExtendedDisparity(v bool) { s.extended = v }

// SetSubpixel enables subpixel disparity interpolation.
func (s *StereoDepth) SetSubpixel(v bool) { s.subpixel = v }

// Left is the left mono frame input.
func (s *StereoDepth) Left() *Input { return &s.left }

// Right is the right mono frame input.
func (s *StereoDepth) Right() *Input { return &s.right }

// Depth is the raw16 depth map output (millimetres).
func (s *StereoDepth) Depth() *Output { return &s.depth }

// Disparity is the raw16 disparity map output.
func (s *StereoDepth) Disparity() *Output { return &s.disparity }

// DetectionNetwork runs MobileNet-SSD style inference on the device and
// emits decoded detections plus the raw tensors.
type DetectionNetwork struct {
	*node
	confidence float64
	threads    int
	blobPath   string
	// blobOpenVINO optionally records which OpenVINO runtime the blob was
	// compiled for, so Validate can catch a pipeline pin mismatch.
	blobOpenVINO string

	input       Input
	out         Output
	outNetwork  Output
	passthrough Output
}

// CreateDetectionNetwork adds a MobileNet detection network node.
func (p *Pipeline) CreateDetectionNetwork() *DetectionNetwork {
	n := &DetectionNetwork{
		node:       p.newNode(KindDetectionNetwork),
		confidence: 0.5,
		threads:    2,
	}
	n.node.impl = n
	n.input = Input{node: n.node, name: "input", kind: frame.KindImgFrame, mandatory: true, queueSize: 4, blocking: true}
	n.out = Output{node: n.node, name: "out", kind: frame.KindDetections}
	n.outNetwork = Output{node: n.node, name: "outNetwork", kind: frame.KindNNData}
	n.passthrough = Output{node: n.node, name: "passthrough", kind: frame.KindImgFrame}
	return n
}

// SetConfidenceThreshold drops detections below the given confidence.
func (n *DetectionNetwork) SetConfidenceThreshold(v float64) { n.confidence = v }

// SetNumInferenceThreads sets the device-side inference thread count.
func (n *DetectionNetwork) SetNumInferenceThreads(v int) { n.threads = v }

// SetBlobPath points at the compiled model blob on the host.
func (n *DetectionNetwork) SetBlobPath(path string) { n.blobPath = path }

// SetBlobOpenVINOVersion records the runtime the blob was compiled against.
func (n *DetectionNetwork) SetBlobOpenVINOVersion(v string) { n.blobOpenVINO = v }

// Input is the frame input feeding the network.
func (n *DetectionNetwork) Input() *Input { return &n.input }

// Out emits decoded detections.
func (n *DetectionNetwork) Out() *Output { return &n.out }

// OutNetwork emits the raw inference tensors.
func (n *DetectionNetwork) OutNetwork() *Output { return &n.outNetwork }

// Passthrough re-emits the exact frame the network ran on.
func (n *DetectionNetwork) Passthrough() *Output { return &n.passthrough }

// IMU is the inertial measurement source node.
type IMU struct {
	*node
	reportRate int
	batchSize  int
	out        Output
}

// CreateIMU adds an IMU node.
func (p *Pipeline) CreateIMU() *IMU {
	i := &IMU{node: p.newNode(KindIMU), reportRate: 100, batchSize: 10}
	i.node.impl = i
	i.out = Output{node: i.node, name: "out", kind: frame.KindIMUData}
	return i
}

// SetReportRate sets the sensor report rate in Hz.
func (i *IMU) SetReportRate(hz int) { i.reportRate = hz }

// SetBatchSize sets how many samples the device batches per message.
func (i *IMU) SetBatchSize(n int) { i.batchSize = n }

// Out is the batched IMU sample output.
func (i *IMU) Out() *Output { return &i.out }

// XLinkOut ships messages from the device to a named host stream.
type XLinkOut struct {
	*node
	stream   string
	fpsLimit float64
	in       Input
}

// CreateXLinkOut adds a host output node.
func (p *Pipeline) CreateXLinkOut() *XLinkOut {
	x := &XLinkOut{node: p.newNode(KindXLinkOut)}
	x.node.impl = x
	// kind left empty: an XLinkOut accepts any message kind.
	x.in = Input{node: x.node, name: "in", mandatory: true, queueSize: 8}
	return x
}

// SetStreamName names the host-side stream. Names must be unique within a
// pipeline and non-empty.
func (x *XLinkOut) SetStreamName(name string) { x.stream = name }

// StreamName returns the assigned stream name.
func (x *XLinkOut) StreamName() string { return x.stream }

// SetFPSLimit throttles the stream on the device side. Zero means unlimited.
func (x *XLinkOut) SetFPSLimit(fps float64) { x.fpsLimit = fps }

// Input is the consuming endpoint of an XLinkOut.
func (x *XLinkOut) Input() *Input { return &x.in }

// SPDX-License-Identifier: MIT

// Package graph models the camera pipeline as a DAG of processing nodes.
// A Pipeline is assembled host-side with the builder API, validated, and
// serialized for upload to the device.
package graph

import (
	"errors"
	"fmt"

	"github.com/oakgate/oakgate/internal/frame"
)

// SchemaVersion is bumped whenever the serialized pipeline layout changes
// incompatibly. The device rejects schemas it does not understand.
const SchemaVersion = 1

var (
	ErrLinkTypeMismatch = errors.New("graph: endpoint message kinds are incompatible")
	ErrInputOccupied    = errors.New("graph: input already has a producer")
	ErrCrossPipeline    = errors.New("graph: endpoints belong to different pipelines")
)

// BoardSocket identifies a physical camera connector.
type BoardSocket string

const (
	SocketAuto  BoardSocket = ""
	SocketRGB   BoardSocket = "rgb"
	SocketLeft  BoardSocket = "left"
	SocketRight BoardSocket = "right"
)

// MonoResolution enumerates the supported mono sensor modes.
type MonoResolution string

const (
	Mono400P MonoResolution = "400p"
	Mono480P MonoResolution = "480p"
	Mono720P MonoResolution = "720p"
)

// Dims returns the pixel dimensions of the sensor mode.
func (r MonoResolution) Dims() (w, h int) {
	switch r {
	case Mono400P:
		return 640, 400
	case Mono480P:
		return 640, 480
	case Mono720P:
		return 1280, 720
	}
	return 0, 0
}

// ColorResolution enumerates the supported color sensor modes.
type ColorResolution string

const (
	Color1080P ColorResolution = "1080p"
	Color4K    ColorResolution = "4k"
)

// ColorOrder is the channel order of color camera preview output.
type ColorOrder string

const (
	OrderBGR ColorOrder = "bgr"
	OrderRGB ColorOrder = "rgb"
)

// MedianFilter is the on-device depth median kernel.
type MedianFilter string

const (
	MedianOff MedianFilter = "off"
	Median3x3 MedianFilter = "3x3"
	Median5x5 MedianFilter = "5x5"
	Median7x7 MedianFilter = "7x7"
)

// Pipeline is a buildable, serializable graph of device nodes.
type Pipeline struct {
	openvino string
	nodes    []*node
	links    []*Link
}

// New creates an empty pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// SetOpenVINOVersion pins the OpenVINO runtime the device must load,
// e.g. "2022.1". Empty means the device default.
func (p *Pipeline) SetOpenVINOVersion(v string) { p.openvino = v }

// OpenVINOVersion returns the pinned runtime version.
func (p *Pipeline) OpenVINOVersion() string { return p.openvino }

// NodeCount reports how many nodes the pipeline holds.
func (p *Pipeline) NodeCount() int { return len(p.nodes) }

// Links returns the established links in creation order.
func (p *Pipeline) Links() []*Link { return p.links }

// node is the common core every concrete node embeds. impl points back at
// the concrete node so Validate and Serialize can reach the properties.
type node struct {
	p    *Pipeline
	id   int
	kind string
	impl any
}

func (p *Pipeline) newNode(kind string) *node {
	n := &node{p: p, id: len(p.nodes), kind: kind}
	p.nodes = append(p.nodes, n)
	return n
}

// StreamInfo describes one XLinkOut stream of a valid pipeline.
type StreamInfo struct {
	Name     string
	Kind     frame.Kind
	FPSLimit float64

	// SourceNode and SourceOutput identify the producer feeding the stream
	// ("ColorCamera"/"preview", "StereoDepth"/"depth", ...).
	SourceNode   string
	SourceOutput string
}

// Streams lists the XLinkOut streams with the message kind feeding each one.
// Unlinked or unnamed outputs are skipped; Validate rejects those.
func (p *Pipeline) Streams() []StreamInfo {
	var out []StreamInfo
	for _, n := range p.nodes {
		x, ok := n.impl.(*XLinkOut)
		if !ok || x.stream == "" {
			continue
		}
		for _, l := range p.links {
			if l.To == &x.in {
				out = append(out, StreamInfo{
					Name:         x.stream,
					Kind:         l.From.kind,
					FPSLimit:     x.fpsLimit,
					SourceNode:   l.From.node.kind,
					SourceOutput: l.From.name,
				})
				break
			}
		}
	}
	return out
}

// ID returns the dense, creation-ordered node identifier.
func (n *node) ID() int { return n.id }

// Kind returns the node type name used on the wire.
func (n *node) Kind() string { return n.kind }

// Output is a producing endpoint of a node. One output may feed any number
// of inputs.
type Output struct {
	node *node
	name string
	kind frame.Kind
}

// Name returns the endpoint name ("out", "preview", ...).
func (o *Output) Name() string { return o.name }

// Kind returns the message kind this endpoint emits.
func (o *Output) Kind() frame.Kind { return o.kind }

// Input is a consuming endpoint of a node. An input accepts exactly one
// producer. Queue size and blocking mirror the device-side buffering of the
// receiving node.
type Input struct {
	node      *node
	name      string
	kind      frame.Kind // empty accepts any kind
	mandatory bool

	queueSize int
	blocking  bool
	linked    bool
}

// Name returns the endpoint name.
func (in *Input) Name() string { return in.name }

// SetBlocking controls whether the device-side producer stalls when this
// input's queue is full. Non-blocking inputs drop the oldest entry instead.
func (in *Input) SetBlocking(blocking bool) { in.blocking = blocking }

// SetQueueSize sets the device-side queue length for this input.
func (in *Input) SetQueueSize(n int) {
	if n > 0 {
		in.queueSize = n
	}
}

// Link is one established producer→consumer edge.
type Link struct {
	From *Output
	To   *Input
}

// Link connects this output to the given input. It fails when the message
// kinds are incompatible, when the input already has a producer, or when the
// endpoints belong to different pipelines.
func (o *Output) Link(in *Input) error {
	if o.node.p != in.node.p {
		return ErrCrossPipeline
	}
	if in.kind != "" && o.kind != in.kind {
		return fmt.Errorf("%w: %s.%s (%s) -> %s.%s (%s)",
			ErrLinkTypeMismatch, o.node.kind, o.name, o.kind, in.node.kind, in.name, in.kind)
	}
	if in.linked {
		return fmt.Errorf("%w: %s.%s", ErrInputOccupied, in.node.kind, in.name)
	}
	in.linked = true
	o.node.p.links = append(o.node.p.links, &Link{From: o, To: in})
	return nil
}

// SPDX-License-Identifier: MIT

package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The wire schema is deliberately struct-based: field order is fixed, nodes
// are emitted in id order and links in creation order, so an unchanged graph
// serializes to identical bytes.

type wirePipeline struct {
	SchemaVersion   int        `json:"schemaVersion"`
	OpenVINOVersion string     `json:"openvinoVersion,omitempty"`
	Nodes           []wireNode `json:"nodes"`
	Links           []wireLink `json:"links"`
}

type wireNode struct {
	ID         int             `json:"id"`
	Kind       string          `json:"kind"`
	Properties json.RawMessage `json:"properties"`
}

type wireEndpoint struct {
	Node int    `json:"node"`
	Name string `json:"name"`
}

type wireLink struct {
	From      wireEndpoint `json:"from"`
	To        wireEndpoint `json:"to"`
	QueueSize int          `json:"queueSize"`
	Blocking  bool         `json:"blocking"`
}

type monoProps struct {
	Socket     BoardSocket    `json:"socket"`
	Resolution MonoResolution `json:"resolution"`
	FPS        float64        `json:"fps"`
}

type colorProps struct {
	Socket        BoardSocket     `json:"socket"`
	Resolution    ColorResolution `json:"resolution"`
	PreviewWidth  int             `json:"previewWidth"`
	PreviewHeight int             `json:"previewHeight"`
	Interleaved   bool            `json:"interleaved"`
	ColorOrder    ColorOrder      `json:"colorOrder"`
	FPS           float64         `json:"fps"`
}

type stereoProps struct {
	AlignSocket    BoardSocket  `json:"alignSocket,omitempty"`
	Confidence     int          `json:"confidence"`
	Median         MedianFilter `json:"median"`
	LeftRightCheck bool         `json:"leftRightCheck"`
	Extended       bool         `json:"extended"`
	Subpixel       bool         `json:"subpixel"`
}

type nnProps struct {
	Confidence   float64 `json:"confidence"`
	Threads      int     `json:"threads"`
	BlobPath     string  `json:"blobPath"`
	BlobOpenVINO string  `json:"blobOpenVINO,omitempty"`
}

type imuProps struct {
	ReportRate int `json:"reportRate"`
	BatchSize  int `json:"batchSize"`
}

type xlinkOutProps struct {
	Stream   string  `json:"stream"`
	FPSLimit float64 `json:"fpsLimit"`
}

// Serialize renders the pipeline as the device upload schema. The output is
// byte-stable for an unchanged graph.
func (p *Pipeline) Serialize() ([]byte, error) {
	wp := wirePipeline{
		SchemaVersion:   SchemaVersion,
		OpenVINOVersion: p.openvino,
		Nodes:           make([]wireNode, 0, len(p.nodes)),
		Links:           make([]wireLink, 0, len(p.links)),
	}

	for _, n := range p.nodes {
		var props any
		switch impl := n.impl.(type) {
		case *MonoCamera:
			props = monoProps{Socket: impl.socket, Resolution: impl.resolution, FPS: impl.fps}
		case *ColorCamera:
			props = colorProps{
				Socket: impl.socket, Resolution: impl.resolution,
				PreviewWidth: impl.previewWidth, PreviewHeight: impl.previewHeight,
				Interleaved: impl.interleaved, ColorOrder: impl.order, FPS: impl.fps,
			}
		case *StereoDepth:
			props = stereoProps{
				AlignSocket: impl.alignSocket, Confidence: impl.confidence, Median: impl.median,
				LeftRightCheck: impl.leftRightCheck, Extended: impl.extended, Subpixel: impl.subpixel,
			}
		case *DetectionNetwork:
			props = nnProps{
				Confidence: impl.confidence, Threads: impl.threads,
				BlobPath: impl.blobPath, BlobOpenVINO: impl.blobOpenVINO,
			}
		case *IMU:
			props = imuProps{ReportRate: impl.reportRate, BatchSize: impl.batchSize}
		case *XLinkOut:
			props = xlinkOutProps{Stream: impl.stream, FPSLimit: impl.fpsLimit}
		default:
			return nil, fmt.Errorf("graph: node %d has unknown kind %q", n.id, n.kind)
		}
		raw, err := json.Marshal(props)
		if err != nil {
			return nil, fmt.Errorf("graph: marshal node %d properties: %w", n.id, err)
		}
		wp.Nodes = append(wp.Nodes, wireNode{ID: n.id, Kind: n.kind, Properties: raw})
	}

	for _, l := range p.links {
		wp.Links = append(wp.Links, wireLink{
			From:      wireEndpoint{Node: l.From.node.id, Name: l.From.name},
			To:        wireEndpoint{Node: l.To.node.id, Name: l.To.name},
			QueueSize: l.To.queueSize,
			Blocking:  l.To.blocking,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(wp); err != nil {
		return nil, fmt.Errorf("graph: encode pipeline: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse reconstructs a pipeline from its serialized form. The result is
// structurally equivalent to the builder-made original: Serialize(Parse(b))
// reproduces b for schema-conforming input.
func Parse(data []byte) (*Pipeline, error) {
	var wp wirePipeline
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wp); err != nil {
		return nil, fmt.Errorf("graph: parse pipeline: %w", err)
	}
	if wp.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("graph: unsupported schema version %d (host speaks %d)", wp.SchemaVersion, SchemaVersion)
	}

	p := New()
	p.SetOpenVINOVersion(wp.OpenVINOVersion)

	for i, wn := range wp.Nodes {
		if wn.ID != i {
			return nil, fmt.Errorf("graph: node ids must be dense and ordered, got %d at position %d", wn.ID, i)
		}
		if err := p.parseNode(wn); err != nil {
			return nil, err
		}
	}

	for _, wl := range wp.Links {
		out, err := p.outputByEndpoint(wl.From)
		if err != nil {
			return nil, err
		}
		in, err := p.inputByEndpoint(wl.To)
		if err != nil {
			return nil, err
		}
		in.SetQueueSize(wl.QueueSize)
		in.SetBlocking(wl.Blocking)
		if err := out.Link(in); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Pipeline) parseNode(wn wireNode) error {
	unmarshal := func(v any) error {
		if err := json.Unmarshal(wn.Properties, v); err != nil {
			return fmt.Errorf("graph: node %d (%s) properties: %w", wn.ID, wn.Kind, err)
		}
		return nil
	}
	switch wn.Kind {
	case KindMonoCamera:
		var pr monoProps
		if err := unmarshal(&pr); err != nil {
			return err
		}
		c := p.CreateMonoCamera()
		c.SetBoardSocket(pr.Socket)
		c.SetResolution(pr.Resolution)
		c.SetFPS(pr.FPS)
	case KindColorCamera:
		var pr colorProps
		if err := unmarshal(&pr); err != nil {
			return err
		}
		c := p.CreateColorCamera()
		c.socket = pr.Socket
		c.SetResolution(pr.Resolution)
		c.SetPreviewSize(pr.PreviewWidth, pr.PreviewHeight)
		c.SetInterleaved(pr.Interleaved)
		c.SetColorOrder(pr.ColorOrder)
		c.SetFPS(pr.FPS)
	case KindStereoDepth:
		var pr stereoProps
		if err := unmarshal(&pr); err != nil {
			return err
		}
		s := p.CreateStereoDepth()
		s.SetDepthAlign(pr.AlignSocket)
		s.SetConfidenceThreshold(pr.Confidence)
		s.SetMedianFilter(pr.Median)
		s.SetLeftRightCheck(pr.LeftRightCheck)
		s.SetExtendedDisparity(pr.Extended)
		s.SetSubpixel(pr.Subpixel)
	case KindDetectionNetwork:
		var pr nnProps
		if err := unmarshal(&pr); err != nil {
			return err
		}
		n := p.CreateDetectionNetwork()
		n.SetConfidenceThreshold(pr.Confidence)
		n.SetNumInferenceThreads(pr.Threads)
		n.SetBlobPath(pr.BlobPath)
		n.SetBlobOpenVINOVersion(pr.BlobOpenVINO)
	case KindIMU:
		var pr imuProps
		if err := unmarshal(&pr); err != nil {
			return err
		}
		i := p.CreateIMU()
		i.SetReportRate(pr.ReportRate)
		i.SetBatchSize(pr.BatchSize)
	case KindXLinkOut:
		var pr xlinkOutProps
		if err := unmarshal(&pr); err != nil {
			return err
		}
		x := p.CreateXLinkOut()
		x.SetStreamName(pr.Stream)
		x.SetFPSLimit(pr.FPSLimit)
	default:
		return fmt.Errorf("graph: node %d has unknown kind %q", wn.ID, wn.Kind)
	}
	return nil
}

func (p *Pipeline) outputByEndpoint(ep wireEndpoint) (*Output, error) {
	if ep.Node < 0 || ep.Node >= len(p.nodes) {
		return nil, fmt.Errorf("graph: link references unknown node %d", ep.Node)
	}
	n := p.nodes[ep.Node]
	var outs []*Output
	switch impl := n.impl.(type) {
	case *MonoCamera:
		outs = []*Output{&impl.out}
	case *ColorCamera:
		outs = []*Output{&impl.preview, &impl.video}
	case *StereoDepth:
		outs = []*Output{&impl.depth, &impl.disparity}
	case *DetectionNetwork:
		outs = []*Output{&impl.out, &impl.outNetwork, &impl.passthrough}
	case *IMU:
		outs = []*Output{&impl.out}
	}
	for _, o := range outs {
		if o.name == ep.Name {
			return o, nil
		}
	}
	return nil, fmt.Errorf("graph: node %d (%s) has no output %q", n.id, n.kind, ep.Name)
}

func (p *Pipeline) inputByEndpoint(ep wireEndpoint) (*Input, error) {
	if ep.Node < 0 || ep.Node >= len(p.nodes) {
		return nil, fmt.Errorf("graph: link references unknown node %d", ep.Node)
	}
	n := p.nodes[ep.Node]
	for _, in := range p.inputsOf(n) {
		if in.name == ep.Name {
			return in, nil
		}
	}
	return nil, fmt.Errorf("graph: node %d (%s) has no input %q", n.id, n.kind, ep.Name)
}

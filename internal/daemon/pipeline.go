// SPDX-License-Identifier: MIT

package daemon

import (
	"fmt"

	"github.com/oakgate/oakgate/internal/config"
	"github.com/oakgate/oakgate/internal/graph"
)

// Default host stream names. The pump and the API refer to streams by
// these names; the pipeline builder is their single source.
const (
	StreamRGB   = "rgb"
	StreamLeft  = "left"
	StreamRight = "right"
	StreamDepth = "depth"
	StreamNN    = "nn"
	StreamNNRaw = "nnNet"
)

// BuildPipeline assembles the default camera pipeline from configuration:
// a color preview stream, the mono pair, optional on-device stereo depth,
// and an optional detection network on the preview.
func BuildPipeline(cfg config.AppConfig) (*graph.Pipeline, error) {
	pc := cfg.Pipeline
	p := graph.New()

	rgb := p.CreateColorCamera()
	rgb.SetPreviewSize(pc.PreviewWidth, pc.PreviewHeight)
	rgb.SetInterleaved(false)
	rgb.SetColorOrder(graph.OrderBGR)
	if pc.FPS > 0 {
		rgb.SetFPS(pc.FPS)
	}

	left := p.CreateMonoCamera()
	right := p.CreateMonoCamera()
	left.SetBoardSocket(graph.SocketLeft)
	right.SetBoardSocket(graph.SocketRight)
	if pc.MonoResolution != "" {
		res := graph.MonoResolution(pc.MonoResolution)
		left.SetResolution(res)
		right.SetResolution(res)
	}
	if pc.FPS > 0 {
		left.SetFPS(pc.FPS)
		right.SetFPS(pc.FPS)
	}

	xRGB := p.CreateXLinkOut()
	xRGB.SetStreamName(StreamRGB)
	if err := rgb.Preview().Link(xRGB.Input()); err != nil {
		return nil, fmt.Errorf("daemon: link rgb: %w", err)
	}

	xLeft := p.CreateXLinkOut()
	xLeft.SetStreamName(StreamLeft)
	xRight := p.CreateXLinkOut()
	xRight.SetStreamName(StreamRight)
	if err := left.Out().Link(xLeft.Input()); err != nil {
		return nil, fmt.Errorf("daemon: link left: %w", err)
	}
	if err := right.Out().Link(xRight.Input()); err != nil {
		return nil, fmt.Errorf("daemon: link right: %w", err)
	}

	if pc.DepthEnabled {
		stereo := p.CreateStereoDepth()
		stereo.SetDepthAlign(graph.SocketRight)
		stereo.SetLeftRightCheck(true)
		stereo.SetMedianFilter(medianFromKernel(pc.DepthMedian))
		if err := left.Out().Link(stereo.Left()); err != nil {
			return nil, fmt.Errorf("daemon: link stereo left: %w", err)
		}
		if err := right.Out().Link(stereo.Right()); err != nil {
			return nil, fmt.Errorf("daemon: link stereo right: %w", err)
		}

		xDepth := p.CreateXLinkOut()
		xDepth.SetStreamName(StreamDepth)
		if err := stereo.Depth().Link(xDepth.Input()); err != nil {
			return nil, fmt.Errorf("daemon: link depth: %w", err)
		}
	}

	if pc.NNBlob != "" {
		nn := p.CreateDetectionNetwork()
		nn.SetBlobPath(pc.NNBlob)
		if pc.NNConfidence > 0 {
			nn.SetConfidenceThreshold(pc.NNConfidence)
		}
		if pc.NNThreads > 0 {
			nn.SetNumInferenceThreads(pc.NNThreads)
		}
		nn.Input().SetBlocking(false)
		if err := rgb.Preview().Link(nn.Input()); err != nil {
			return nil, fmt.Errorf("daemon: link nn input: %w", err)
		}

		xNN := p.CreateXLinkOut()
		xNN.SetStreamName(StreamNN)
		if err := nn.Out().Link(xNN.Input()); err != nil {
			return nil, fmt.Errorf("daemon: link nn out: %w", err)
		}

		xRaw := p.CreateXLinkOut()
		xRaw.SetStreamName(StreamNNRaw)
		if err := nn.OutNetwork().Link(xRaw.Input()); err != nil {
			return nil, fmt.Errorf("daemon: link nn tensors: %w", err)
		}
	}

	// Blob existence is checked at startup, not per build: the API serves
	// this graph on hosts that do not carry the model file.
	if err := p.ValidateWith(graph.ValidateOptions{SkipBlobCheck: true}); err != nil {
		return nil, fmt.Errorf("daemon: pipeline: %w", err)
	}
	return p, nil
}

func medianFromKernel(kernel int) graph.MedianFilter {
	switch kernel {
	case 3:
		return graph.Median3x3
	case 7:
		return graph.Median7x7
	case 0:
		return graph.MedianOff
	default:
		return graph.Median5x5
	}
}

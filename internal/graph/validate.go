// SPDX-License-Identifier: MIT

package graph

import (
	"errors"
	"fmt"
	"os"
)

// ValidationError collects every defect found in one Validate pass so the
// caller can report them all at once.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "graph: " + e.Problems[0]
	}
	return fmt.Sprintf("graph: %d problems, first: %s", len(e.Problems), e.Problems[0])
}

// ValidateOptions tunes environment-dependent checks.
type ValidateOptions struct {
	// SkipBlobCheck disables the on-disk model blob stat, for validating
	// graphs on machines that do not carry the model files.
	SkipBlobCheck bool
}

// Validate checks the pipeline for structural and semantic defects:
// missing or conflicting board sockets, dangling mandatory inputs, duplicate
// or empty stream names, cycles, missing model blobs and OpenVINO pin
// mismatches. It returns a *ValidationError listing every problem found.
func (p *Pipeline) Validate() error {
	return p.ValidateWith(ValidateOptions{})
}

// ValidateWith is Validate with explicit options.
func (p *Pipeline) ValidateWith(opts ValidateOptions) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	sockets := map[BoardSocket]string{}
	streams := map[string]int{}
	xlinkOuts := 0

	for _, n := range p.nodes {
		switch impl := n.impl.(type) {
		case *MonoCamera:
			if impl.socket == SocketAuto {
				add("node %d (%s): board socket not set", n.id, n.kind)
			} else if prev, taken := sockets[impl.socket]; taken {
				add("node %d (%s): socket %q already used by %s", n.id, n.kind, impl.socket, prev)
			} else {
				sockets[impl.socket] = fmt.Sprintf("node %d (%s)", n.id, n.kind)
			}
			if impl.fps <= 0 {
				add("node %d (%s): fps must be positive", n.id, n.kind)
			}
		case *ColorCamera:
			if prev, taken := sockets[impl.socket]; taken {
				add("node %d (%s): socket %q already used by %s", n.id, n.kind, impl.socket, prev)
			} else {
				sockets[impl.socket] = fmt.Sprintf("node %d (%s)", n.id, n.kind)
			}
			if impl.previewWidth <= 0 || impl.previewHeight <= 0 {
				add("node %d (%s): preview size %dx%d invalid", n.id, n.kind, impl.previewWidth, impl.previewHeight)
			}
			if impl.fps <= 0 {
				add("node %d (%s): fps must be positive", n.id, n.kind)
			}
		case *StereoDepth:
			if impl.confidence < 0 || impl.confidence > 255 {
				add("node %d (%s): confidence threshold %d outside 0..255", n.id, n.kind, impl.confidence)
			}
		case *DetectionNetwork:
			if impl.confidence < 0 || impl.confidence > 1 {
				add("node %d (%s): confidence threshold %.2f outside 0..1", n.id, n.kind, impl.confidence)
			}
			if impl.threads <= 0 {
				add("node %d (%s): inference threads must be positive", n.id, n.kind)
			}
			if impl.blobPath == "" {
				add("node %d (%s): blob path not set", n.id, n.kind)
			} else if !opts.SkipBlobCheck {
				if _, err := os.Stat(impl.blobPath); err != nil {
					add("node %d (%s): blob not readable: %v", n.id, n.kind, err)
				}
			}
			if impl.blobOpenVINO != "" && p.openvino != "" && impl.blobOpenVINO != p.openvino {
				add("node %d (%s): blob compiled for OpenVINO %s but pipeline pins %s",
					n.id, n.kind, impl.blobOpenVINO, p.openvino)
			}
		case *IMU:
			if impl.reportRate <= 0 || impl.batchSize <= 0 {
				add("node %d (%s): report rate and batch size must be positive", n.id, n.kind)
			}
		case *XLinkOut:
			xlinkOuts++
			if impl.stream == "" {
				add("node %d (%s): stream name not set", n.id, n.kind)
			} else {
				streams[impl.stream]++
			}
		}
	}

	if xlinkOuts == 0 {
		add("pipeline has no XLinkOut node, nothing would reach the host")
	}
	for name, count := range streams {
		if count > 1 {
			add("stream name %q used by %d XLinkOut nodes", name, count)
		}
	}

	// Dangling mandatory inputs.
	for _, n := range p.nodes {
		for _, in := range p.inputsOf(n) {
			if in.mandatory && !in.linked {
				add("node %d (%s): mandatory input %q is not linked", n.id, n.kind, in.name)
			}
		}
	}

	if cycle := p.findCycle(); cycle != nil {
		add("link cycle through node %d (%s)", cycle.id, cycle.kind)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (p *Pipeline) inputsOf(n *node) []*Input {
	switch impl := n.impl.(type) {
	case *StereoDepth:
		return []*Input{&impl.left, &impl.right}
	case *DetectionNetwork:
		return []*Input{&impl.input}
	case *XLinkOut:
		return []*Input{&impl.in}
	default:
		return nil
	}
}

// findCycle runs a three-color DFS over the link graph and returns a node on
// a cycle, or nil. Device graphs are acyclic by construction of the builder
// API, but Parse accepts arbitrary link lists.
func (p *Pipeline) findCycle() *node {
	adj := make(map[int][]int)
	for _, l := range p.links {
		adj[l.From.node.id] = append(adj[l.From.node.id], l.To.node.id)
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(p.nodes))
	var found *node
	var visit func(int) bool
	visit = func(id int) bool {
		color[id] = gray
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				found = p.nodes[next]
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	for id := range p.nodes {
		if color[id] == white && visit(id) {
			return found
		}
	}
	return nil
}

// IsValidation reports whether err is a graph validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

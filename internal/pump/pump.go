// SPDX-License-Identifier: MIT

// Package pump is the daemon's streaming loop: it drains the device output
// queues and routes every message to the depth chain, the detection sink,
// the stream synchronizer, the MJPEG broadcaster and the snapshot cache.
// The pump only ever drops on slow consumers, it never blocks the link.
package pump

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/oakgate/oakgate/internal/cache"
	"github.com/oakgate/oakgate/internal/calib"
	"github.com/oakgate/oakgate/internal/depth"
	"github.com/oakgate/oakgate/internal/detect"
	"github.com/oakgate/oakgate/internal/frame"
	"github.com/oakgate/oakgate/internal/framesync"
	"github.com/oakgate/oakgate/internal/graph"
	oaklog "github.com/oakgate/oakgate/internal/log"
	"github.com/oakgate/oakgate/internal/metrics"
	"github.com/oakgate/oakgate/internal/queue"
)

// AnnotatedStream is the synthetic broadcast stream carrying color frames
// with detection overlays.
const AnnotatedStream = "annotated"

// Options configures the pump's processing chain.
type Options struct {
	DepthMedianKernel int
	DepthMinMM        uint16
	DepthMaxMM        uint16
	TemporalAlpha     float64
	TemporalFrames    int

	SpatialEnabled bool
	NNConfidence   float64

	// SyncStreams aligns the named streams into message sets; detections
	// arriving on one of them are enriched from the set's depth frame.
	SyncStreams   []string
	SyncMode      framesync.Mode
	SyncThreshold time.Duration
	SyncBuffer    int

	JPEGQuality     int
	MJPEGMaxClients int
}

// Pump routes decoded device messages. One Run call serves one device
// session; the broadcaster, detection holder and caches survive across
// sessions.
type Pump struct {
	opts        Options
	logger      zerolog.Logger
	broadcaster *Broadcaster
	snapshots   cache.Snapshots

	decoder   *detect.Decoder
	annotator *detect.Annotator
	holder    *detect.Holder
	nnFPS     *detect.FPSCounter

	mu          sync.Mutex
	sync        *framesync.Synchronizer
	temporal    *depth.TemporalFilter
	latestDepth *frame.ImgFrame
	latestColor *frame.ImgFrame
	calibData   *calib.Data
	calcs       map[[2]int]*depth.Calculator
	rates       map[string]*rateTracker
}

// New builds a pump with its long-lived sinks.
func New(opts Options, c cache.Cache) *Pump {
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = frame.DefaultJPEGQuality
	}
	if opts.NNConfidence <= 0 {
		opts.NNConfidence = 0.5
	}
	return &Pump{
		opts:        opts,
		logger:      oaklog.WithComponent("pump"),
		broadcaster: NewBroadcaster(opts.MJPEGMaxClients),
		snapshots:   cache.Snapshots{Cache: c},
		decoder:     detect.NewDecoder(opts.NNConfidence),
		annotator:   detect.NewAnnotator(),
		holder:      detect.NewHolder(),
		nnFPS:       detect.NewFPSCounter(5 * time.Second),
		calcs:       make(map[[2]int]*depth.Calculator),
		rates:       make(map[string]*rateTracker),
	}
}

// Broadcaster exposes the MJPEG fan-out for the HTTP layer.
func (p *Pump) Broadcaster() *Broadcaster { return p.broadcaster }

// Detections exposes the latest-result holder for the HTTP layer.
func (p *Pump) Detections() *detect.Holder { return p.holder }

// SetCalibration installs the calibration used for spatial enrichment.
// Called at session start with the device's (or cached) calibration.
func (p *Pump) SetCalibration(d *calib.Data) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calibData = d
	p.calcs = make(map[[2]int]*depth.Calculator)
}

// Run drains the given queues until they close or ctx is canceled.
func (p *Pump) Run(ctx context.Context, queues map[string]*queue.Queue) error {
	p.mu.Lock()
	if len(p.opts.SyncStreams) > 0 {
		p.sync = framesync.New(framesync.Options{
			Streams:    p.opts.SyncStreams,
			Mode:       p.opts.SyncMode,
			Threshold:  p.opts.SyncThreshold,
			BufferSize: p.opts.SyncBuffer,
		})
	}
	p.temporal = nil
	if p.opts.TemporalAlpha > 0 {
		p.temporal = depth.NewTemporalFilter(p.opts.TemporalAlpha, p.opts.TemporalFrames)
	}
	syn := p.sync
	p.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	drains, dctx := errgroup.WithContext(ctx)
	for name, q := range queues {
		drains.Go(func() error { return p.drain(dctx, name, q) })
	}
	if syn != nil {
		g.Go(func() error {
			p.consumeSets(ctx, syn)
			return nil
		})
	}
	g.Go(func() error {
		err := drains.Wait()
		if syn != nil {
			// Closing the synchronizer ends the set consumer.
			syn.Close()
		}
		return err
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (p *Pump) drain(ctx context.Context, stream string, q *queue.Queue) error {
	for {
		msg, err := q.Get(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		p.handle(msg)
		metrics.SetQueueDepth(stream, q.Len())
	}
}

func (p *Pump) handle(msg frame.Message) {
	stream := msg.StreamName()
	metrics.IncPumpMessage(stream)
	p.tickRate(stream)

	inSync := slices.Contains(p.opts.SyncStreams, stream)
	if inSync {
		p.mu.Lock()
		syn := p.sync
		p.mu.Unlock()
		if syn != nil {
			syn.Push(msg)
		}
	}

	switch m := msg.(type) {
	case *frame.ImgFrame:
		if m.Type == frame.TypeRaw16 {
			p.handleDepth(m)
		} else {
			p.handleColor(m)
		}

	case *frame.NNData:
		batch, err := p.decoder.DecodeNNData(m)
		if err != nil {
			metrics.IncPumpUnrouted("detect", "decode_failed")
			return
		}
		p.nnFPS.Tick()
		if !inSync {
			p.handleDetections(batch, p.currentDepth())
		}

	case *frame.ImgDetections:
		p.nnFPS.Tick()
		if !inSync {
			p.handleDetections(p.decoder.Normalize(m), p.currentDepth())
		}

	case *frame.IMUData:
		// Counted and synced; no host-side processing.

	default:
		metrics.IncPumpUnrouted("route", "unknown_type")
	}
}

// handleDepth runs the filter chain, retains the result for spatial
// enrichment and broadcasts a colorized view.
func (p *Pump) handleDepth(f *frame.ImgFrame) {
	out := f
	var err error

	if k := p.opts.DepthMedianKernel; k >= 3 {
		if out, err = depth.MedianFilter(out, k); err != nil {
			metrics.IncPumpUnrouted("depth", "median_failed")
			return
		}
	}
	if p.opts.DepthMinMM > 0 || p.opts.DepthMaxMM > 0 {
		if out, err = depth.RangeThreshold(out, p.opts.DepthMinMM, p.opts.DepthMaxMM); err != nil {
			metrics.IncPumpUnrouted("depth", "range_failed")
			return
		}
	}

	p.mu.Lock()
	temporal := p.temporal
	p.mu.Unlock()
	if temporal != nil {
		if out, err = temporal.Apply(out); err != nil {
			metrics.IncPumpUnrouted("depth", "temporal_failed")
			return
		}
	}

	p.mu.Lock()
	p.latestDepth = out
	p.mu.Unlock()

	colorized, err := depth.Colorize(out, p.opts.DepthMinMM, p.opts.DepthMaxMM)
	if err != nil {
		metrics.IncPumpUnrouted("depth", "colorize_failed")
		return
	}
	p.publishJPEG(f.Stream, colorized)
}

func (p *Pump) handleColor(f *frame.ImgFrame) {
	if f.Type == frame.TypeBGR888 {
		p.mu.Lock()
		p.latestColor = f
		p.mu.Unlock()
	}
	p.publishJPEG(f.Stream, f)
}

func (p *Pump) publishJPEG(stream string, f *frame.ImgFrame) {
	jpeg, err := f.ToJPEG(p.opts.JPEGQuality)
	if err != nil {
		metrics.IncPumpUnrouted("broadcast", "jpeg_failed")
		return
	}
	p.broadcaster.Publish(stream, jpeg)
	p.snapshots.SetSnapshot(stream, jpeg)
}

// handleDetections enriches, stores and broadcasts one detection batch.
func (p *Pump) handleDetections(batch *frame.ImgDetections, depthFrame *frame.ImgFrame) {
	if p.opts.SpatialEnabled && depthFrame != nil {
		if calc := p.calculator(depthFrame.Width, depthFrame.Height); calc != nil {
			batch = detect.NewEnricher(calc).Enrich(batch, depthFrame)
		}
	}

	fps := p.nnFPS.FPS()
	p.holder.Set(batch, fps)
	if res, ok := p.holder.Latest(); ok {
		if err := p.snapshots.SetDetections(res); err != nil {
			p.logger.Debug().Err(err).Str("event", "pump.cache_failed").Msg("detections cache write failed")
		}
	}

	p.mu.Lock()
	color := p.latestColor
	p.mu.Unlock()
	if color != nil {
		p.publishJPEG(AnnotatedStream, p.annotator.Annotate(color, batch, fps))
	}
}

// consumeSets drains aligned message sets, pairing detections with the depth
// frame of the same instant.
func (p *Pump) consumeSets(ctx context.Context, syn *framesync.Synchronizer) {
	for {
		select {
		case <-ctx.Done():
			return
		case set, ok := <-syn.Sets():
			if !ok {
				return
			}
			var batch *frame.ImgDetections
			var depthFrame *frame.ImgFrame
			for _, msg := range set.Messages {
				switch m := msg.(type) {
				case *frame.ImgDetections:
					batch = p.decoder.Normalize(m)
				case *frame.NNData:
					if b, err := p.decoder.DecodeNNData(m); err == nil {
						batch = b
					}
				case *frame.ImgFrame:
					if m.Type == frame.TypeRaw16 {
						depthFrame = m
					}
				}
			}
			if batch != nil {
				p.handleDetections(batch, depthFrame)
			}
		}
	}
}

func (p *Pump) currentDepth() *frame.ImgFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latestDepth
}

// calculator returns the spatial calculator scaled to the depth geometry,
// built lazily per frame size from the right mono camera's intrinsics.
func (p *Pump) calculator(width, height int) *depth.Calculator {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := [2]int{width, height}
	if calc, ok := p.calcs[key]; ok {
		return calc
	}
	if p.calibData == nil {
		return nil
	}
	in, ok := p.calibData.Socket(graph.SocketRight)
	if !ok {
		return nil
	}
	calc := depth.NewCalculator(in.Scaled(width, height))
	p.calcs[key] = calc
	return calc
}

// rateTracker derives a per-stream frames-per-second gauge from arrivals.
type rateTracker struct {
	count int
	since time.Time
}

func (p *Pump) tickRate(stream string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rt := p.rates[stream]
	now := time.Now()
	if rt == nil {
		rt = &rateTracker{since: now}
		p.rates[stream] = rt
	}
	rt.count++
	if elapsed := now.Sub(rt.since); elapsed >= time.Second {
		metrics.SetStreamFPS(stream, float64(rt.count)/elapsed.Seconds())
		rt.count = 0
		rt.since = now
	}
}

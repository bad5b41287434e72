// SPDX-License-Identifier: MIT

// Package sim is a virtual OAK device: a link-protocol server that accepts a
// pipeline upload and answers with deterministic synthetic streams, or with
// the packets of a recorded session in replay mode. Integration tests and
// the standalone simulator binary run it.
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/oakgate/oakgate/internal/calib"
	"github.com/oakgate/oakgate/internal/graph"
	oaklog "github.com/oakgate/oakgate/internal/log"
	"github.com/oakgate/oakgate/internal/xlink"
)

// Source yields prerecorded packets for replay mode. The recording replayer
// satisfies it.
type Source interface {
	Next(ctx context.Context) (*xlink.Packet, error)
	Close() error
}

// Options configures the virtual device.
type Options struct {
	MxID      string
	Name      string
	LinkSpeed string
	Cameras   []string

	// FPS paces synthetic streams without an XLinkOut fps limit.
	FPS float64

	// Calib is served on calib_get. Nil falls back to a plausible default.
	Calib *calib.Data

	// OpenReplay switches a session to replay mode; each started session
	// gets its own source. Nil means synthetic mode.
	OpenReplay func() (Source, error)
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.MxID == "" {
		opts.MxID = "SIM14442C10D13D0E00"
	}
	if opts.Name == "" {
		opts.Name = "oak-sim"
	}
	if opts.LinkSpeed == "" {
		opts.LinkSpeed = "SIM"
	}
	if len(opts.Cameras) == 0 {
		opts.Cameras = []string{"rgb", "left", "right"}
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Calib == nil {
		opts.Calib = defaultCalib()
	}
	return opts
}

// Server accepts device sessions on a TCP listener.
type Server struct {
	opts   Options
	ln     net.Listener
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	calibMu sync.RWMutex
	calib   *calib.Data
}

// Listen starts the simulator on addr (use "127.0.0.1:0" in tests).
func Listen(addr string, opts Options) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sim: listen: %w", err)
	}
	resolved := opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:   resolved,
		ln:     ln,
		logger: oaklog.WithComponent("sim"),
		ctx:    ctx,
		cancel: cancel,
		calib:  resolved.Calib,
	}
	s.wg.Add(1)
	go s.acceptLoop()
	s.logger.Info().
		Str("event", "sim.listen").
		Str("addr", ln.Addr().String()).
		Str("mxId", resolved.MxID).
		Msg("simulator listening")
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Close stops accepting, tears down live sessions and waits for them.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

// Calib returns the calibration the device currently serves.
func (s *Server) Calib() *calib.Data {
	s.calibMu.RLock()
	defer s.calibMu.RUnlock()
	return s.calib
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Warn().Err(err).Str("event", "sim.accept_failed").Msg("accept failed")
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(nc)
		}()
	}
}

func (s *Server) handle(nc net.Conn) {
	conn := xlink.NewConn(nc)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// Close the connection when the server shuts down so blocked reads return.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	sess := &session{server: s, conn: conn}
	if err := sess.run(ctx); err != nil &&
		!errors.Is(err, xlink.ErrClosed) && !errors.Is(err, io.EOF) && ctx.Err() == nil {
		s.logger.Warn().Err(err).Str("event", "sim.session_failed").Msg("session ended")
	}
}

// session is one host connection's state.
type session struct {
	server *Server
	conn   *xlink.Conn

	mu       sync.Mutex
	streams  []graph.StreamInfo
	running  bool
	stopGen  context.CancelFunc
	genGroup *errgroup.Group
}

func (ss *session) run(ctx context.Context) error {
	defer ss.stopStreams()

	if err := ss.hello(ctx); err != nil {
		return err
	}

	for {
		p, err := ss.conn.ReadPacket(ctx)
		if err != nil {
			return err
		}
		if !p.IsControl() {
			// Hosts never send data packets.
			if err := ss.replyError(ctx, "protocol", "unexpected data packet"); err != nil {
				return err
			}
			continue
		}
		if err := ss.dispatch(ctx, p); err != nil {
			return err
		}
	}
}

func (ss *session) hello(ctx context.Context) error {
	opts := ss.server.opts
	hello, err := xlink.Control(xlink.VerbHello, xlink.Hello{
		MxID:            opts.MxID,
		Name:            opts.Name,
		ProtocolVersion: xlink.ProtocolVersion,
		Cameras:         opts.Cameras,
		LinkSpeed:       opts.LinkSpeed,
	})
	if err != nil {
		return err
	}
	if err := ss.conn.WritePacket(ctx, hello); err != nil {
		return err
	}

	ack, err := ss.conn.ReadPacket(ctx)
	if err != nil {
		return err
	}
	if !ack.IsControl() || ack.Header.Verb != xlink.VerbHelloAck {
		return fmt.Errorf("%w: expected hello_ack, got %q", xlink.ErrProtocol, ack.Header.Verb)
	}
	return nil
}

func (ss *session) dispatch(ctx context.Context, p *xlink.Packet) error {
	switch p.Header.Verb {
	case xlink.VerbPing:
		pong, err := xlink.Control(xlink.VerbPong, nil)
		if err != nil {
			return err
		}
		return ss.conn.WritePacket(ctx, pong)

	case xlink.VerbUpload:
		return ss.handleUpload(ctx, p)

	case xlink.VerbStart:
		return ss.handleStart(ctx)

	case xlink.VerbStop:
		ss.stopStreams()
		return ss.replyOK(ctx, nil)

	case xlink.VerbCalibGet:
		data, err := ss.server.Calib().Marshal()
		if err != nil {
			return err
		}
		return ss.replyOK(ctx, json.RawMessage(data))

	case xlink.VerbCalibSet:
		newCalib, err := calib.Unmarshal(p.Payload)
		if err != nil {
			return ss.replyError(ctx, "calib_invalid", err.Error())
		}
		ss.server.calibMu.Lock()
		ss.server.calib = newCalib
		ss.server.calibMu.Unlock()
		return ss.replyOK(ctx, nil)

	default:
		return ss.replyError(ctx, "unknown_verb", p.Header.Verb)
	}
}

func (ss *session) handleUpload(ctx context.Context, p *xlink.Packet) error {
	pipeline, err := graph.Parse(p.Payload)
	if err != nil {
		return ss.replyError(ctx, "parse_failed", err.Error())
	}
	// The device has no filesystem; skip the blob-path existence check.
	if err := pipeline.ValidateWith(graph.ValidateOptions{SkipBlobCheck: true}); err != nil {
		return ss.replyError(ctx, "invalid_pipeline", err.Error())
	}

	ss.mu.Lock()
	ss.streams = pipeline.Streams()
	ss.mu.Unlock()

	ss.server.logger.Info().
		Str("event", "sim.upload").
		Int("nodes", pipeline.NodeCount()).
		Int("streams", len(pipeline.Streams())).
		Msg("pipeline accepted")
	return ss.replyOK(ctx, nil)
}

func (ss *session) handleStart(ctx context.Context) error {
	ss.mu.Lock()
	if ss.running {
		ss.mu.Unlock()
		return ss.replyError(ctx, "already_started", "streams already running")
	}
	if len(ss.streams) == 0 {
		ss.mu.Unlock()
		return ss.replyError(ctx, "no_pipeline", "upload a pipeline first")
	}

	genCtx, cancel := context.WithCancel(ctx)
	g, genCtx := errgroup.WithContext(genCtx)

	if ss.server.opts.OpenReplay != nil {
		src, err := ss.server.opts.OpenReplay()
		if err != nil {
			cancel()
			ss.mu.Unlock()
			return ss.replyError(ctx, "replay_failed", err.Error())
		}
		g.Go(func() error {
			defer func() { _ = src.Close() }()
			return ss.replayLoop(genCtx, src)
		})
	} else {
		for _, info := range ss.streams {
			g.Go(func() error { return ss.generate(genCtx, info) })
		}
	}

	ss.running = true
	ss.stopGen = cancel
	ss.genGroup = g
	ss.mu.Unlock()

	return ss.replyOK(ctx, nil)
}

func (ss *session) stopStreams() {
	ss.mu.Lock()
	cancel := ss.stopGen
	g := ss.genGroup
	ss.running = false
	ss.stopGen = nil
	ss.genGroup = nil
	ss.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if g != nil {
		_ = g.Wait()
	}
}

func (ss *session) replayLoop(ctx context.Context, src Source) error {
	for {
		p, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
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

func (ss *session) replyOK(ctx context.Context, body any) error {
	ok, err := xlink.Control(xlink.VerbOK, body)
	if err != nil {
		return err
	}
	return ss.conn.WritePacket(ctx, ok)
}

func (ss *session) replyError(ctx context.Context, code, msg string) error {
	p, err := xlink.Control(xlink.VerbError, xlink.ControlError{Code: code, Message: msg})
	if err != nil {
		return err
	}
	return ss.conn.WritePacket(ctx, p)
}

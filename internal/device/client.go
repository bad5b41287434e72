// SPDX-License-Identifier: MIT

// Package device attaches the daemon to an OAK device (or the simulator)
// over the link protocol: handshake, pipeline upload, stream dispatch and
// the session watchdog live here.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/oakgate/oakgate/internal/frame"
	"github.com/oakgate/oakgate/internal/graph"
	oaklog "github.com/oakgate/oakgate/internal/log"
	"github.com/oakgate/oakgate/internal/metrics"
	"github.com/oakgate/oakgate/internal/queue"
	"github.com/oakgate/oakgate/internal/xlink"
)

// Info describes the attached device as reported in its hello message.
type Info struct {
	MxID            string   `json:"mxId"`
	Name            string   `json:"name,omitempty"`
	ProtocolVersion int      `json:"protocolVersion"`
	Cameras         []string `json:"cameras,omitempty"`
	LinkSpeed       string   `json:"linkSpeed,omitempty"`
}

// ClientOptions configures a device session.
type ClientOptions struct {
	Addr string
	// ExpectedID pins the device MxID; empty accepts any device.
	ExpectedID   string
	AllowedHosts []string

	QueueSize     int
	QueueBlocking bool

	WatchdogInterval time.Duration
	WatchdogMisses   int

	HandshakeTimeout time.Duration
}

func (o *ClientOptions) withDefaults() ClientOptions {
	opts := *o
	if opts.QueueSize <= 0 {
		opts.QueueSize = 8
	}
	if opts.WatchdogInterval <= 0 {
		opts.WatchdogInterval = time.Second
	}
	if opts.WatchdogMisses <= 0 {
		opts.WatchdogMisses = 3
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}
	return opts
}

// Client is one attached device session. It owns the connection, the output
// queues, and the watchdog; a session is used once and discarded.
type Client struct {
	opts   ClientOptions
	policy *HostPolicy
	logger zerolog.Logger

	conn *xlink.Conn
	info Info

	mu      sync.Mutex
	queues  map[string]*queue.Queue
	started bool

	// replies carries control responses to the single in-flight request.
	replies chan *xlink.Packet
	rpcMu   sync.Mutex

	missedPongs atomic.Int64

	// tap sees every raw data packet before decoding (recorder feed).
	tap atomic.Pointer[func(*xlink.Packet)]
}

// NewClient validates the options and host policy without dialing.
func NewClient(opts ClientOptions) (*Client, error) {
	policy, err := NewHostPolicy(opts.AllowedHosts)
	if err != nil {
		return nil, err
	}
	return &Client{
		opts:    opts.withDefaults(),
		policy:  policy,
		logger:  oaklog.WithComponent("device"),
		queues:  make(map[string]*queue.Queue),
		replies: make(chan *xlink.Packet, 1),
	}, nil
}

// SetTap registers a callback that observes every raw data packet. The
// callback must not block; the recorder uses a non-blocking consume.
func (c *Client) SetTap(fn func(*xlink.Packet)) {
	if fn == nil {
		c.tap.Store(nil)
		return
	}
	c.tap.Store(&fn)
}

// Info returns the device hello data. Valid after Connect.
func (c *Client) Info() Info { return c.info }

// Queue returns the output queue for a stream, created during Upload.
func (c *Client) Queue(stream string) (*queue.Queue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[stream]
	return q, ok
}

// Queues returns all output queues keyed by stream name.
func (c *Client) Queues() map[string]*queue.Queue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*queue.Queue, len(c.queues))
	for k, v := range c.queues {
		out[k] = v
	}
	return out
}

// Connect dials the device and performs the hello exchange.
func (c *Client) Connect(ctx context.Context) error {
	addr, err := c.policy.Check(c.opts.Addr)
	if err != nil {
		metrics.IncDeviceConnect(false)
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()

	conn, err := xlink.Dial(dialCtx, addr)
	if err != nil {
		metrics.IncDeviceConnect(false)
		return fmt.Errorf("device: dial: %w", err)
	}

	if err := c.handshake(dialCtx, conn); err != nil {
		_ = conn.Close()
		metrics.IncDeviceConnect(false)
		return err
	}

	c.conn = conn
	metrics.IncDeviceConnect(true)
	c.logger.Info().
		Str("event", "device.connect").
		Str("addr", addr).
		Str("mxId", c.info.MxID).
		Str("linkSpeed", c.info.LinkSpeed).
		Strs("cameras", c.info.Cameras).
		Msg("device session established")
	return nil
}

func (c *Client) handshake(ctx context.Context, conn *xlink.Conn) error {
	p, err := conn.ReadPacket(ctx)
	if err != nil {
		return fmt.Errorf("device: hello: %w", err)
	}
	if !p.IsControl() || p.Header.Verb != xlink.VerbHello {
		return fmt.Errorf("%w: expected hello, got %q", xlink.ErrProtocol, p.Header.Verb)
	}

	var hello xlink.Hello
	if err := p.DecodeJSON(&hello); err != nil {
		return err
	}
	if hello.ProtocolVersion != xlink.ProtocolVersion {
		return fmt.Errorf("%w: device speaks v%d, host speaks v%d",
			xlink.ErrVersionMismatch, hello.ProtocolVersion, xlink.ProtocolVersion)
	}
	if c.opts.ExpectedID != "" && hello.MxID != c.opts.ExpectedID {
		return fmt.Errorf("%w: got %q, want %q", ErrDeviceMismatch, hello.MxID, c.opts.ExpectedID)
	}

	ack, err := xlink.Control(xlink.VerbHelloAck, xlink.Hello{ProtocolVersion: xlink.ProtocolVersion})
	if err != nil {
		return err
	}
	if err := conn.WritePacket(ctx, ack); err != nil {
		return fmt.Errorf("device: hello ack: %w", err)
	}

	c.info = Info{
		MxID:            hello.MxID,
		Name:            hello.Name,
		ProtocolVersion: hello.ProtocolVersion,
		Cameras:         hello.Cameras,
		LinkSpeed:       hello.LinkSpeed,
	}
	return nil
}

// Upload serializes the pipeline, sends it to the device and creates one
// output queue per XLinkOut stream.
func (c *Client) Upload(ctx context.Context, p *graph.Pipeline) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	data, err := p.Serialize()
	if err != nil {
		return fmt.Errorf("device: serialize pipeline: %w", err)
	}

	start := time.Now()
	if _, err := c.roundTrip(ctx, xlink.VerbUpload, json.RawMessage(data)); err != nil {
		return fmt.Errorf("device: upload: %w", err)
	}
	metrics.ObserveUploadDuration(time.Since(start))

	c.mu.Lock()
	for _, s := range p.Streams() {
		c.queues[s.Name] = queue.New(s.Name, queue.Options{
			MaxSize:  c.opts.QueueSize,
			Blocking: c.opts.QueueBlocking,
		})
	}
	streams := len(c.queues)
	c.mu.Unlock()

	c.logger.Info().
		Str("event", "device.upload").
		Int("streams", streams).
		Dur("took", time.Since(start)).
		Msg("pipeline uploaded")
	return nil
}

// Start asks the device to begin streaming.
func (c *Client) Start(ctx context.Context) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if _, err := c.roundTrip(ctx, xlink.VerbStart, nil); err != nil {
		return fmt.Errorf("device: start: %w", err)
	}
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	c.logger.Info().Str("event", "device.start").Msg("streaming started")
	return nil
}

// Run pumps incoming packets into the output queues and drives the watchdog.
// It blocks until the session fails or ctx is canceled; the session is dead
// when it returns.
func (c *Client) Run(ctx context.Context) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(ctx) })
	g.Go(func() error { return c.watchdog(ctx) })
	g.Go(func() error {
		// Unblock a pending read when the session ends; a canceled context
		// does not interrupt an in-flight read on its own.
		<-ctx.Done()
		_ = c.conn.Close()
		return ctx.Err()
	})

	err := g.Wait()

	c.mu.Lock()
	for _, q := range c.queues {
		q.Close()
	}
	c.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		p, err := c.conn.ReadPacket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("device: read: %w", err)
		}

		if p.IsControl() {
			if err := c.handleControl(p); err != nil {
				return err
			}
			continue
		}

		if fn := c.tap.Load(); fn != nil {
			(*fn)(p)
		}

		msg, err := frame.Decode(p.Envelope(time.Now()), p.Payload)
		if err != nil {
			if errors.Is(err, frame.ErrUnknownKind) {
				metrics.IncLinkProtocolError("unknown_kind")
				continue
			}
			c.logger.Warn().
				Err(err).
				Str("event", "device.decode_failed").
				Str("stream", p.Header.Stream).
				Msg("dropping undecodable packet")
			continue
		}

		c.mu.Lock()
		q, ok := c.queues[p.Header.Stream]
		c.mu.Unlock()
		if !ok {
			metrics.IncQueueDropped(p.Header.Stream, "unknown_stream")
			continue
		}
		if err := q.Put(ctx, msg); err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				continue
			}
			return err
		}
	}
}

func (c *Client) handleControl(p *xlink.Packet) error {
	switch p.Header.Verb {
	case xlink.VerbPong:
		c.missedPongs.Store(0)
		return nil
	case xlink.VerbOK, xlink.VerbError:
		select {
		case c.replies <- p:
		default:
			// No request in flight. A late reply after a timeout is dropped.
			c.logger.Warn().
				Str("event", "device.stray_reply").
				Str("verb", p.Header.Verb).
				Msg("dropping unexpected control reply")
		}
		return nil
	default:
		return fmt.Errorf("%w: unexpected control verb %q", xlink.ErrProtocol, p.Header.Verb)
	}
}

func (c *Client) watchdog(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		missed := c.missedPongs.Add(1)
		if missed > int64(c.opts.WatchdogMisses) {
			c.logger.Error().
				Str("event", "device.watchdog_expired").
				Int64("missed", missed-1).
				Msg("device stopped answering pings")
			return ErrWatchdogExpired
		}
		if missed > 1 {
			metrics.IncWatchdogMiss(c.info.MxID)
		}

		ping, err := xlink.Control(xlink.VerbPing, nil)
		if err != nil {
			return err
		}
		if err := c.conn.WritePacket(ctx, ping); err != nil {
			return fmt.Errorf("device: ping: %w", err)
		}
	}
}

// roundTrip sends one control request and waits for its ok/error reply.
// Only one request may be in flight at a time.
func (c *Client) roundTrip(ctx context.Context, verb string, body any) (*xlink.Packet, error) {
	c.rpcMu.Lock()
	defer c.rpcMu.Unlock()

	req, err := xlink.Control(verb, body)
	if err != nil {
		return nil, err
	}
	if err := c.conn.WritePacket(ctx, req); err != nil {
		return nil, err
	}

	// Before Run starts the read loop (handshake phase operations like
	// upload and start) the reply must be read inline.
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	var reply *xlink.Packet
	if started {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case reply = <-c.replies:
		}
	} else {
		for {
			p, err := c.conn.ReadPacket(ctx)
			if err != nil {
				return nil, err
			}
			if !p.IsControl() {
				// Devices must not stream before start; tolerate and skip.
				continue
			}
			if p.Header.Verb == xlink.VerbPong {
				continue
			}
			reply = p
			break
		}
	}

	if reply.Header.Verb == xlink.VerbError {
		var ce xlink.ControlError
		if err := reply.DecodeJSON(&ce); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("device: %s rejected: %s (%s)", verb, ce.Message, ce.Code)
	}
	return reply, nil
}

// CalibGet fetches the device calibration blob over the control channel.
func (c *Client) CalibGet(ctx context.Context) ([]byte, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	reply, err := c.roundTrip(ctx, xlink.VerbCalibGet, nil)
	if err != nil {
		return nil, fmt.Errorf("device: calib get: %w", err)
	}
	return reply.Payload, nil
}

// CalibSet pushes a calibration blob to the device.
func (c *Client) CalibSet(ctx context.Context, data []byte) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if _, err := c.roundTrip(ctx, xlink.VerbCalibSet, json.RawMessage(data)); err != nil {
		return fmt.Errorf("device: calib set: %w", err)
	}
	return nil
}

// Stop asks the device to stop streaming. Best effort; failures are returned
// but the caller closes the session either way.
func (c *Client) Stop(ctx context.Context) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	stop, err := xlink.Control(xlink.VerbStop, nil)
	if err != nil {
		return err
	}
	if err := c.conn.WritePacket(ctx, stop); err != nil {
		return fmt.Errorf("device: stop: %w", err)
	}
	c.logger.Info().Str("event", "device.stop").Msg("streaming stopped")
	return nil
}

// Close tears the connection down.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

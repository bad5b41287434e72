// SPDX-License-Identifier: MIT

package xlink

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/oakgate/oakgate/internal/metrics"
)

// Conn is a packet-framed connection. It is safe for one concurrent reader
// and one concurrent writer.
type Conn struct {
	nc net.Conn
	br *bufio.Reader
	bw *bufio.Writer

	readMu  sync.Mutex
	writeMu sync.Mutex

	closed   atomic.Bool
	bytesIn  atomic.Int64
	bytesOut atomic.Int64
}

// NewConn wraps an established network connection.
func NewConn(nc net.Conn) *Conn {
	return &Conn{
		nc: nc,
		br: bufio.NewReaderSize(nc, 64<<10),
		bw: bufio.NewWriterSize(nc, 64<<10),
	}
}

// Dial connects to a device link endpoint.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, linkErr(ErrProtocol, "dial "+addr, "", err)
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return NewConn(nc), nil
}

// RemoteAddr reports the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// BytesRead returns the total payload+header bytes consumed.
func (c *Conn) BytesRead() int64 { return c.bytesIn.Load() }

// BytesWritten returns the total payload+header bytes produced.
func (c *Conn) BytesWritten() int64 { return c.bytesOut.Load() }

// Close shuts the connection down. Blocked reads and writes fail afterwards.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.nc.Close()
}

func (c *Conn) applyDeadline(ctx context.Context, read bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dl, _ := ctx.Deadline()
	if read {
		return c.nc.SetReadDeadline(dl)
	}
	return c.nc.SetWriteDeadline(dl)
}

// ReadPacket reads one packet, honoring the context deadline. Framing limit
// violations are protocol errors; the caller must close the connection.
func (c *Conn) ReadPacket(ctx context.Context) (*Packet, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.closed.Load() {
		return nil, linkErr(ErrClosed, "read", "", nil)
	}
	if err := c.applyDeadline(ctx, true); err != nil {
		return nil, err
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(c.br, lenBuf[:]); err != nil {
		return nil, c.readErr("read header length", err)
	}
	headerLen := binary.BigEndian.Uint32(lenBuf[:])
	if headerLen == 0 || headerLen > MaxHeaderBytes {
		metrics.IncLinkProtocolError("header_too_large")
		return nil, linkErr(ErrHeaderTooLarge, "read", "", nil)
	}

	headerBuf := make([]byte, headerLen)
	if _, err := io.ReadFull(c.br, headerBuf); err != nil {
		return nil, c.readErr("read header", err)
	}

	var h Header
	if err := json.Unmarshal(headerBuf, &h); err != nil {
		metrics.IncLinkProtocolError("bad_header")
		return nil, linkErr(ErrProtocol, "parse header", "", err)
	}
	if h.PayloadLen < 0 || h.PayloadLen > MaxPayloadBytes {
		metrics.IncLinkProtocolError("payload_too_large")
		return nil, linkErr(ErrPayloadTooLarge, "read", h.Stream, nil)
	}

	var payload []byte
	if h.PayloadLen > 0 {
		payload = make([]byte, h.PayloadLen)
		if _, err := io.ReadFull(c.br, payload); err != nil {
			return nil, c.readErr("read payload", err)
		}
	}

	c.bytesIn.Add(int64(4 + int(headerLen) + h.PayloadLen))
	metrics.IncLinkPacket("in", string(h.Kind), h.PayloadLen)
	return &Packet{Header: h, Payload: payload}, nil
}

func (c *Conn) readErr(op string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		// Deadline expiry is the caller's timeout, not a protocol defect.
		return err
	}
	if c.closed.Load() || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return linkErr(ErrClosed, op, "", err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return linkErr(ErrClosed, op, "", err)
	}
	return linkErr(ErrProtocol, op, "", err)
}

// WritePacket frames and writes one packet, honoring the context deadline.
func (c *Conn) WritePacket(ctx context.Context, p *Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return linkErr(ErrClosed, "write", p.Header.Stream, nil)
	}

	h := p.Header
	h.PayloadLen = len(p.Payload)
	headerBuf, err := json.Marshal(h)
	if err != nil {
		return linkErr(ErrProtocol, "marshal header", h.Stream, err)
	}
	if len(headerBuf) > MaxHeaderBytes {
		metrics.IncLinkProtocolError("header_too_large")
		return linkErr(ErrHeaderTooLarge, "write", h.Stream, nil)
	}
	if len(p.Payload) > MaxPayloadBytes {
		metrics.IncLinkProtocolError("payload_too_large")
		return linkErr(ErrPayloadTooLarge, "write", h.Stream, nil)
	}

	if err := c.applyDeadline(ctx, false); err != nil {
		return err
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(headerBuf)))
	if _, err := c.bw.Write(lenBuf[:]); err != nil {
		return c.writeErr("write header length", h.Stream, err)
	}
	if _, err := c.bw.Write(headerBuf); err != nil {
		return c.writeErr("write header", h.Stream, err)
	}
	if len(p.Payload) > 0 {
		if _, err := c.bw.Write(p.Payload); err != nil {
			return c.writeErr("write payload", h.Stream, err)
		}
	}
	if err := c.bw.Flush(); err != nil {
		return c.writeErr("flush", h.Stream, err)
	}

	c.bytesOut.Add(int64(4 + len(headerBuf) + len(p.Payload)))
	metrics.IncLinkPacket("out", string(h.Kind), len(p.Payload))
	return nil
}

func (c *Conn) writeErr(op, stream string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return err
	}
	if c.closed.Load() || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return linkErr(ErrClosed, op, stream, err)
	}
	return linkErr(ErrProtocol, op, stream, err)
}

// SPDX-License-Identifier: MIT

// Package xlink implements the framed message transport between the host and
// an OAK device (or the bundled simulator) over TCP.
//
// Each packet is a 4-byte big-endian header length, a JSON header, and a raw
// payload whose length the header declares. Stream "" is the control channel
// used for the handshake, pipeline upload and the watchdog.
package xlink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oakgate/oakgate/internal/frame"
)

const (
	// ProtocolVersion is negotiated in the hello exchange. Mismatches are
	// rejected at handshake time.
	ProtocolVersion = 1

	// MaxHeaderBytes bounds the JSON header. Larger headers are protocol
	// errors and close the connection.
	MaxHeaderBytes = 64 << 10

	// MaxPayloadBytes bounds the payload (raw 4K NV12 fits well under it).
	MaxPayloadBytes = 32 << 20

	// ControlStream is the reserved stream name of the control channel.
	ControlStream = ""
)

// Header is the JSON packet header.
type Header struct {
	Stream     string     `json:"stream"`
	Kind       frame.Kind `json:"kind"`
	Seq        int64      `json:"seq"`
	DeviceTS   int64      `json:"deviceTs"` // nanoseconds on the device clock
	PayloadLen int        `json:"payloadLen"`

	// Image frame metadata, present for kind "imgframe".
	Width     int             `json:"width,omitempty"`
	Height    int             `json:"height,omitempty"`
	FrameType frame.FrameType `json:"frameType,omitempty"`
	Stride    int             `json:"stride,omitempty"`

	// Verb is set for control packets ("hello", "upload", "start", ...).
	Verb string `json:"verb,omitempty"`
}

// Packet is one framed message.
type Packet struct {
	Header  Header
	Payload []byte
}

// DecodeJSON unmarshals the payload into v. Control verbs carry JSON bodies.
func (p *Packet) DecodeJSON(v any) error {
	if err := json.Unmarshal(p.Payload, v); err != nil {
		return linkErr(ErrProtocol, "decode "+p.Header.Verb, p.Header.Stream, err)
	}
	return nil
}

// Envelope maps the header into the decoder envelope, stamping hostTS as the
// arrival time.
func (p *Packet) Envelope(hostTS time.Time) frame.Envelope {
	return frame.Envelope{
		Meta: frame.Meta{
			Stream:   p.Header.Stream,
			Seq:      p.Header.Seq,
			DeviceTS: time.Unix(0, p.Header.DeviceTS),
			HostTS:   hostTS,
		},
		Kind:      p.Header.Kind,
		Width:     p.Header.Width,
		Height:    p.Header.Height,
		FrameType: p.Header.FrameType,
		Stride:    p.Header.Stride,
	}
}

// DataPacket frames a decoded message for the wire. The simulator and the
// recording replayer use it; the host never sends data packets.
func DataPacket(msg frame.Message) (*Packet, error) {
	kind, payload, err := frame.EncodePayload(msg)
	if err != nil {
		return nil, fmt.Errorf("xlink: frame message: %w", err)
	}
	h := Header{
		Stream:     msg.StreamName(),
		Kind:       kind,
		Seq:        msg.Sequence(),
		DeviceTS:   msg.DeviceTime().UnixNano(),
		PayloadLen: len(payload),
	}
	if img, ok := msg.(*frame.ImgFrame); ok {
		h.Width = img.Width
		h.Height = img.Height
		h.FrameType = img.Type
		h.Stride = img.Stride
	}
	return &Packet{Header: h, Payload: payload}, nil
}

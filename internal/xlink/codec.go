// SPDX-License-Identifier: MIT

package xlink

import (
	"encoding/binary"
	"encoding/json"
	"io"
)

// EncodePacket writes one packet in wire framing to w. Recording segments
// store packets with exactly this layout, so a replayed file is
// byte-compatible with the live link.
func EncodePacket(w io.Writer, p *Packet) (int64, error) {
	h := p.Header
	h.PayloadLen = len(p.Payload)
	headerBuf, err := json.Marshal(h)
	if err != nil {
		return 0, linkErr(ErrProtocol, "marshal header", h.Stream, err)
	}
	if len(headerBuf) > MaxHeaderBytes {
		return 0, linkErr(ErrHeaderTooLarge, "encode", h.Stream, nil)
	}
	if len(p.Payload) > MaxPayloadBytes {
		return 0, linkErr(ErrPayloadTooLarge, "encode", h.Stream, nil)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(headerBuf)))
	var n int64
	for _, chunk := range [][]byte{lenBuf[:], headerBuf, p.Payload} {
		wrote, err := w.Write(chunk)
		n += int64(wrote)
		if err != nil {
			return n, linkErr(ErrProtocol, "encode", h.Stream, err)
		}
	}
	return n, nil
}

// DecodePacket reads one wire-framed packet from r. It returns io.EOF when
// r is exhausted at a packet boundary.
func DecodePacket(r io.Reader) (*Packet, int64, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		return nil, 0, linkErr(ErrProtocol, "decode header length", "", err)
	}
	headerLen := binary.BigEndian.Uint32(lenBuf[:])
	if headerLen == 0 || headerLen > MaxHeaderBytes {
		return nil, 4, linkErr(ErrHeaderTooLarge, "decode", "", nil)
	}

	headerBuf := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, 4, linkErr(ErrProtocol, "decode header", "", err)
	}
	var h Header
	if err := json.Unmarshal(headerBuf, &h); err != nil {
		return nil, 4 + int64(headerLen), linkErr(ErrProtocol, "parse header", "", err)
	}
	if h.PayloadLen < 0 || h.PayloadLen > MaxPayloadBytes {
		return nil, 4 + int64(headerLen), linkErr(ErrPayloadTooLarge, "decode", h.Stream, nil)
	}

	var payload []byte
	if h.PayloadLen > 0 {
		payload = make([]byte, h.PayloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, 4 + int64(headerLen), linkErr(ErrProtocol, "decode payload", h.Stream, err)
		}
	}
	return &Packet{Header: h, Payload: payload}, 4 + int64(headerLen) + int64(h.PayloadLen), nil
}

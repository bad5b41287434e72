// SPDX-License-Identifier: MIT

package xlink

import (
	"encoding/json"
	"time"

	"github.com/oakgate/oakgate/internal/frame"
)

// Control verbs exchanged on the control stream.
const (
	VerbHello    = "hello"
	VerbHelloAck = "hello_ack"
	VerbUpload   = "upload"
	VerbStart    = "start"
	VerbStop     = "stop"
	VerbCalibGet = "calib_get"
	VerbCalibSet = "calib_set"
	VerbPing     = "ping"
	VerbPong     = "pong"
	VerbOK       = "ok"
	VerbError    = "error"
)

// Hello is the device's opening message after accepting a connection.
type Hello struct {
	MxID            string   `json:"mxId"`
	Name            string   `json:"name,omitempty"`
	ProtocolVersion int      `json:"protocolVersion"`
	Cameras         []string `json:"cameras,omitempty"`
	LinkSpeed       string   `json:"linkSpeed,omitempty"`
}

// ControlError is the body of an "error" control packet.
type ControlError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Control builds a control packet with an optional JSON body.
func Control(verb string, body any) (*Packet, error) {
	p := &Packet{Header: Header{
		Stream:   ControlStream,
		Kind:     frame.KindControl,
		DeviceTS: time.Now().UnixNano(),
		Verb:     verb,
	}}
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, linkErr(ErrProtocol, "marshal "+verb, ControlStream, err)
		}
		p.Payload = buf
	}
	p.Header.PayloadLen = len(p.Payload)
	return p, nil
}

// IsControl reports whether the packet travels on the control stream.
func (p *Packet) IsControl() bool {
	return p.Header.Stream == ControlStream
}

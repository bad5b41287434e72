// SPDX-License-Identifier: MIT

package frame

import (
	"encoding/json"
	"fmt"
)

// Envelope mirrors the link-layer packet header fields a decoder needs. The
// transport package maps its wire header into an Envelope so this package
// stays independent of the framing format.
type Envelope struct {
	Meta
	Kind      Kind
	Width     int
	Height    int
	FrameType FrameType
	Stride    int
}

// Decode turns a raw packet payload into a typed message. Control packets
// have no message representation and yield ErrUnknownKind, as do kinds this
// host version does not know; callers count and skip those.
func Decode(env Envelope, payload []byte) (Message, error) {
	switch env.Kind {
	case KindImgFrame:
		f := &ImgFrame{
			Meta:   env.Meta,
			Width:  env.Width,
			Height: env.Height,
			Type:   env.FrameType,
			Stride: env.Stride,
			Data:   payload,
		}
		if err := f.Validate(); err != nil {
			return nil, err
		}
		return f, nil

	case KindDetections:
		d := &ImgDetections{Meta: env.Meta}
		if err := json.Unmarshal(payload, d); err != nil {
			return nil, fmt.Errorf("frame: decode detections: %w", err)
		}
		d.Meta = env.Meta
		return d, nil

	case KindNNData:
		n := &NNData{Meta: env.Meta}
		if err := json.Unmarshal(payload, n); err != nil {
			return nil, fmt.Errorf("frame: decode nndata: %w", err)
		}
		n.Meta = env.Meta
		return n, nil

	case KindIMUData:
		m := &IMUData{Meta: env.Meta}
		if err := json.Unmarshal(payload, m); err != nil {
			return nil, fmt.Errorf("frame: decode imudata: %w", err)
		}
		m.Meta = env.Meta
		return m, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}

// EncodePayload is the inverse of Decode for the JSON message kinds. Image
// frames pass their pixel data through unchanged. The simulator and the
// recorder replay path use it to produce wire payloads.
func EncodePayload(msg Message) (Kind, []byte, error) {
	switch m := msg.(type) {
	case *ImgFrame:
		return KindImgFrame, m.Data, nil
	case *ImgDetections:
		buf, err := json.Marshal(m)
		if err != nil {
			return "", nil, fmt.Errorf("frame: encode detections: %w", err)
		}
		return KindDetections, buf, nil
	case *NNData:
		buf, err := json.Marshal(m)
		if err != nil {
			return "", nil, fmt.Errorf("frame: encode nndata: %w", err)
		}
		return KindNNData, buf, nil
	case *IMUData:
		buf, err := json.Marshal(m)
		if err != nil {
			return "", nil, fmt.Errorf("frame: encode imudata: %w", err)
		}
		return KindIMUData, buf, nil
	default:
		return "", nil, fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
}

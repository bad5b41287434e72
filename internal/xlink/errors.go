// SPDX-License-Identifier: MIT

package xlink

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrHeaderTooLarge  = errors.New("xlink: header exceeds limit")
	ErrPayloadTooLarge = errors.New("xlink: payload exceeds limit")
	ErrProtocol        = errors.New("xlink: protocol violation")
	ErrVersionMismatch = errors.New("xlink: protocol version mismatch")
	ErrClosed          = errors.New("xlink: connection closed")
)

// LinkError wraps a sentinel with the operation and stream it occurred on.
type LinkError struct {
	Sentinel error
	Op       string
	Stream   string
	Err      error
}

func (e *LinkError) Error() string {
	msg := fmt.Sprintf("xlink: %s: %v", e.Op, e.Sentinel)
	if e.Stream != "" {
		msg = fmt.Sprintf("%s (stream %q)", msg, e.Stream)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *LinkError) Unwrap() error {
	return e.Sentinel
}

func linkErr(sentinel error, op, stream string, err error) *LinkError {
	return &LinkError{Sentinel: sentinel, Op: op, Stream: stream, Err: err}
}

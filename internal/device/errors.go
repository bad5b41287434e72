// SPDX-License-Identifier: MIT

package device

import "errors"

var (
	// ErrHostNotAllowed rejects device endpoints outside the allowlist.
	ErrHostNotAllowed = errors.New("device: host not allowed")
	// ErrDeviceMismatch rejects a device whose MxID differs from the pinned ID.
	ErrDeviceMismatch = errors.New("device: unexpected device id")
	// ErrWatchdogExpired closes a session after too many missed pongs.
	ErrWatchdogExpired = errors.New("device: watchdog expired")
	// ErrNotConnected is returned by operations that need a live session.
	ErrNotConnected = errors.New("device: not connected")
	// ErrCircuitOpen blocks connection attempts while the breaker is open.
	ErrCircuitOpen = errors.New("device: circuit breaker is open")
)

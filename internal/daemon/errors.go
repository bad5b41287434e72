// SPDX-License-Identifier: MIT

package daemon

import "errors"

var (
	// ErrMissingAPIHandler is returned when no API handler is provided.
	ErrMissingAPIHandler = errors.New("API handler is required")

	// ErrManagerNotStarted is returned when shutting down a manager that never started.
	ErrManagerNotStarted = errors.New("manager not started")

	// ErrAlreadyConnected is returned when a device session is already running.
	ErrAlreadyConnected = errors.New("device session already running")

	// ErrNotConnected is returned when no device session is running.
	ErrNotConnected = errors.New("no device session running")
)

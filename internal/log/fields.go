// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID   = "session_id"
	FieldRequestID   = "request_id"
	FieldDeviceID    = "device_id"
	FieldRecordingID = "recording_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldNode      = "node"

	// Stream fields
	FieldStream     = "stream"
	FieldKind       = "kind"
	FieldSeq        = "seq"
	FieldFPS        = "fps"
	FieldResolution = "resolution"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / network fields
	FieldPath = "path"
	FieldAddr = "addr"
)

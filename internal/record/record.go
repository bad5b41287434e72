// SPDX-License-Identifier: MIT

// Package record persists device streams to disk and plays them back.
//
// A recording is a directory of numbered segment files holding wire-framed
// link packets, plus a JSON manifest. A SQLite catalog indexes recordings
// for the API and the retention sweeper.
package record

import (
	"errors"
	"time"
)

const (
	// SegmentPattern names segment files inside a recording directory.
	SegmentPattern = "segment-%04d.oakrec"
	// ManifestName is the per-recording metadata file.
	ManifestName = "manifest.json"
	// DefaultMaxSegmentBytes rotates segments at 256 MiB.
	DefaultMaxSegmentBytes = 256 << 20
)

// Recording states as stored in the catalog.
const (
	StatusRecording = "recording"
	StatusComplete  = "complete"
	StatusFailed    = "failed"
)

var (
	// ErrNotFound reports an unknown recording ID.
	ErrNotFound = errors.New("record: recording not found")
	// ErrRecorderBusy reports a start while a recording is active.
	ErrRecorderBusy = errors.New("record: recording already in progress")
	// ErrRecorderIdle reports a stop with no active recording.
	ErrRecorderIdle = errors.New("record: no recording in progress")
	// ErrActive guards deletion of a recording still being written.
	ErrActive = errors.New("record: recording still active")
)

// StreamStats counts persisted traffic for one stream.
type StreamStats struct {
	Stream  string `json:"stream"`
	Packets int64  `json:"packets"`
	Bytes   int64  `json:"bytes"`
}

// Manifest describes one recording directory.
type Manifest struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Streams   []string      `json:"streams"`
	StartedAt time.Time     `json:"startedAt"`
	StoppedAt time.Time     `json:"stoppedAt,omitzero"`
	Segments  int           `json:"segments"`
	Packets   int64         `json:"packets"`
	Bytes     int64         `json:"bytes"`
	PerStream []StreamStats `json:"perStream,omitempty"`
}

// Recording is one catalog row.
type Recording struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Dir        string        `json:"dir"`
	CreatedAt  time.Time     `json:"createdAt"`
	DurationMS int64         `json:"durationMs"`
	Packets    int64         `json:"packets"`
	Bytes      int64         `json:"bytes"`
	Status     string        `json:"status"`
	Streams    []StreamStats `json:"streams,omitempty"`
}

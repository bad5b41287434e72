// SPDX-License-Identifier: MIT

package cache

import (
	"encoding/json"
	"time"
)

// Key prefixes shared by all backends.
const (
	snapshotPrefix = "snap:"
	detectionsKey  = "det:latest"
	discoveryKey   = "disc:devices"
)

// Default TTLs for the typed entries.
const (
	SnapshotTTL   = 5 * time.Second
	DetectionsTTL = 2 * time.Second
	DiscoveryTTL  = 30 * time.Second
)

// Snapshots is a typed view over a Cache for the daemon's well-known
// entries.
type Snapshots struct {
	Cache Cache
}

// SetSnapshot stores the latest JPEG for a stream.
func (s Snapshots) SetSnapshot(stream string, jpeg []byte) {
	s.Cache.Set(snapshotPrefix+stream, jpeg, SnapshotTTL)
}

// Snapshot returns the latest JPEG for a stream.
func (s Snapshots) Snapshot(stream string) ([]byte, bool) {
	return s.Cache.Get(snapshotPrefix + stream)
}

// SetDetections stores the latest detection payload as JSON.
func (s Snapshots) SetDetections(v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Cache.Set(detectionsKey, buf, DetectionsTTL)
	return nil
}

// Detections unmarshals the latest detection payload into v.
func (s Snapshots) Detections(v any) (bool, error) {
	buf, ok := s.Cache.Get(detectionsKey)
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(buf, v)
}

// SetDiscovery stores device discovery results as JSON.
func (s Snapshots) SetDiscovery(v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Cache.Set(discoveryKey, buf, DiscoveryTTL)
	return nil
}

// Discovery unmarshals cached discovery results into v.
func (s Snapshots) Discovery(v any) (bool, error) {
	buf, ok := s.Cache.Get(discoveryKey)
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(buf, v)
}

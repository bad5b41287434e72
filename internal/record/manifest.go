// SPDX-License-Identifier: MIT

package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func marshalManifest(m Manifest) ([]byte, error) {
	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("record: marshal manifest: %w", err)
	}
	return append(buf, '\n'), nil
}

// ReadManifest loads the manifest of a recording directory.
func ReadManifest(dir string) (*Manifest, error) {
	buf, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("record: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, fmt.Errorf("record: parse manifest: %w", err)
	}
	return &m, nil
}

// SegmentFiles lists a recording's segment files in write order.
func SegmentFiles(dir string) ([]string, error) {
	var out []string
	for i := 0; ; i++ {
		path := filepath.Join(dir, fmt.Sprintf(SegmentPattern, i))
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				break
			}
			return nil, fmt.Errorf("record: stat segment: %w", err)
		}
		out = append(out, path)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

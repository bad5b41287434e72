// SPDX-License-Identifier: MIT

package calib

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	oaklog "github.com/oakgate/oakgate/internal/log"
)

// Store caches calibration blobs on disk, one file per device, written
// atomically so a crash never leaves a torn calibration behind.
type Store struct {
	dir string
}

// NewStore creates a disk-backed calibration cache rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("calib: create cache dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(deviceID string) string {
	return filepath.Join(s.dir, deviceID+".json")
}

// Save persists the calibration for a device.
func (s *Store) Save(deviceID string, d *Data) error {
	if err := d.Validate(); err != nil {
		return err
	}
	buf, err := d.Marshal()
	if err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(s.path(deviceID))
	if err != nil {
		return fmt.Errorf("calib: create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger := oaklog.WithComponent("calib")
			logger.Debug().Err(err).Msg("cleanup pending calibration file")
		}
	}()

	if _, err := pending.Write(buf); err != nil {
		return fmt.Errorf("calib: write calibration: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("calib: atomically replace calibration: %w", err)
	}
	return nil
}

// Load reads the cached calibration for a device. The boolean result is
// false when no cache entry exists.
func (s *Store) Load(deviceID string) (*Data, bool, error) {
	buf, err := os.ReadFile(s.path(deviceID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("calib: read cache: %w", err)
	}
	d, err := Unmarshal(buf)
	if err != nil {
		return nil, true, err
	}
	return d, true, nil
}

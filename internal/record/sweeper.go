// SPDX-License-Identifier: MIT

package record

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	oaklog "github.com/oakgate/oakgate/internal/log"
	"github.com/oakgate/oakgate/internal/metrics"
)

// Sweeper enforces recording retention: recordings past MaxAge are removed,
// then the oldest go until total size fits MaxBytes. Zero disables a limit.
type Sweeper struct {
	catalog  *Catalog
	maxAge   time.Duration
	maxBytes int64
	interval time.Duration
	logger   zerolog.Logger
}

// NewSweeper creates a retention sweeper. A zero interval sweeps hourly.
func NewSweeper(catalog *Catalog, maxAge time.Duration, maxBytes int64, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		catalog:  catalog,
		maxAge:   maxAge,
		maxBytes: maxBytes,
		interval: interval,
		logger:   oaklog.WithComponent("record.sweeper"),
	}
}

// Run sweeps on the configured interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().
					Str("event", "sweep.failed").
					Err(err).
					Msg("retention sweep failed")
			}
		}
	}
}

// Sweep applies the retention policy once and returns how many recordings
// it removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	recs, err := s.catalog.ListOldestCompleted(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	var totalBytes int64
	survivors := make([]*Recording, 0, len(recs))

	now := time.Now()
	for _, rec := range recs {
		if s.maxAge > 0 && now.Sub(rec.CreatedAt) > s.maxAge {
			if err := s.remove(ctx, rec, "age"); err != nil {
				return removed, err
			}
			removed++
			continue
		}
		totalBytes += rec.Bytes
		survivors = append(survivors, rec)
	}

	if s.maxBytes > 0 {
		for _, rec := range survivors {
			if totalBytes <= s.maxBytes {
				break
			}
			if err := s.remove(ctx, rec, "size"); err != nil {
				return removed, err
			}
			totalBytes -= rec.Bytes
			removed++
		}
	}
	return removed, nil
}

func (s *Sweeper) remove(ctx context.Context, rec *Recording, reason string) error {
	if err := os.RemoveAll(rec.Dir); err != nil {
		return err
	}
	if err := s.catalog.Delete(ctx, rec.ID); err != nil {
		return err
	}
	metrics.IncRecordingSweep(reason)
	s.logger.Info().
		Str("event", "sweep.removed").
		Str("id", rec.ID).
		Str("reason", reason).
		Int64("bytes", rec.Bytes).
		Msg("recording removed by retention")
	return nil
}

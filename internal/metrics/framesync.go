// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncSetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oakgate_sync_sets_total",
		Help: "Total complete message sets emitted by the frame synchronizer",
	})

	SyncDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_sync_drops_total",
		Help: "Total messages discarded by the frame synchronizer by stream and reason",
	}, []string{"stream", "reason"})

	SyncSpreadSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "oakgate_sync_set_spread_seconds",
		Help:    "Timestamp spread between earliest and latest message in an emitted set",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	})
)

// IncSyncSet records an emitted set with its internal timestamp spread.
func IncSyncSet(spread time.Duration) {
	SyncSetsTotal.Inc()
	SyncSpreadSeconds.Observe(spread.Seconds())
}

// IncSyncDrop records a message discarded before it could join a set
// ("stale", "overflow", "unmatched").
func IncSyncDrop(stream, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	SyncDropsTotal.WithLabelValues(stream, reason).Inc()
}

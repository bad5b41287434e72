// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oakgate_queue_depth",
		Help: "Current number of buffered messages per output queue",
	}, []string{"stream"})

	QueueEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_queue_enqueued_total",
		Help: "Total messages enqueued per output queue",
	}, []string{"stream"})

	QueueDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_queue_dropped_total",
		Help: "Total messages dropped per output queue by reason",
	}, []string{"stream", "reason"})
)

// SetQueueDepth records the current queue depth for a stream.
func SetQueueDepth(stream string, depth int) {
	QueueDepth.WithLabelValues(stream).Set(float64(depth))
}

// IncQueueEnqueued records a successful enqueue.
func IncQueueEnqueued(stream string) {
	QueueEnqueuedTotal.WithLabelValues(stream).Inc()
}

// IncQueueDropped records a dropped message with a concrete reason
// ("overflow", "closed").
func IncQueueDropped(stream, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	QueueDroppedTotal.WithLabelValues(stream, reason).Inc()
}

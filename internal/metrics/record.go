// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordingActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oakgate_recording_active",
		Help: "Number of recordings currently being written",
	})

	RecordingPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_recording_packets_total",
		Help: "Total packets persisted to recording segments per stream",
	}, []string{"stream"})

	RecordingBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oakgate_recording_bytes_total",
		Help: "Total bytes persisted to recording segments",
	})

	RecordingSweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_recording_sweeps_total",
		Help: "Total recordings removed by the retention sweeper by reason",
	}, []string{"reason"})
)

// IncRecordingPacket records a persisted packet.
func IncRecordingPacket(stream string, payloadBytes int) {
	RecordingPacketsTotal.WithLabelValues(stream).Inc()
	RecordingBytesTotal.Add(float64(payloadBytes))
}

// IncRecordingSweep records a retention deletion ("age", "size", "manual").
func IncRecordingSweep(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	RecordingSweepsTotal.WithLabelValues(reason).Inc()
}

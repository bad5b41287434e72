// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_detections_total",
		Help: "Total decoded detections by label",
	}, []string{"label"})

	DetectionBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oakgate_detection_batches_total",
		Help: "Total detection result batches consumed from the device",
	})

	DetectionDecodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_detection_decode_errors_total",
		Help: "Total neural-network payload decode failures by reason",
	}, []string{"reason"})

	NNFramesPerSecond = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oakgate_nn_fps",
		Help: "Rolling inference throughput reported by the host loop",
	})

	DepthFramesFilteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_depth_frames_filtered_total",
		Help: "Total depth frames passed through host-side filters by filter name",
	}, []string{"filter"})
)

// IncDetections records a decoded batch and its per-label counts.
func IncDetections(labels []string) {
	DetectionBatchesTotal.Inc()
	for _, l := range labels {
		if l == "" {
			l = "unknown"
		}
		DetectionsTotal.WithLabelValues(l).Inc()
	}
}

// IncDetectionDecodeError records an undecodable NN payload.
func IncDetectionDecodeError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	DetectionDecodeErrorsTotal.WithLabelValues(reason).Inc()
}

// SetNNFPS publishes the rolling inference FPS.
func SetNNFPS(fps float64) {
	NNFramesPerSecond.Set(fps)
}

// IncDepthFiltered records a depth frame passing a host-side filter stage.
func IncDepthFiltered(filter string) {
	DepthFramesFilteredTotal.WithLabelValues(filter).Inc()
}

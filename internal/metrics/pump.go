// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PumpMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_pump_messages_total",
		Help: "Total messages routed by the host pump per stream",
	}, []string{"stream"})

	PumpUnroutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_pump_unrouted_total",
		Help: "Total messages the pump could not hand to a sink by sink and reason",
	}, []string{"sink", "reason"})

	StreamFramesPerSecond = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oakgate_stream_fps",
		Help: "Rolling frame rate per consumed stream",
	}, []string{"stream"})
)

// IncPumpMessage records a message entering the pump router.
func IncPumpMessage(stream string) {
	PumpMessagesTotal.WithLabelValues(stream).Inc()
}

// IncPumpUnrouted records a message a sink refused ("full", "closed").
func IncPumpUnrouted(sink, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	PumpUnroutedTotal.WithLabelValues(sink, reason).Inc()
}

// SetStreamFPS publishes the rolling per-stream frame rate.
func SetStreamFPS(stream string, fps float64) {
	StreamFramesPerSecond.WithLabelValues(stream).Set(fps)
}

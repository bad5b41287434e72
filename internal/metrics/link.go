// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus collectors shared across oakgate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LinkPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_link_packets_total",
		Help: "Total link packets by direction and message kind",
	}, []string{"direction", "kind"})

	LinkBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_link_bytes_total",
		Help: "Total link payload bytes by direction",
	}, []string{"direction"})

	LinkProtocolErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_link_protocol_errors_total",
		Help: "Total link protocol violations by reason",
	}, []string{"reason"})
)

// IncLinkPacket records a packet moving through the link layer.
func IncLinkPacket(direction, kind string, payloadBytes int) {
	if kind == "" {
		kind = "unknown"
	}
	LinkPacketsTotal.WithLabelValues(direction, kind).Inc()
	LinkBytesTotal.WithLabelValues(direction).Add(float64(payloadBytes))
}

// IncLinkProtocolError records a framing or handshake violation.
func IncLinkProtocolError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	LinkProtocolErrorsTotal.WithLabelValues(reason).Inc()
}

// SPDX-License-Identifier: MIT

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_http_requests_total",
		Help: "Total HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oakgate_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"route"})

	MJPEGSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oakgate_mjpeg_subscribers",
		Help: "Current MJPEG subscribers per stream",
	}, []string{"stream"})

	SnapshotsServedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_snapshots_served_total",
		Help: "Snapshots served by cache outcome",
	}, []string{"source"})
)

// ObserveHTTPRequest records one handled request.
func ObserveHTTPRequest(route, method string, status int, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// AddMJPEGSubscriber adjusts the subscriber gauge for a stream.
func AddMJPEGSubscriber(stream string, delta int) {
	MJPEGSubscribers.WithLabelValues(stream).Add(float64(delta))
}

// IncSnapshotServed records a served snapshot ("cache" or "live").
func IncSnapshotServed(source string) {
	SnapshotsServedTotal.WithLabelValues(source).Inc()
}

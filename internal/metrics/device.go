// SPDX-License-Identifier: MIT

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeviceConnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_device_connects_total",
		Help: "Total device connection attempts by result",
	}, []string{"result"})

	DeviceSessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oakgate_device_session_state",
		Help: "Device session state (one-hot per state)",
	}, []string{"device", "state"})

	DeviceUploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "oakgate_device_pipeline_upload_duration_seconds",
		Help:    "Time taken to upload and start a pipeline on the device",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	DeviceWatchdogMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_device_watchdog_misses_total",
		Help: "Total missed watchdog pongs per device",
	}, []string{"device"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oakgate_circuit_breaker_state",
		Help: "Circuit breaker state by component (active state=1, others 0)",
	}, []string{"component", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oakgate_circuit_breaker_trips_total",
		Help: "Total circuit breaker transitions to the open state",
	}, []string{"component", "reason"})
)

var sessionStates = []string{"idle", "connecting", "uploading", "running", "draining", "closed", "failed"}

// IncDeviceConnect records a connection attempt outcome.
func IncDeviceConnect(success bool) {
	DeviceConnectsTotal.WithLabelValues(strconv.FormatBool(success)).Inc()
}

// SetDeviceSessionState records the active session state for a device (one-hot).
func SetDeviceSessionState(device, state string) {
	for _, s := range sessionStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		DeviceSessionState.WithLabelValues(device, s).Set(value)
	}
}

// ObserveUploadDuration records the duration of a pipeline upload.
func ObserveUploadDuration(d time.Duration) {
	DeviceUploadDuration.Observe(d.Seconds())
}

// IncWatchdogMiss records a missed watchdog pong.
func IncWatchdogMiss(device string) {
	DeviceWatchdogMissesTotal.WithLabelValues(device).Inc()
}

var circuitStates = []string{"closed", "half-open", "open"}

// SetCircuitBreakerState records the active circuit breaker state for a component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range circuitStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		circuitBreakerState.WithLabelValues(component, s).Set(value)
	}
}

// RecordCircuitBreakerTrip increments the trip counter when a breaker opens.
func RecordCircuitBreakerTrip(component, reason string) {
	circuitBreakerTrips.WithLabelValues(component, reason).Inc()
}

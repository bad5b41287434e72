// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Device attributes
	DeviceIDKey    = "device.id"
	DeviceAddrKey  = "device.addr"
	DeviceStateKey = "device.state"
	SessionIDKey   = "session.id"

	// Stream attributes
	StreamNameKey = "stream.name"
	StreamSeqKey  = "stream.seq"

	// Pipeline attributes
	PipelineNodesKey   = "pipeline.nodes"
	PipelineStreamsKey = "pipeline.streams"

	// Recording attributes
	RecordingIDKey    = "recording.id"
	RecordingBytesKey = "recording.bytes"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// DeviceAttributes creates device session span attributes.
func DeviceAttributes(deviceID, addr, state string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if deviceID != "" {
		attrs = append(attrs, attribute.String(DeviceIDKey, deviceID))
	}
	if addr != "" {
		attrs = append(attrs, attribute.String(DeviceAddrKey, addr))
	}
	if state != "" {
		attrs = append(attrs, attribute.String(DeviceStateKey, state))
	}
	return attrs
}

// StreamAttributes creates stream message span attributes.
func StreamAttributes(stream string, seq int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StreamNameKey, stream),
		attribute.Int64(StreamSeqKey, seq),
	}
}

// PipelineAttributes creates pipeline upload span attributes.
func PipelineAttributes(nodes, streams int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(PipelineNodesKey, nodes),
		attribute.Int(PipelineStreamsKey, streams),
	}
}

// RecordingAttributes creates recording span attributes.
func RecordingAttributes(id string, bytes int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RecordingIDKey, id),
		attribute.Int64(RecordingBytesKey, bytes),
	}
}

// ErrorAttributes creates error span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

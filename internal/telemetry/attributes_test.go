// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/api/status", "http://localhost:8080/api/status", 200)

	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, HTTPMethodKey, "GET")
	verifyAttribute(t, attrs, HTTPRouteKey, "/api/status")
	verifyAttribute(t, attrs, HTTPURLKey, "http://localhost:8080/api/status")
	verifyIntAttribute(t, attrs, HTTPStatusCodeKey, 200)
}

func TestDeviceAttributes(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		addr     string
		state    string
		wantLen  int
	}{
		{"all fields", "14442C10D13D0E00", "192.168.1.50:9876", "running", 3},
		{"only state", "", "", "connecting", 1},
		{"empty", "", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := DeviceAttributes(tt.deviceID, tt.addr, tt.state)
			if len(attrs) != tt.wantLen {
				t.Fatalf("expected %d attributes, got %d", tt.wantLen, len(attrs))
			}
			if tt.deviceID != "" {
				verifyAttribute(t, attrs, DeviceIDKey, tt.deviceID)
			}
			if tt.state != "" {
				verifyAttribute(t, attrs, DeviceStateKey, tt.state)
			}
		})
	}
}

func TestStreamAttributes(t *testing.T) {
	attrs := StreamAttributes("depth", 42)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	verifyAttribute(t, attrs, StreamNameKey, "depth")
	verifyInt64Attribute(t, attrs, StreamSeqKey, 42)
}

func TestPipelineAttributes(t *testing.T) {
	attrs := PipelineAttributes(7, 4)
	verifyIntAttribute(t, attrs, PipelineNodesKey, 7)
	verifyIntAttribute(t, attrs, PipelineStreamsKey, 4)
}

func TestRecordingAttributes(t *testing.T) {
	attrs := RecordingAttributes("rec-123", 1<<20)
	verifyAttribute(t, attrs, RecordingIDKey, "rec-123")
	verifyInt64Attribute(t, attrs, RecordingBytesKey, 1<<20)
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(errors.New("link down"), "link")
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyAttribute(t, attrs, ErrorTypeKey, "link")
}

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, want string) {
	t.Helper()
	for _, a := range attrs {
		if string(a.Key) == key {
			if got := a.Value.AsString(); got != want {
				t.Errorf("attribute %s: expected %q, got %q", key, want, got)
			}
			return
		}
	}
	t.Errorf("attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, want int) {
	t.Helper()
	for _, a := range attrs {
		if string(a.Key) == key {
			if got := a.Value.AsInt64(); got != int64(want) {
				t.Errorf("attribute %s: expected %d, got %d", key, want, got)
			}
			return
		}
	}
	t.Errorf("attribute %s not found", key)
}

func verifyInt64Attribute(t *testing.T, attrs []attribute.KeyValue, key string, want int64) {
	t.Helper()
	for _, a := range attrs {
		if string(a.Key) == key {
			if got := a.Value.AsInt64(); got != want {
				t.Errorf("attribute %s: expected %d, got %d", key, want, got)
			}
			return
		}
	}
	t.Errorf("attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key string, want bool) {
	t.Helper()
	for _, a := range attrs {
		if string(a.Key) == key {
			if got := a.Value.AsBool(); got != want {
				t.Errorf("attribute %s: expected %v, got %v", key, want, got)
			}
			return
		}
	}
	t.Errorf("attribute %s not found", key)
}

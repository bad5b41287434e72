package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestConfigureWritesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "oakgate-test", Version: "v0.0.0-test"})

	logger := WithComponent("xlink")
	logger.Info().Str(FieldEvent, "test.event").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["service"] != "oakgate-test" {
		t.Errorf("expected service oakgate-test, got %v", entry["service"])
	}
	if entry["component"] != "xlink" {
		t.Errorf("expected component xlink, got %v", entry["component"])
	}
	if entry["event"] != "test.event" {
		t.Errorf("expected event test.event, got %v", entry["event"])
	}
	if entry["version"] != "v0.0.0-test" {
		t.Errorf("expected version field, got %v", entry["version"])
	}
}

func TestContextCorrelationRoundtrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithSessionID(ctx, "sess-2")
	ctx = ContextWithDeviceID(ctx, "14442C10D13EABCE00")

	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("request id: got %q", got)
	}
	if got := SessionIDFromContext(ctx); got != "sess-2" {
		t.Errorf("session id: got %q", got)
	}
	if got := DeviceIDFromContext(ctx); got != "14442C10D13EABCE00" {
		t.Errorf("device id: got %q", got)
	}

	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf})
	logger := WithComponentFromContext(ctx, "device")
	logger.Info().Msg("correlate")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry[FieldRequestID] != "req-1" || entry[FieldSessionID] != "sess-2" {
		t.Errorf("correlation fields missing: %v", entry)
	}
}

func TestFromContextFallsBackToBase(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	// nil context must not panic either
	l = FromContext(nil) //nolint:staticcheck // exercising nil-context fallback
	if l == nil {
		t.Fatal("expected non-nil logger for nil context")
	}
}

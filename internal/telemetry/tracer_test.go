// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewProviderDisabledWithoutEndpoint(t *testing.T) {
	cfg := Config{
		ServiceName: "test-service",
		Protocol:    "grpc",
	}

	provider, err := NewProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if provider.tp != nil {
		t.Error("expected noop provider (tp == nil)")
	}

	// The global tracer must be noop when export is disabled.
	tracer := otel.Tracer("test")
	_, span := tracer.Start(context.Background(), "noop-check")
	if span.IsRecording() {
		t.Error("expected noop tracer span to be non-recording")
	}
	span.End()

	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown should not fail: %v", err)
	}
}

func TestNewProviderInvalidProtocol(t *testing.T) {
	cfg := Config{
		ServiceName: "test-service",
		Endpoint:    "localhost:4317",
		Protocol:    "invalid",
	}

	_, err := NewProvider(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for invalid protocol")
	}

	expectedMsg := "unsupported OTLP protocol: invalid (supported: grpc, http)"
	if err.Error() != expectedMsg {
		t.Errorf("expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestNewProviderGRPCInitializes(t *testing.T) {
	// The gRPC exporter dials lazily, so provider construction succeeds
	// without a collector listening.
	cfg := Config{
		ServiceName:    "test-service",
		ServiceVersion: "0.0.0",
		Endpoint:       "localhost:4317",
		Protocol:       "grpc",
		SampleRatio:    0.5,
		Insecure:       true,
	}

	provider, err := NewProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if provider.tp == nil {
		t.Fatal("expected a real tracer provider")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Logf("shutdown flush failed without collector: %v", err)
	}
}

func TestTracerReturnsNamedTracer(t *testing.T) {
	tr := Tracer("device")
	if tr == nil {
		t.Fatal("expected a tracer")
	}
}

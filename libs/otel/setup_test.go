package otelx

import (
	"context"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	cfg := ConfigFromEnv("booking-service")
	if !cfg.Enabled || cfg.SampleRatio != 0.25 || cfg.ServiceName != "booking-service" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	if ConfigFromEnv("x").SampleRatio != 1 {
		t.Fatal("out of range ratio should fall back to 1")
	}
}

func TestTraceContextRoundTrip(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	tp := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	ctx := TraceContext{Parent: tp}.Attach(context.Background())
	got := CaptureTraceContext(ctx)
	if got.Parent != tp {
		t.Fatalf("traceparent mismatch: %q", got.Parent)
	}
	if !(TraceContext{}).Empty() {
		t.Fatal("zero trace context should be empty")
	}
}

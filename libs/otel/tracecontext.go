package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is the W3C pair persisted next to outbox rows so a relay
// running later can continue the trace of the request that wrote them.
type TraceContext struct {
	Parent string
	State  string
}

func CaptureTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Parent: carrier.Get("traceparent"), State: carrier.Get("tracestate")}
}

func (tc TraceContext) Empty() bool {
	return tc.Parent == "" && tc.State == ""
}

// Attach returns ctx carrying the remote span described by tc.
func (tc TraceContext) Attach(ctx context.Context) context.Context {
	if tc.Empty() {
		return ctx
	}
	carrier := propagation.MapCarrier{}
	if tc.Parent != "" {
		carrier.Set("traceparent", tc.Parent)
	}
	if tc.State != "" {
		carrier.Set("tracestate", tc.State)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	traceparentKey = "traceparent"
	tracestateKey  = "tracestate"
)

// TraceContext is the W3C trace context of a span in a storable form. Outbox
// rows carry one so the relay publishes inside the trace that wrote them.
type TraceContext struct {
	Parent string
	State  string
}

// CaptureTraceContext serialises the span on ctx using the global propagator.
func CaptureTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Parent: carrier[traceparentKey], State: carrier[tracestateKey]}
}

func (tc TraceContext) IsZero() bool { return tc.Parent == "" && tc.State == "" }

// Attach returns ctx with the remote span described by tc as its parent.
func (tc TraceContext) Attach(ctx context.Context) context.Context {
	if tc.IsZero() {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(tc.Fields()))
}

// Fields returns the header form of tc, omitting empty values.
func (tc TraceContext) Fields() map[string]string {
	out := make(map[string]string, 2)
	if tc.Parent != "" {
		out[traceparentKey] = tc.Parent
	}
	if tc.State != "" {
		out[tracestateKey] = tc.State
	}
	return out
}

package propagation

import (
	"context"
	"fmt"
	"strings"

	"github.com/deepaksharma/signalpipe/trace"
)

const traceparentHeader = "traceparent"

// TraceContext propagates trace id, span id, and the sampling flag in the
// W3C traceparent header, version 00.
type TraceContext struct{}

// Fields returns the header names this propagator touches.
func (TraceContext) Fields() []string { return []string{traceparentHeader} }

// Inject writes the active span identity to the carrier. A context without
// a valid identity writes nothing.
func (TraceContext) Inject(ctx context.Context, carrier TextMapCarrier) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return
	}
	flags := byte(0)
	if sc.Sampled {
		flags = 1
	}
	carrier.Set(traceparentHeader, fmt.Sprintf("00-%s-%s-%02x", sc.TraceID, sc.SpanID, flags))
}

// Extract parses the traceparent header into a remote span identity.
// Malformed or missing headers return ctx unchanged; baggage already on
// the context is preserved.
func (TraceContext) Extract(ctx context.Context, carrier TextMapCarrier) context.Context {
	h := carrier.Get(traceparentHeader)
	if h == "" {
		return ctx
	}
	parts := strings.Split(h, "-")
	if len(parts) < 4 {
		return ctx
	}
	version := parts[0]
	if len(version) != 2 || !isHex(version) || strings.EqualFold(version, "ff") {
		return ctx
	}
	if version == "00" && len(parts) != 4 {
		return ctx
	}
	tid, err := trace.TraceIDFromHex(parts[1])
	if err != nil {
		return ctx
	}
	sid, err := trace.SpanIDFromHex(parts[2])
	if err != nil {
		return ctx
	}
	if len(parts[3]) != 2 || !isHex(parts[3]) {
		return ctx
	}
	var flags byte
	if _, err := fmt.Sscanf(parts[3], "%02x", &flags); err != nil {
		return ctx
	}

	sc := trace.SpanContext{
		TraceID: tid,
		SpanID:  sid,
		Sampled: flags&1 == 1,
		Baggage: trace.SpanContextFromContext(ctx).Baggage,
	}
	return trace.ContextWithSpanContext(ctx, sc)
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

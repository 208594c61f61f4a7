// Package propagation moves trace identity and baggage across process
// boundaries through text carriers such as HTTP headers, using the W3C
// traceparent and baggage formats.
package propagation

import (
	"context"
	"net/http"
)

// TextMapCarrier is the transport-side surface a propagator reads and
// writes, typically backed by request headers.
type TextMapCarrier interface {
	Get(key string) string
	Set(key, value string)
	Keys() []string
}

// HeaderCarrier adapts http.Header to TextMapCarrier.
type HeaderCarrier http.Header

// Get returns the first value for key.
func (hc HeaderCarrier) Get(key string) string {
	return http.Header(hc).Get(key)
}

// Set replaces the values for key.
func (hc HeaderCarrier) Set(key, value string) {
	http.Header(hc).Set(key, value)
}

// Keys returns the carrier's header names.
func (hc HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(hc))
	for k := range hc {
		keys = append(keys, k)
	}
	return keys
}

// MapCarrier adapts a plain string map to TextMapCarrier.
type MapCarrier map[string]string

func (mc MapCarrier) Get(key string) string { return mc[key] }

func (mc MapCarrier) Set(key, value string) { mc[key] = value }

func (mc MapCarrier) Keys() []string {
	keys := make([]string, 0, len(mc))
	for k := range mc {
		keys = append(keys, k)
	}
	return keys
}

// TextMapPropagator encodes context into a carrier and back. Extract never
// fails: malformed or absent headers leave the context unchanged, and
// injecting from a context with nothing to carry writes nothing.
type TextMapPropagator interface {
	Inject(ctx context.Context, carrier TextMapCarrier)
	Extract(ctx context.Context, carrier TextMapCarrier) context.Context
	Fields() []string
}

type composite struct {
	props []TextMapPropagator
}

// Composite returns a propagator that applies each given propagator in
// order for both inject and extract.
func Composite(props ...TextMapPropagator) TextMapPropagator {
	return composite{props: props}
}

func (c composite) Inject(ctx context.Context, carrier TextMapCarrier) {
	for _, p := range c.props {
		p.Inject(ctx, carrier)
	}
}

func (c composite) Extract(ctx context.Context, carrier TextMapCarrier) context.Context {
	for _, p := range c.props {
		ctx = p.Extract(ctx, carrier)
	}
	return ctx
}

func (c composite) Fields() []string {
	var fields []string
	for _, p := range c.props {
		fields = append(fields, p.Fields()...)
	}
	return fields
}

// Default returns the standard pair: W3C trace context plus baggage.
func Default() TextMapPropagator {
	return Composite(TraceContext{}, BaggagePropagator{})
}

package propagation

import (
	"context"
	"net/url"
	"strings"

	"github.com/deepaksharma/signalpipe/trace"
)

const baggageHeader = "baggage"

// BaggagePropagator carries baggage entries in the W3C baggage header as
// comma-separated key=value members with percent-encoded values.
type BaggagePropagator struct{}

// Fields returns the header names this propagator touches.
func (BaggagePropagator) Fields() []string { return []string{baggageHeader} }

// Inject writes the context's baggage to the carrier. Empty baggage writes
// nothing. Baggage rides along even when the trace identity is absent.
func (BaggagePropagator) Inject(ctx context.Context, carrier TextMapCarrier) {
	bag := trace.SpanContextFromContext(ctx).Baggage
	if bag.Len() == 0 {
		return
	}
	members := make([]string, 0, bag.Len())
	for _, e := range bag {
		members = append(members, e.Key+"="+url.PathEscape(e.Value))
	}
	carrier.Set(baggageHeader, strings.Join(members, ","))
}

// Extract merges baggage members from the carrier into the context,
// preserving any trace identity already extracted. Malformed members are
// skipped individually rather than failing the whole header.
func (BaggagePropagator) Extract(ctx context.Context, carrier TextMapCarrier) context.Context {
	h := carrier.Get(baggageHeader)
	if h == "" {
		return ctx
	}

	sc := trace.SpanContextFromContext(ctx)
	bag := sc.Baggage
	merged := false
	for _, member := range strings.Split(h, ",") {
		member = strings.TrimSpace(member)
		// Entry properties (";"-suffixed metadata) are not carried.
		if i := strings.IndexByte(member, ';'); i >= 0 {
			member = member[:i]
		}
		key, rawValue, ok := strings.Cut(member, "=")
		if !ok || key == "" {
			continue
		}
		value, err := url.PathUnescape(rawValue)
		if err != nil {
			continue
		}
		bag = bag.With(key, value)
		merged = true
	}
	if !merged {
		return ctx
	}
	sc.Baggage = bag
	return trace.ContextWithSpanContext(ctx, sc)
}

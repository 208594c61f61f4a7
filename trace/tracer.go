package trace

import (
	"context"
	"time"

	"github.com/deepaksharma/signalpipe/attribute"
)

// SpanOption configures a span at start time.
type SpanOption func(*spanConfig)

type spanConfig struct {
	kind  Kind
	start time.Time
	attrs []attribute.KeyValue
}

// WithKind sets the span kind, KindInternal by default.
func WithKind(k Kind) SpanOption {
	return func(c *spanConfig) { c.kind = k }
}

// WithStartTime overrides the span start time.
func WithStartTime(t time.Time) SpanOption {
	return func(c *spanConfig) { c.start = t }
}

// WithAttributes sets initial attributes on the span.
func WithAttributes(kvs ...attribute.KeyValue) SpanOption {
	return func(c *spanConfig) { c.attrs = append(c.attrs, kvs...) }
}

// Tracer creates spans under one instrumentation scope. Tracers are cheap
// handles; the pipeline that issued them owns all buffering state.
type Tracer struct {
	scope   Scope
	sampler Sampler
	onEnd   func(*Span)
}

// NewTracer returns a tracer for the given scope. The sampler decides root
// spans; onEnd receives every recorded span exactly once when it ends.
func NewTracer(scope Scope, sampler Sampler, onEnd func(*Span)) *Tracer {
	if sampler == nil {
		sampler = AlwaysOn()
	}
	return &Tracer{scope: scope, sampler: sampler, onEnd: onEnd}
}

// Scope returns the tracer's instrumentation scope.
func (t *Tracer) Scope() Scope { return t.scope }

// StartSpan begins a span as a child of the active span in ctx, or as a new
// root when ctx has none. The returned context carries the new span as the
// active one; pass it to downstream work so children nest under it.
//
// Sampling is decided once per trace: a root consults the tracer's sampler,
// a child inherits the parent decision, local or remote.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	cfg := spanConfig{start: time.Now()}
	for _, opt := range opts {
		opt(&cfg)
	}

	parent := SpanContextFromContext(ctx)

	var sc SpanContext
	var parentID SpanID
	if parent.IsValid() {
		sc = SpanContext{
			TraceID: parent.TraceID,
			SpanID:  NewSpanID(),
			Sampled: parent.Sampled,
			Baggage: parent.Baggage,
		}
		parentID = parent.SpanID
	} else {
		tid := NewTraceID()
		sc = SpanContext{
			TraceID: tid,
			SpanID:  NewSpanID(),
			Sampled: t.sampler.ShouldSample(SampleParams{TraceID: tid, Name: name, Kind: cfg.kind}),
			Baggage: parent.Baggage,
		}
	}

	attrs := &attribute.Set{}
	attrs.PutAll(cfg.attrs...)

	s := &Span{
		scope:    t.scope,
		sc:       sc,
		parent:   parentID,
		recorded: sc.Sampled,
		onEnd:    t.onEnd,
		name:     name,
		kind:     cfg.kind,
		start:    cfg.start,
		attrs:    attrs,
	}
	return ContextWithSpan(ctx, s), s
}

package trace

import "context"

type ctxKey struct{}

type ctxEntry struct {
	sc   SpanContext
	span *Span
}

// ContextWithSpan returns a context carrying the span as the active one.
// The parent context is untouched, so callers holding it keep their
// previous active span.
func ContextWithSpan(ctx context.Context, s *Span) context.Context {
	return context.WithValue(ctx, ctxKey{}, ctxEntry{sc: s.Context(), span: s})
}

// ContextWithSpanContext returns a context carrying a remote span identity,
// as produced by extraction from incoming request headers.
func ContextWithSpanContext(ctx context.Context, sc SpanContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, ctxEntry{sc: sc})
}

// SpanContextFromContext returns the active span identity, or the zero
// SpanContext when none is set. Always safe to call.
func SpanContextFromContext(ctx context.Context) SpanContext {
	if e, ok := ctx.Value(ctxKey{}).(ctxEntry); ok {
		return e.sc
	}
	return SpanContext{}
}

// SpanFromContext returns the active local span, or nil when the context
// carries no span or only a remote identity.
func SpanFromContext(ctx context.Context) *Span {
	if e, ok := ctx.Value(ctxKey{}).(ctxEntry); ok {
		return e.span
	}
	return nil
}

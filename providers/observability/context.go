package observability

import "context"

type spanContextKey struct{}

// SpanFromContext returns the span stored in ctx, or nil.
func SpanFromContext(ctx context.Context) Span {
	if ctx == nil {
		return nil
	}
	span, _ := ctx.Value(spanContextKey{}).(Span)
	return span
}

// ContextWithSpan returns a copy of ctx carrying span.
func ContextWithSpan(ctx context.Context, span Span) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, spanContextKey{}, span)
}

// AddSpanEvent records an event on the span carried by ctx, if any.
// Gateways use it so they do not need their own nil checks.
func AddSpanEvent(ctx context.Context, name string, attrs ...Attribute) {
	if span := SpanFromContext(ctx); span != nil {
		span.AddEvent(name, attrs...)
	}
}

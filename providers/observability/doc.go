// Package observability defines the interfaces and semantic conventions used
// for tracing, metrics and structured logging throughout mammochat.
//
// [Provider] composes [Tracer], [Metrics] and [Logger] into a single injectable
// dependency. Components that receive no provider fall back to [Nop], so call
// sites never need nil checks on the provider itself. The active [Span] travels
// through a [context.Context] via [ContextWithSpan] and [SpanFromContext].
//
// semconv.go holds the attribute keys, span names, event names and metric names
// shared by the gateways, the orchestrator and the conversation engine.
package observability

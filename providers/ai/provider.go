package ai

import "context"

// Provider is implemented by every model backend. Implementations are built
// with explicit credentials and hold no process-wide state.
type Provider interface {
	// SendMessage performs one synchronous chat completion. Failures wrap one
	// of the package sentinels (ErrAuthentication, ErrTransport,
	// ErrMalformedResponse, ErrModel).
	SendMessage(ctx context.Context, request ChatRequest) (*ChatResponse, error)

	// Name identifies the backend in logs and spans, e.g. "openai".
	Name() string
}

// StreamProvider is implemented by backends that can stream deltas. Callers
// detect it with a type assertion and otherwise fall back to SendMessage.
type StreamProvider interface {
	Provider
	// StreamMessage returns a stream of deltas. Errors before the first byte
	// are returned directly; mid-stream errors are yielded by the iterator.
	StreamMessage(ctx context.Context, request ChatRequest) (*ChatStream, error)
}

// Pinger is implemented by backends that can check reachability without
// spending tokens.
type Pinger interface {
	Ping(ctx context.Context) error
}

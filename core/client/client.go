package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/leofalp/mammochat/providers/ai"
	"github.com/leofalp/mammochat/providers/observability"
)

// ErrNoProvider is returned by New when the provider is nil.
var ErrNoProvider = errors.New("client: provider is required")

// Client is the single entry point the orchestrator uses to talk to a model.
// It is immutable after New and safe for concurrent use.
type Client struct {
	provider         ai.Provider
	defaultModel     string
	generationConfig *ai.GenerationConfig
	observer         observability.Provider

	send   SendFunc
	stream StreamFunc
}

// Option configures a Client.
type Option func(*options)

type options struct {
	defaultModel     string
	generationConfig *ai.GenerationConfig
	observer         observability.Provider
	middlewares      []MiddlewareConfig
}

// WithDefaultModel sets the model used when a request does not name one.
func WithDefaultModel(model string) Option {
	return func(o *options) {
		o.defaultModel = model
	}
}

// WithGenerationConfig sets sampling parameters applied to every request.
func WithGenerationConfig(config ai.GenerationConfig) Option {
	return func(o *options) {
		o.generationConfig = &config
	}
}

// WithObserver enables tracing, metrics and logging for every model call. The
// observability middleware is installed as the outermost wrapper so its span
// covers retries and timeouts.
func WithObserver(observer observability.Provider) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithMiddleware appends middlewares to the chain. The first one given is the
// outermost.
func WithMiddleware(middlewares ...MiddlewareConfig) Option {
	return func(o *options) {
		o.middlewares = append(o.middlewares, middlewares...)
	}
}

// New builds a Client around provider.
func New(provider ai.Provider, opts ...Option) (*Client, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	middlewares := o.middlewares
	if o.observer != nil {
		middlewares = append([]MiddlewareConfig{NewObservabilityMiddleware(o.observer, provider.Name(), o.defaultModel)}, middlewares...)
	}

	for i, mw := range middlewares {
		if mw.Send == nil {
			return nil, fmt.Errorf("client: middleware %d has a nil Send function", i)
		}
	}

	return &Client{
		provider:         provider,
		defaultModel:     o.defaultModel,
		generationConfig: o.generationConfig,
		observer:         observability.OrNop(o.observer),
		send:             buildSendChain(provider, middlewares),
		stream:           buildStreamChain(provider, middlewares),
	}, nil
}

// Complete asks the model for the next assistant message. messages must not
// contain a system message: the system instruction travels in systemPrompt.
//
// Errors before the first delta are returned directly; mid-stream errors are
// yielded by the stream. Both wrap the ai package sentinels.
func (c *Client) Complete(ctx context.Context, messages []ai.Message, tools []ai.ToolDescription, systemPrompt string) (*ai.ChatStream, error) {
	return c.stream(ctx, c.buildRequest(messages, tools, systemPrompt))
}

// Send is the synchronous form of Complete.
func (c *Client) Send(ctx context.Context, messages []ai.Message, tools []ai.ToolDescription, systemPrompt string) (*ai.ChatResponse, error) {
	return c.send(ctx, c.buildRequest(messages, tools, systemPrompt))
}

// Ping checks the model endpoint when the provider supports it. Providers that
// cannot be pinged are reported as reachable.
func (c *Client) Ping(ctx context.Context) error {
	pinger, ok := c.provider.(ai.Pinger)
	if !ok {
		return nil
	}
	return pinger.Ping(ctx)
}

// Provider returns the underlying model backend.
func (c *Client) Provider() ai.Provider {
	return c.provider
}

// Observer returns the configured observer, or a no-op one.
func (c *Client) Observer() observability.Provider {
	return c.observer
}

func (c *Client) buildRequest(messages []ai.Message, tools []ai.ToolDescription, systemPrompt string) ai.ChatRequest {
	request := ai.ChatRequest{
		Model:        c.defaultModel,
		Messages:     messages,
		SystemPrompt: systemPrompt,
		Tools:        tools,
	}
	if c.generationConfig != nil {
		config := *c.generationConfig
		request.GenerationConfig = &config
	}
	return request
}

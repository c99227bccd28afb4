// Package client sits between the agent orchestrator and a raw model provider.
//
// [New] wraps an [ai.Provider] in a middleware chain (timeout, retry, logging,
// observability) and exposes [Client.Complete], which always returns an
// [ai.ChatStream]: providers that cannot stream natively are replayed as a
// single-event stream, so callers consume one shape.
//
//	c, err := client.New(provider,
//	    client.WithDefaultModel("deepseek-chat"),
//	    client.WithObserver(observer),
//	    client.WithMiddleware(middleware.NewTimeoutMiddleware(60*time.Second)),
//	)
//	stream, err := c.Complete(ctx, messages, tools, systemPrompt)
package client

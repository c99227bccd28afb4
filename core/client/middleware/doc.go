// Package middleware holds the built-in middlewares for the model client. Each
// New* function returns a [client.MiddlewareConfig] for [client.WithMiddleware].
//
//   - [NewTimeoutMiddleware]: per-request deadline, covering the whole stream.
//   - [NewRetryMiddleware]: opt-in exponential backoff for transport failures
//     that happen before the first streamed delta.
//   - [NewLoggingMiddleware]: slog entries around every call.
//
// Middlewares run outermost-first:
//
//	c, err := client.New(provider,
//	    client.WithMiddleware(
//	        middleware.NewTimeoutMiddleware(60*time.Second),
//	        middleware.NewRetryMiddleware(middleware.RetryConfig{MaxRetries: 2}),
//	        middleware.NewLoggingMiddleware(logger, middleware.LogLevelStandard),
//	    ),
//	)
//
// Here a request travels Timeout -> Retry -> Logging -> Provider.
package middleware

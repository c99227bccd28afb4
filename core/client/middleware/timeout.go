package middleware

import (
	"context"
	"time"

	"github.com/leofalp/mammochat/core/client"
	"github.com/leofalp/mammochat/providers/ai"
)

// NewTimeoutMiddleware enforces a per-request deadline on send and stream
// calls.
//
// For streams the deadline covers the whole lifetime of the stream, not just
// the time to the first byte: the context is cancelled only once the iterator
// finishes, fails, or is abandoned. A shorter caller deadline still wins.
func NewTimeoutMiddleware(timeout time.Duration) client.MiddlewareConfig {
	return client.MiddlewareConfig{
		Send:   buildSendTimeout(timeout),
		Stream: buildStreamTimeout(timeout),
	}
}

func buildSendTimeout(timeout time.Duration) client.Middleware {
	return func(next client.SendFunc) client.SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return next(ctx, request)
		}
	}
}

func buildStreamTimeout(timeout time.Duration) client.StreamMiddleware {
	return func(next client.StreamFunc) client.StreamFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)

			stream, err := next(ctx, request)
			if err != nil {
				cancel()
				return nil, err
			}

			return wrapStreamWithCancel(stream, cancel), nil
		}
	}
}

// wrapStreamWithCancel calls cancel once the wrapped iterator returns. Usage
// may arrive after the done event, so the stream is drained rather than cut at
// StreamEventDone.
func wrapStreamWithCancel(stream *ai.ChatStream, cancel context.CancelFunc) *ai.ChatStream {
	return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
		defer cancel()

		for event, err := range stream.Iter() {
			if !yield(event, err) || err != nil {
				return
			}
		}
	})
}

package middleware

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leofalp/mammochat/providers/ai"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestRetryMiddleware_RetriesTransportErrors(t *testing.T) {
	calls := 0
	send := func(context.Context, ai.ChatRequest) (*ai.ChatResponse, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("%w: status 503", ai.ErrTransport)
		}
		return &ai.ChatResponse{Content: "ok"}, nil
	}

	resp, err := NewRetryMiddleware(fastRetry(3)).Send(send)(context.Background(), ai.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" || calls != 3 {
		t.Errorf("content=%q calls=%d, want ok after 3 calls", resp.Content, calls)
	}
}

func TestRetryMiddleware_DoesNotRetryNonTransport(t *testing.T) {
	for _, sentinel := range []error{ai.ErrAuthentication, ai.ErrMalformedResponse, ai.ErrModel} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			calls := 0
			send := func(context.Context, ai.ChatRequest) (*ai.ChatResponse, error) {
				calls++
				return nil, sentinel
			}

			_, err := NewRetryMiddleware(fastRetry(3)).Send(send)(context.Background(), ai.ChatRequest{})
			if !errors.Is(err, sentinel) {
				t.Errorf("expected %v, got %v", sentinel, err)
			}
			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
		})
	}
}

func TestRetryMiddleware_Exhausted(t *testing.T) {
	calls := 0
	send := func(context.Context, ai.ChatRequest) (*ai.ChatResponse, error) {
		calls++
		return nil, ai.ErrTransport
	}

	_, err := NewRetryMiddleware(fastRetry(2)).Send(send)(context.Background(), ai.ChatRequest{})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, ai.ErrTransport) {
		t.Errorf("exhausted error should still match ErrTransport: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryMiddleware_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	send := func(context.Context, ai.ChatRequest) (*ai.ChatResponse, error) {
		calls++
		cancel()
		return nil, ai.ErrTransport
	}

	_, err := NewRetryMiddleware(fastRetry(5)).Send(send)(ctx, ai.ChatRequest{})
	if !errors.Is(err, ai.ErrTransport) {
		t.Errorf("expected the provider error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryMiddleware_StreamRetriesOnlyBeforeFirstDelta(t *testing.T) {
	opens := 0
	streamFunc := func(context.Context, ai.ChatRequest) (*ai.ChatStream, error) {
		opens++
		if opens == 1 {
			return nil, ai.ErrTransport
		}
		return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
			if !yield(ai.StreamEvent{Type: ai.StreamEventContent, Content: "partial"}, nil) {
				return
			}
			yield(ai.StreamEvent{}, fmt.Errorf("%w: connection reset", ai.ErrTransport))
		}), nil
	}

	stream, err := NewRetryMiddleware(fastRetry(3)).Stream(streamFunc)(context.Background(), ai.ChatRequest{})
	if err != nil {
		t.Fatalf("stream should open on the second attempt: %v", err)
	}

	resp, err := stream.Collect()
	if !errors.Is(err, ai.ErrTransport) {
		t.Errorf("mid-stream error should pass through, got %v", err)
	}
	if resp.Content != "partial" {
		t.Errorf("content = %q, want partial", resp.Content)
	}
	if opens != 2 {
		t.Errorf("opens = %d, want 2", opens)
	}
}

func TestComputeBackoff_Capped(t *testing.T) {
	config := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, BackoffFactor: 2, JitterFraction: 0.1}

	if got := computeBackoff(config, 0); got < time.Second || got > 1100*time.Millisecond {
		t.Errorf("attempt 0 backoff = %v", got)
	}
	if got := computeBackoff(config, 5); got < 3*time.Second || got > 3300*time.Millisecond {
		t.Errorf("attempt 5 backoff = %v, want capped near 3s", got)
	}
}

package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/leofalp/mammochat/core/client"
	"github.com/leofalp/mammochat/providers/ai"
)

// RetryConfig tunes the retry middleware. Zero values are replaced with the
// defaults noted on each field.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first failure. Default: 2.
	MaxRetries int

	// InitialBackoff is the wait before the first retry. Default: 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the computed backoff. Default: 10s.
	MaxBackoff time.Duration

	// BackoffFactor is the exponential growth multiplier. Default: 2.0.
	BackoffFactor float64

	// JitterFraction adds up to JitterFraction*backoff of random noise. Default: 0.1.
	JitterFraction float64

	// RetryableFunc reports whether err should trigger another attempt.
	// Default: errors.Is(err, ai.ErrTransport). Authentication, malformed
	// response and model errors are never retried by default.
	RetryableFunc func(error) bool
}

func defaultRetryableFunc(err error) bool {
	return errors.Is(err, ai.ErrTransport)
}

func applyRetryDefaults(config *RetryConfig) {
	if config.MaxRetries == 0 {
		config.MaxRetries = 2
	}

	if config.InitialBackoff == 0 {
		config.InitialBackoff = 500 * time.Millisecond
	}

	if config.MaxBackoff == 0 {
		config.MaxBackoff = 10 * time.Second
	}

	if config.BackoffFactor == 0 {
		config.BackoffFactor = 2.0
	}

	if config.JitterFraction == 0 {
		config.JitterFraction = 0.1
	}

	if config.RetryableFunc == nil {
		config.RetryableFunc = defaultRetryableFunc
	}
}

// computeBackoff returns min(InitialBackoff * BackoffFactor^attempt, MaxBackoff) plus jitter.
func computeBackoff(config RetryConfig, attempt int) time.Duration {
	base := float64(config.InitialBackoff) * math.Pow(config.BackoffFactor, float64(attempt))
	if base > float64(config.MaxBackoff) {
		base = float64(config.MaxBackoff)
	}

	jitter := base * config.JitterFraction * rand.Float64() //nolint:gosec // non-cryptographic jitter
	return time.Duration(base + jitter)
}

// NewRetryMiddleware retries failed calls with exponential backoff. It is
// opt-in: the gateways themselves never retry.
//
// Streams are retried only when they fail before the first delta; once the
// provider has returned a ChatStream, mid-stream errors are passed through
// because deltas may already have reached the consumer.
//
// On exhaustion the error wraps both [ErrRetryExhausted] and the last provider
// error.
func NewRetryMiddleware(config RetryConfig) client.MiddlewareConfig {
	applyRetryDefaults(&config)

	return client.MiddlewareConfig{
		Send: func(next client.SendFunc) client.SendFunc {
			return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
				return withRetry(ctx, config, func() (*ai.ChatResponse, error) {
					return next(ctx, request)
				})
			}
		},
		Stream: func(next client.StreamFunc) client.StreamFunc {
			return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
				return withRetry(ctx, config, func() (*ai.ChatStream, error) {
					return next(ctx, request)
				})
			}
		},
	}
}

func withRetry[T any](ctx context.Context, config RetryConfig, attemptFunc func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(computeBackoff(config, attempt-1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, lastErr
			case <-timer.C:
			}
		}

		result, err := attemptFunc()
		if err == nil {
			return result, nil
		}

		lastErr = err

		// A cancelled caller is not a transient failure.
		if ctx.Err() != nil || !config.RetryableFunc(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d retries: %w", ErrRetryExhausted, config.MaxRetries, lastErr)
}

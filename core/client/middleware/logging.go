package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/leofalp/mammochat/core/client"
	"github.com/leofalp/mammochat/internal/utils"
	"github.com/leofalp/mammochat/providers/ai"
)

// LogLevel controls how much detail the logging middleware emits per request.
type LogLevel int

const (
	// LogLevelMinimal logs the model, duration and token counts.
	LogLevelMinimal LogLevel = iota

	// LogLevelStandard adds message and tool counts and the finish reason.
	LogLevelStandard

	// LogLevelVerbose adds the last user message and the response text, each
	// truncated. It logs conversation content and is meant for local debugging.
	LogLevelVerbose
)

const truncateLen = 300

// NewLoggingMiddleware emits one slog entry before and one after every model
// call. For streams the completion entry is written once the iterator ends.
// A nil logger falls back to slog.Default().
func NewLoggingMiddleware(logger *slog.Logger, level LogLevel) client.MiddlewareConfig {
	if logger == nil {
		logger = slog.Default()
	}
	return client.MiddlewareConfig{
		Send:   buildSendLogging(logger, level),
		Stream: buildStreamLogging(logger, level),
	}
}

func buildSendLogging(logger *slog.Logger, level LogLevel) client.Middleware {
	return func(next client.SendFunc) client.SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			logger.InfoContext(ctx, "llm send", buildRequestAttrs(request, level)...)

			start := time.Now()
			response, err := next(ctx, request)
			elapsed := time.Since(start)

			if err != nil {
				logFailure(ctx, logger, "llm send failed", request.Model, elapsed, err)
				return nil, err
			}

			attrs := []any{
				slog.String("model", request.Model),
				slog.Duration("duration", elapsed),
			}
			attrs = append(attrs, usageAttrs(response.Usage)...)
			if level >= LogLevelStandard {
				attrs = append(attrs,
					slog.String("finish_reason", response.FinishReason),
					slog.Int("tool_calls", len(response.ToolCalls)),
				)
			}
			if level >= LogLevelVerbose && response.Content != "" {
				attrs = append(attrs, slog.String("response_content", utils.TruncateString(response.Content, truncateLen)))
			}

			logger.InfoContext(ctx, "llm send completed", attrs...)
			return response, nil
		}
	}
}

func buildStreamLogging(logger *slog.Logger, level LogLevel) client.StreamMiddleware {
	return func(next client.StreamFunc) client.StreamFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
			logger.InfoContext(ctx, "llm stream", buildRequestAttrs(request, level)...)

			start := time.Now()
			stream, err := next(ctx, request)
			if err != nil {
				logFailure(ctx, logger, "llm stream failed", request.Model, time.Since(start), err)
				return nil, err
			}

			return wrapStreamWithLogging(ctx, stream, logger, request.Model, level, start), nil
		}
	}
}

func wrapStreamWithLogging(
	ctx context.Context,
	stream *ai.ChatStream,
	logger *slog.Logger,
	model string,
	level LogLevel,
	start time.Time,
) *ai.ChatStream {
	return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
		var (
			finishReason string
			usage        *ai.Usage
			contentBytes int
		)

		for event, err := range stream.Iter() {
			if err != nil {
				logFailure(ctx, logger, "llm stream failed", model, time.Since(start), err)
				yield(event, err)
				return
			}

			switch event.Type {
			case ai.StreamEventContent:
				contentBytes += len(event.Content)
			case ai.StreamEventUsage:
				usage = event.Usage
			case ai.StreamEventDone:
				finishReason = event.FinishReason
			}

			if !yield(event, nil) {
				logger.InfoContext(ctx, "llm stream abandoned",
					slog.String("model", model),
					slog.Duration("duration", time.Since(start)),
				)
				return
			}
		}

		attrs := []any{
			slog.String("model", model),
			slog.Duration("duration", time.Since(start)),
		}
		attrs = append(attrs, usageAttrs(usage)...)
		if level >= LogLevelStandard {
			attrs = append(attrs,
				slog.String("finish_reason", finishReason),
				slog.Int("content_bytes", contentBytes),
			)
		}

		logger.InfoContext(ctx, "llm stream completed", attrs...)
	})
}

func buildRequestAttrs(request ai.ChatRequest, level LogLevel) []any {
	attrs := []any{slog.String("model", request.Model)}

	if level >= LogLevelStandard {
		attrs = append(attrs,
			slog.Int("message_count", len(request.Messages)),
			slog.Int("tool_count", len(request.Tools)),
		)
	}

	if level >= LogLevelVerbose {
		for i := len(request.Messages) - 1; i >= 0; i-- {
			if request.Messages[i].Role == ai.RoleUser {
				attrs = append(attrs, slog.String("last_user_message", utils.TruncateString(request.Messages[i].Content, truncateLen)))
				break
			}
		}
	}

	return attrs
}

func usageAttrs(usage *ai.Usage) []any {
	if usage == nil {
		return nil
	}
	return []any{
		slog.Int("prompt_tokens", usage.PromptTokens),
		slog.Int("completion_tokens", usage.CompletionTokens),
		slog.Int("total_tokens", usage.TotalTokens),
	}
}

func logFailure(ctx context.Context, logger *slog.Logger, msg, model string, elapsed time.Duration, err error) {
	logger.ErrorContext(ctx, msg,
		slog.String("model", model),
		slog.Duration("duration", elapsed),
		slog.String("error", err.Error()),
	)
}

package client

import (
	"context"
	"time"

	"github.com/leofalp/mammochat/providers/ai"
	"github.com/leofalp/mammochat/providers/observability"
)

// NewObservabilityMiddleware opens one llm.request span per model call and
// records request count, duration and token usage. For streams the span stays
// open until the iterator finishes, fails, or is abandoned.
//
// [WithObserver] installs it automatically; use it directly only to control its
// position in the chain.
func NewObservabilityMiddleware(observer observability.Provider, providerName, defaultModel string) MiddlewareConfig {
	observer = observability.OrNop(observer)
	return MiddlewareConfig{
		Send:   buildObsSend(observer, providerName, defaultModel),
		Stream: buildObsStream(observer, providerName, defaultModel),
	}
}

func buildObsSend(observer observability.Provider, providerName, defaultModel string) Middleware {
	return func(next SendFunc) SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			model := modelName(request, defaultModel)
			ctx, span := startLLMSpan(ctx, observer, request, providerName, model, false)
			defer span.End()

			start := time.Now()
			response, err := next(ctx, request)
			duration := time.Since(start)

			if err != nil {
				recordObsFailure(ctx, observer, span, providerName, model, duration, err)
				return nil, err
			}

			recordObsSuccess(ctx, observer, span, providerName, model, duration, response.FinishReason, response.Usage, len(response.ToolCalls))
			return response, nil
		}
	}
}

func buildObsStream(observer observability.Provider, providerName, defaultModel string) StreamMiddleware {
	return func(next StreamFunc) StreamFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
			model := modelName(request, defaultModel)
			ctx, span := startLLMSpan(ctx, observer, request, providerName, model, true)

			start := time.Now()
			stream, err := next(ctx, request)
			if err != nil {
				recordObsFailure(ctx, observer, span, providerName, model, time.Since(start), err)
				span.End()
				return nil, err
			}

			return wrapStreamWithObservability(ctx, stream, observer, span, providerName, model, start), nil
		}
	}
}

func wrapStreamWithObservability(
	ctx context.Context,
	stream *ai.ChatStream,
	observer observability.Provider,
	span observability.Span,
	providerName, model string,
	start time.Time,
) *ai.ChatStream {
	return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
		defer span.End()

		var (
			usage        *ai.Usage
			finishReason string
			toolCalls    int
		)

		for event, err := range stream.Iter() {
			if err != nil {
				recordObsFailure(ctx, observer, span, providerName, model, time.Since(start), err)
				yield(event, err)
				return
			}

			switch event.Type {
			case ai.StreamEventUsage:
				usage = event.Usage
			case ai.StreamEventDone:
				finishReason = event.FinishReason
			case ai.StreamEventToolCall:
				if event.ToolCall != nil && event.ToolCall.Name != "" {
					toolCalls++
				}
			}

			if !yield(event, nil) {
				span.SetAttributes(observability.Bool("llm.stream.abandoned", true))
				return
			}
		}

		recordObsSuccess(ctx, observer, span, providerName, model, time.Since(start), finishReason, usage, toolCalls)
	})
}

func startLLMSpan(
	ctx context.Context,
	observer observability.Provider,
	request ai.ChatRequest,
	providerName, model string,
	streaming bool,
) (context.Context, observability.Span) {
	toolNames := make([]string, 0, len(request.Tools))
	for _, tool := range request.Tools {
		toolNames = append(toolNames, tool.Name)
	}

	ctx, span := observer.StartSpan(ctx, observability.SpanLLMRequest,
		observability.String(observability.AttrLLMProvider, providerName),
		observability.String(observability.AttrLLMModel, model),
		observability.Bool(observability.AttrLLMStreaming, streaming),
		observability.Int(observability.AttrRequestMessagesCount, len(request.Messages)),
		observability.Int(observability.AttrRequestToolsCount, len(request.Tools)),
		observability.Strings("request.tools", toolNames),
	)
	ctx = observability.ContextWithSpan(ctx, span)
	span.AddEvent(observability.EventLLMRequestStart)

	observer.Debug(ctx, "model request",
		observability.String(observability.AttrLLMModel, model),
		observability.Int(observability.AttrRequestMessagesCount, len(request.Messages)),
	)

	return ctx, span
}

func recordObsSuccess(
	ctx context.Context,
	observer observability.Provider,
	span observability.Span,
	providerName, model string,
	duration time.Duration,
	finishReason string,
	usage *ai.Usage,
	toolCalls int,
) {
	attrs := []observability.Attribute{
		observability.String(observability.AttrLLMProvider, providerName),
		observability.String(observability.AttrLLMModel, model),
	}

	span.SetAttributes(
		observability.String(observability.AttrLLMFinishReason, finishReason),
		observability.Duration(observability.AttrDuration, duration),
		observability.Int("llm.tool_calls", toolCalls),
	)

	if usage != nil {
		span.SetAttributes(
			observability.Int(observability.AttrLLMTokensPrompt, usage.PromptTokens),
			observability.Int(observability.AttrLLMTokensCompletion, usage.CompletionTokens),
			observability.Int(observability.AttrLLMTokensTotal, usage.TotalTokens),
		)
		observer.Counter(observability.MetricLLMTokensTotal).Add(ctx, int64(usage.TotalTokens), attrs...)
	}

	span.AddEvent(observability.EventLLMRequestEnd)
	span.SetStatus(observability.StatusOK, "")

	observer.Counter(observability.MetricLLMRequestCount).Add(ctx, 1, append(attrs, observability.String(observability.AttrStatus, "ok"))...)
	observer.Histogram(observability.MetricLLMRequestDuration).Record(ctx, duration.Seconds(), attrs...)

	observer.Debug(ctx, "model request completed",
		observability.String(observability.AttrLLMFinishReason, finishReason),
		observability.Duration(observability.AttrDuration, duration),
	)
}

func recordObsFailure(
	ctx context.Context,
	observer observability.Provider,
	span observability.Span,
	providerName, model string,
	duration time.Duration,
	err error,
) {
	attrs := []observability.Attribute{
		observability.String(observability.AttrLLMProvider, providerName),
		observability.String(observability.AttrLLMModel, model),
	}

	span.RecordError(err)
	span.SetStatus(observability.StatusError, err.Error())

	observer.Counter(observability.MetricLLMRequestCount).Add(ctx, 1, append(attrs, observability.String(observability.AttrStatus, "error"))...)
	observer.Histogram(observability.MetricLLMRequestDuration).Record(ctx, duration.Seconds(), attrs...)

	observer.Error(ctx, "model request failed",
		observability.String(observability.AttrLLMModel, model),
		observability.Duration(observability.AttrDuration, duration),
		observability.Error(err),
	)
}

func modelName(request ai.ChatRequest, defaultModel string) string {
	if request.Model != "" {
		return request.Model
	}
	return defaultModel
}

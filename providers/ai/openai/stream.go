package openai

import (
	"context"
	"fmt"
	"io"

	"github.com/leofalp/mammochat/internal/utils"
	"github.com/leofalp/mammochat/providers/ai"
)

// StreamMessage implements ai.StreamProvider. Errors before the stream opens
// are returned directly; read and decode failures during the stream are
// yielded by the iterator, wrapped in ai.ErrTransport or ai.ErrMalformedResponse.
func (p *Provider) StreamMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: API key is not set", ai.ErrAuthentication)
	}

	p.annotateSpan(ctx, request, true)

	chatRequest := requestToChatCompletion(p.withModel(request))
	streamEnabled := true
	chatRequest.Stream = &streamEnabled
	chatRequest.StreamOptions = &streamOptions{IncludeUsage: true}

	httpResponse, err := utils.DoPostStream(ctx, p.client, p.baseURL+chatCompletionsEndpoint, p.apiKey, chatRequest)
	if err != nil {
		return nil, classifyError(err)
	}

	sseScanner := utils.NewSSEScanner(httpResponse.Body)

	return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
		defer utils.CloseWithLog(httpResponse.Body)

		for {
			if ctx.Err() != nil {
				yield(ai.StreamEvent{}, fmt.Errorf("%w: %w", ai.ErrTransport, ctx.Err()))
				return
			}

			payload, sseErr := sseScanner.Next()
			if sseErr == io.EOF {
				return
			}
			if sseErr != nil {
				yield(ai.StreamEvent{}, fmt.Errorf("%w: SSE read error: %w", ai.ErrTransport, sseErr))
				return
			}

			chunk, parseErr := unmarshalStreamChunk(payload)
			if parseErr != nil {
				yield(ai.StreamEvent{}, fmt.Errorf("%w: failed to parse streaming chunk: %w", ai.ErrMalformedResponse, parseErr))
				return
			}

			for _, event := range chunkToStreamEvents(chunk) {
				if !yield(event, nil) {
					return
				}
			}
		}
	}), nil
}

// chunkToStreamEvents converts one chunk into zero or more events. A chunk can
// carry content, tool call fragments, usage and a finish reason at once.
func chunkToStreamEvents(chunk *chatCompletionStreamChunk) []ai.StreamEvent {
	var events []ai.StreamEvent

	for _, choice := range chunk.Choices {
		delta := choice.Delta

		if delta.Content != nil && *delta.Content != "" {
			events = append(events, ai.StreamEvent{
				Type:    ai.StreamEventContent,
				Content: *delta.Content,
			})
		}

		for _, part := range delta.ToolCalls {
			events = append(events, ai.StreamEvent{
				Type: ai.StreamEventToolCall,
				ToolCall: &ai.ToolCallDelta{
					Index:     part.Index,
					ID:        part.ID,
					Name:      part.Function.Name,
					Arguments: part.Function.Arguments,
				},
			})
		}

		if choice.FinishReason != nil && *choice.FinishReason != "" {
			events = append(events, ai.StreamEvent{
				Type:         ai.StreamEventDone,
				FinishReason: *choice.FinishReason,
			})
		}
	}

	if chunk.Usage != nil {
		events = append(events, ai.StreamEvent{
			Type: ai.StreamEventUsage,
			Usage: &ai.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			},
		})
	}

	return events
}

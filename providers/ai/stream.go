package ai

import (
	"iter"
	"strings"
)

// StreamEventType identifies the kind of delta carried by a StreamEvent.
type StreamEventType string

const (
	StreamEventContent  StreamEventType = "content"   // text delta
	StreamEventToolCall StreamEventType = "tool_call" // tool call name or argument fragment
	StreamEventUsage    StreamEventType = "usage"     // token usage, usually last
	StreamEventDone     StreamEventType = "done"      // normal end of stream
)

// ToolCallDelta is an incremental update to the tool call at Index. ID and
// Name arrive on the first fragment only; later fragments carry Arguments.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// StreamEvent is one delta of a streamed completion.
type StreamEvent struct {
	Type         StreamEventType `json:"type"`
	Content      string          `json:"content,omitempty"`
	ToolCall     *ToolCallDelta  `json:"tool_call,omitempty"`
	Usage        *Usage          `json:"usage,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"` // set on StreamEventDone
}

// ChatStream wraps a streaming iterator. It is consumed either by ranging over
// Iter or by calling Collect.
//
// A stream must be consumed: the provider may hold an open response body that
// is only released when the iterator finishes or the range loop breaks.
type ChatStream struct {
	iterator iter.Seq2[StreamEvent, error]
}

// NewChatStream wraps iterator. A non-nil error yielded by iterator ends the stream.
func NewChatStream(iterator iter.Seq2[StreamEvent, error]) *ChatStream {
	return &ChatStream{iterator: iterator}
}

// NewSingleEventStream replays a synchronous response as a stream: content,
// then each tool call, then usage, then done.
func NewSingleEventStream(response *ChatResponse) *ChatStream {
	return NewChatStream(func(yield func(StreamEvent, error) bool) {
		if response.Content != "" {
			if !yield(StreamEvent{Type: StreamEventContent, Content: response.Content}, nil) {
				return
			}
		}

		for toolIndex, toolCall := range response.ToolCalls {
			if !yield(StreamEvent{
				Type: StreamEventToolCall,
				ToolCall: &ToolCallDelta{
					Index:     toolIndex,
					ID:        toolCall.ID,
					Name:      toolCall.Function.Name,
					Arguments: toolCall.Function.Arguments,
				},
			}, nil) {
				return
			}
		}

		if response.Usage != nil {
			if !yield(StreamEvent{Type: StreamEventUsage, Usage: response.Usage}, nil) {
				return
			}
		}

		yield(StreamEvent{Type: StreamEventDone, FinishReason: response.FinishReason}, nil)
	})
}

// Iter returns the underlying iterator for range-over-func loops.
func (stream *ChatStream) Iter() iter.Seq2[StreamEvent, error] {
	return stream.iterator
}

// Collect drains the stream into a ChatResponse. On a mid-stream error it
// returns what was accumulated so far together with the error.
func (stream *ChatStream) Collect() (*ChatResponse, error) {
	accumulated := &ChatResponse{}
	var acc ToolCallAccumulator

	for event, err := range stream.iterator {
		if err != nil {
			accumulated.ToolCalls = acc.ToolCalls()
			return accumulated, err
		}

		switch event.Type {
		case StreamEventContent:
			accumulated.Content += event.Content
		case StreamEventToolCall:
			acc.Add(event.ToolCall)
		case StreamEventUsage:
			if event.Usage != nil {
				accumulated.Usage = event.Usage
			}
		case StreamEventDone:
			accumulated.FinishReason = event.FinishReason
		}
	}

	accumulated.ToolCalls = acc.ToolCalls()
	return accumulated, nil
}

// MaxToolCallIndex bounds the tool-call index a stream may use. Deltas above
// it are ignored.
const MaxToolCallIndex = 127

// ToolCallAccumulator merges ToolCallDeltas, keyed by index, into complete
// ToolCalls. Fragments for different indexes may interleave. The zero value
// is ready to use.
type ToolCallAccumulator struct {
	builders []*toolCallBuilder
}

type toolCallBuilder struct {
	id        string
	name      string
	arguments strings.Builder
}

// Add merges one delta. A nil delta or an index outside
// [0, MaxToolCallIndex] is ignored.
func (a *ToolCallAccumulator) Add(delta *ToolCallDelta) {
	if delta == nil || delta.Index < 0 || delta.Index > MaxToolCallIndex {
		return
	}
	for len(a.builders) <= delta.Index {
		a.builders = append(a.builders, &toolCallBuilder{})
	}

	builder := a.builders[delta.Index]
	if delta.ID != "" && builder.id == "" {
		builder.id = delta.ID
	}
	if delta.Name != "" && builder.name == "" {
		builder.name = delta.Name
	}
	builder.arguments.WriteString(delta.Arguments)
}

// Len reports how many tool calls have been seen.
func (a *ToolCallAccumulator) Len() int { return len(a.builders) }

// ToolCalls returns the accumulated calls in index order, or nil when none.
func (a *ToolCallAccumulator) ToolCalls() []ToolCall {
	if len(a.builders) == 0 {
		return nil
	}
	calls := make([]ToolCall, 0, len(a.builders))
	for _, b := range a.builders {
		calls = append(calls, ToolCall{
			ID:   b.id,
			Type: "function",
			Function: ToolCallFunction{
				Name:      b.name,
				Arguments: b.arguments.String(),
			},
		})
	}
	return calls
}

package conversation

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leofalp/mammochat/patterns/agent"
	"github.com/leofalp/mammochat/providers/ai"
	"github.com/leofalp/mammochat/providers/memory"
	"github.com/leofalp/mammochat/providers/memory/inmemory"
)

type reply struct {
	events []ai.StreamEvent
	err    error
}

func textReply(parts ...string) reply {
	var r reply
	for _, part := range parts {
		r.events = append(r.events, ai.StreamEvent{Type: ai.StreamEventContent, Content: part})
	}
	r.events = append(r.events, ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: "stop"})
	return r
}

func toolReply(name, args string) reply {
	return reply{events: []ai.StreamEvent{
		{Type: ai.StreamEventToolCall, ToolCall: &ai.ToolCallDelta{Index: 0, ID: "call-1", Name: name, Arguments: args}},
		{Type: ai.StreamEventDone, FinishReason: "tool_calls"},
	}}
}

type fakeModel struct {
	mu       sync.Mutex
	replies  []reply
	requests [][]ai.Message
}

func (m *fakeModel) Complete(_ context.Context, messages []ai.Message, _ []ai.ToolDescription, _ string) (*ai.ChatStream, error) {
	m.mu.Lock()
	index := len(m.requests)
	m.requests = append(m.requests, slices.Clone(messages))
	r := m.replies[min(index, len(m.replies)-1)]
	m.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
		for _, event := range r.events {
			if !yield(event, nil) {
				return
			}
		}
	}), nil
}

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type failingMemory struct{ err error }

func (f failingMemory) Search(context.Context, memory.SearchRequest) (*memory.SearchResult, error) {
	return nil, f.err
}

func (f failingMemory) Ingest(context.Context, memory.IngestRequest) (*memory.Episode, error) {
	return nil, f.err
}

func (f failingMemory) ListSpaces(context.Context) ([]memory.Space, error) { return nil, f.err }

// blockingMemory holds every search until ctx is done.
type blockingMemory struct {
	*inmemory.Store
	entered chan struct{}
}

func (b *blockingMemory) Search(ctx context.Context, _ memory.SearchRequest) (*memory.SearchResult, error) {
	close(b.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

// capturingRunner records what the engine hands to the agent.
type capturingRunner struct {
	inner  *agent.Agent
	inputs []agent.Input
}

func (r *capturingRunner) Run(ctx context.Context, in agent.Input) (*agent.Stream, error) {
	r.inputs = append(r.inputs, in)
	return r.inner.Run(ctx, in)
}

func newEngine(model *fakeModel, mem memory.Provider, agentOpts []agent.Option, opts ...EngineOption) *Engine {
	return NewEngine(agent.New(model, mem, agentOpts...), opts...)
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, event := range events {
		out = append(out, event.Kind)
	}
	return out
}

func collect(t *testing.T, stream *TurnStream) ([]Event, error) {
	t.Helper()
	done := make(chan struct{})
	var (
		events []Event
		err    error
	)
	go func() {
		defer close(done)
		events, err = stream.Collect()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("turn did not finish")
	}
	return events, err
}

func requireOrdered(t *testing.T, events []Event) {
	t.Helper()
	require.NotEmpty(t, events)
	require.Equal(t, EventMessageStart, events[0].Kind)
	terminals := 0
	for i, event := range events {
		require.Equal(t, i, event.Seq)
		require.Equal(t, events[0].MessageID, event.MessageID)
		if event.Kind.Terminal() {
			terminals++
		}
	}
	require.Equal(t, 1, terminals)
	require.True(t, events[len(events)-1].Kind.Terminal())
}

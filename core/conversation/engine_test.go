package conversation

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leofalp/mammochat/patterns/agent"
	"github.com/leofalp/mammochat/providers/ai"
	"github.com/leofalp/mammochat/providers/memory"
	"github.com/leofalp/mammochat/providers/memory/inmemory"
	"github.com/leofalp/mammochat/providers/tool/memorytools"
)

func TestStreamTurn_CompletesWithMemoryFirst(t *testing.T) {
	model := &fakeModel{replies: []reply{textReply("Two trials ", "may match: ", "NCT01 and NCT02.")}}
	engine := newEngine(model, inmemory.New(), nil)
	conv := New()

	stream, err := engine.StreamTurn(context.Background(), conv, "What trials match HER2-positive stage II?")
	require.NoError(t, err)
	events, err := collect(t, stream)
	require.NoError(t, err)

	requireOrdered(t, events)
	assert.Equal(t, []EventKind{
		EventMessageStart,
		EventToolCallStarted, EventToolCallCompleted,
		EventChunk, EventChunk, EventChunk,
		EventMessageEnd,
	}, kinds(events))
	assert.Equal(t, memorytools.SearchToolName, events[1].Tool.Name)
	assert.Equal(t, events[1].Tool.StepID, events[2].Tool.StepID)
	assert.Equal(t, "Two trials may match: NCT01 and NCT02.", events[len(events)-1].Text)

	require.Len(t, conv.Messages, 2)
	assert.Equal(t, RoleUser, conv.Messages[0].Role)
	assert.Equal(t, RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, events[0].MessageID, conv.Messages[1].ID)
	require.NotEmpty(t, conv.ExecutionHistory)
	assert.Equal(t, memorytools.SearchToolName, conv.ExecutionHistory[0].Tool)
	assert.Equal(t, 0, conv.ExecutionHistory[0].Round)
	assert.Equal(t, StatusActive, conv.Status)
}

func TestStreamTurn_RejectsEmptyInputWithoutMutation(t *testing.T) {
	model := &fakeModel{replies: []reply{textReply("x")}}
	engine := newEngine(model, inmemory.New(), nil)
	conv := New()
	before := conv.UpdatedAt

	for _, text := range []string{"", "   ", "\n\t"} {
		stream, err := engine.StreamTurn(context.Background(), conv, text)
		require.ErrorIs(t, err, ErrInvalidInput)
		assert.Nil(t, stream)

		var turnErr *Error
		require.ErrorAs(t, err, &turnErr)
		assert.Equal(t, KindInvalidInput, turnErr.Kind)
	}

	assert.Empty(t, conv.Messages)
	assert.Equal(t, before, conv.UpdatedAt)
	assert.Equal(t, 0, model.calls())
}

func TestStreamTurn_RejectsInactiveConversation(t *testing.T) {
	engine := newEngine(&fakeModel{replies: []reply{textReply("x")}}, inmemory.New(), nil)
	conv := New()
	require.NoError(t, conv.Complete())

	_, err := engine.StreamTurn(context.Background(), conv, "hello")
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, conv.Messages)

	require.NoError(t, conv.Reopen())
	stream, err := engine.StreamTurn(context.Background(), conv, "hello")
	require.NoError(t, err)
	_, err = collect(t, stream)
	require.NoError(t, err)
}

func TestStreamTurn_BusyWhileTurnRuns(t *testing.T) {
	engine := newEngine(&fakeModel{replies: []reply{textReply("first answer")}}, inmemory.New(), nil)
	conv := New()

	first, err := engine.StreamTurn(context.Background(), conv, "first")
	require.NoError(t, err)

	_, err = engine.StreamTurn(context.Background(), conv, "second")
	require.ErrorIs(t, err, ErrConversationBusy)
	assert.ErrorIs(t, conv.SetMemorySpaces("s2"), ErrConversationBusy)
	assert.ErrorIs(t, conv.Reset(), ErrConversationBusy)

	events, err := collect(t, first)
	require.NoError(t, err)
	requireOrdered(t, events)
	assert.Equal(t, "first answer", events[len(events)-1].Text)
	require.Len(t, conv.Messages, 2, "the rejected turn must not append")

	require.NoError(t, conv.SetMemorySpaces("s2"))
	second, err := engine.StreamTurn(context.Background(), conv, "second")
	require.NoError(t, err)
	_, err = collect(t, second)
	require.NoError(t, err)
}

func TestStreamTurn_CloseReleasesLock(t *testing.T) {
	engine := newEngine(&fakeModel{replies: []reply{textReply("x")}}, inmemory.New(), nil)
	conv := New()

	stream, err := engine.StreamTurn(context.Background(), conv, "hello")
	require.NoError(t, err)
	stream.Close()
	stream.Close()

	_, err = collect(t, stream)
	require.ErrorIs(t, err, ErrStreamConsumed)

	next, err := engine.StreamTurn(context.Background(), conv, "again")
	require.NoError(t, err)
	next.Close()
}

func TestStreamTurn_ModelFailureErrorsConversation(t *testing.T) {
	model := &fakeModel{replies: []reply{{err: fmt.Errorf("%w: status 401", ai.ErrAuthentication)}}}
	engine := newEngine(model, inmemory.New(), nil)
	conv := New()

	stream, err := engine.StreamTurn(context.Background(), conv, "hello")
	require.NoError(t, err)
	events, err := collect(t, stream)

	require.ErrorIs(t, err, ErrAuthentication)
	assert.ErrorIs(t, err, ai.ErrAuthentication)
	requireOrdered(t, events)
	assert.Equal(t, []EventKind{EventMessageStart, EventToolCallStarted, EventToolCallCompleted, EventError}, kinds(events))

	last := events[len(events)-1]
	require.NotNil(t, last.Err)
	assert.Equal(t, KindAuthentication, last.Err.Kind)
	assert.False(t, last.Err.Kind.Retryable())

	assert.Equal(t, StatusErrored, conv.Status)
	require.Len(t, conv.Messages, 1, "no assistant message on failure")
	assert.Len(t, conv.ExecutionHistory, 1, "steps already produced are kept")
	assert.Nil(t, conv.LastAssistantMessage())

	_, err = engine.StreamTurn(context.Background(), conv, "retry")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestStreamTurn_TransportFailureIsRetryable(t *testing.T) {
	model := &fakeModel{replies: []reply{{err: fmt.Errorf("%w: status 503", ai.ErrTransport)}}}
	engine := newEngine(model, inmemory.New(), nil)

	stream, err := engine.StreamTurn(context.Background(), New(), "hello")
	require.NoError(t, err)
	_, err = collect(t, stream)

	var turnErr *Error
	require.ErrorAs(t, err, &turnErr)
	assert.Equal(t, KindTransport, turnErr.Kind)
	assert.True(t, turnErr.Kind.Retryable())
}

func TestStreamTurn_WhitespaceReplyErrorsConversation(t *testing.T) {
	model := &fakeModel{replies: []reply{textReply("  ", "\n")}}
	engine := newEngine(model, inmemory.New(), nil)
	conv := New()

	stream, err := engine.StreamTurn(context.Background(), conv, "hello")
	require.NoError(t, err)
	events, err := collect(t, stream)

	require.ErrorIs(t, err, agent.ErrEmptyReply)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Kind)
	require.NotNil(t, last.Err)
	assert.Equal(t, KindModel, last.Err.Kind)

	assert.Equal(t, StatusErrored, conv.Status)
	assert.Nil(t, conv.LastAssistantMessage())
}

func TestStreamTurn_MemoryAuthFailureDegrades(t *testing.T) {
	model := &fakeModel{replies: []reply{textReply("Answer without memory.")}}
	engine := newEngine(model, failingMemory{err: memory.ErrAuthentication}, nil)
	conv := New()

	stream, err := engine.StreamTurn(context.Background(), conv, "hello")
	require.NoError(t, err)
	events, err := collect(t, stream)
	require.NoError(t, err)

	assert.Equal(t, EventMessageEnd, events[len(events)-1].Kind)
	assert.Equal(t, 1, model.calls())

	require.Len(t, conv.ExecutionHistory, 1)
	stepErr := conv.ExecutionHistory[0].Error
	require.NotNil(t, stepErr)
	assert.Equal(t, "memory_unavailable", stepErr.Marker)
	assert.Equal(t, KindAuthentication, stepErr.Kind)
	assert.Equal(t, stepErr, events[2].Tool.Error)
	assert.Equal(t, StatusActive, conv.Status)
}

func TestStreamTurn_MemoryAuthFailureFailsTurn(t *testing.T) {
	model := &fakeModel{replies: []reply{textReply("never")}}
	engine := newEngine(model, failingMemory{err: memory.ErrAuthentication},
		[]agent.Option{agent.WithMemoryFailurePolicy(agent.FailOnMemoryFailure)})
	conv := New()

	stream, err := engine.StreamTurn(context.Background(), conv, "hello")
	require.NoError(t, err)
	events, err := collect(t, stream)

	require.ErrorIs(t, err, ErrAuthentication)
	assert.ErrorIs(t, err, memory.ErrAuthentication)
	assert.Equal(t, EventError, events[len(events)-1].Kind)
	assert.Equal(t, 0, model.calls())
	assert.Equal(t, StatusErrored, conv.Status)
}

func TestStreamTurn_MalformedMemoryPayloadIsTransport(t *testing.T) {
	engine := newEngine(&fakeModel{replies: []reply{textReply("never")}}, failingMemory{err: memory.ErrMalformedResponse},
		[]agent.Option{agent.WithMemoryFailurePolicy(agent.FailOnMemoryFailure)})

	stream, err := engine.StreamTurn(context.Background(), New(), "hello")
	require.NoError(t, err)
	_, err = collect(t, stream)
	require.ErrorIs(t, err, ErrTransport)
}

func TestStreamTurn_MissingToolParameterContinues(t *testing.T) {
	model := &fakeModel{replies: []reply{
		toolReply(memorytools.SearchToolName, `{"limit":2}`),
		textReply("Here is what I know."),
	}}
	engine := newEngine(model, inmemory.New(), nil)
	conv := New()

	stream, err := engine.StreamTurn(context.Background(), conv, "what do you remember?")
	require.NoError(t, err)
	events, err := collect(t, stream)
	require.NoError(t, err)

	requireOrdered(t, events)
	assert.Equal(t, EventMessageEnd, events[len(events)-1].Kind)
	require.Len(t, conv.ExecutionHistory, 2)
	failed := conv.ExecutionHistory[1]
	require.NotNil(t, failed.Error)
	assert.Equal(t, KindToolInput, failed.Error.Kind)
	assert.Equal(t, 1, failed.Round)
	assert.Equal(t, "Here is what I know.", conv.LastAssistantMessage().Content)
}

func TestStreamTurn_ToolLoopExceeded(t *testing.T) {
	model := &fakeModel{replies: []reply{toolReply(memorytools.SearchToolName, `{"query":"loop"}`)}}
	engine := newEngine(model, inmemory.New(), []agent.Option{agent.WithMaxToolRounds(1)})
	conv := New()

	stream, err := engine.StreamTurn(context.Background(), conv, "hello")
	require.NoError(t, err)
	events, err := collect(t, stream)

	require.ErrorIs(t, err, ErrToolLoopExceeded)
	assert.ErrorIs(t, err, agent.ErrToolLoopExceeded)
	requireOrdered(t, events)
	assert.Equal(t, StatusErrored, conv.Status)
}

func TestStreamTurn_ConsumerBreakCancels(t *testing.T) {
	model := &fakeModel{replies: []reply{textReply("a", "b", "c")}}
	engine := newEngine(model, inmemory.New(), nil)
	conv := New()

	stream, err := engine.StreamTurn(context.Background(), conv, "hello")
	require.NoError(t, err)

	var seen []EventKind
	for event, err := range stream.Iter() {
		require.NoError(t, err)
		seen = append(seen, event.Kind)
		if event.Kind == EventChunk {
			break
		}
	}

	assert.NotContains(t, seen, EventMessageEnd)
	assert.Equal(t, StatusActive, conv.Status)
	require.Len(t, conv.Messages, 1, "only the user message is kept")
	assert.Empty(t, conv.ExecutionHistory)

	next, err := engine.StreamTurn(context.Background(), conv, "again")
	require.NoError(t, err, "the lock must be released")
	next.Close()
}

func TestStreamTurn_ContextCancelStopsWithoutTerminal(t *testing.T) {
	mem := &blockingMemory{Store: inmemory.New(), entered: make(chan struct{})}
	engine := newEngine(&fakeModel{replies: []reply{textReply("never")}}, mem, nil)
	conv := New()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := engine.StreamTurn(ctx, conv, "hello")
	require.NoError(t, err)

	go func() {
		<-mem.entered
		cancel()
	}()
	events, err := collect(t, stream)

	require.NoError(t, err)
	assert.Equal(t, []EventKind{EventMessageStart, EventToolCallStarted}, kinds(events))
	assert.Equal(t, StatusActive, conv.Status)
	assert.Len(t, conv.Messages, 1)

	next, err := engine.StreamTurn(context.Background(), conv, "again")
	require.NoError(t, err)
	next.Close()
}

func TestStreamTurn_HistoryWindowLimitsPromptOnly(t *testing.T) {
	model := &fakeModel{replies: []reply{textReply("ok")}}
	engine := newEngine(model, inmemory.New(), nil, WithHistoryWindow(3))
	conv := New()

	for i := range 3 {
		stream, err := engine.StreamTurn(context.Background(), conv, fmt.Sprintf("question %d", i))
		require.NoError(t, err)
		_, err = collect(t, stream)
		require.NoError(t, err)
	}

	assert.Len(t, conv.Messages, 6)
	last := model.requests[len(model.requests)-1]
	require.Len(t, last, 3)
	assert.Equal(t, ai.Message{Role: ai.RoleUser, Content: "question 1"}, last[0])
	assert.Equal(t, ai.Message{Role: ai.RoleAssistant, Content: "ok"}, last[1])
	assert.Equal(t, ai.Message{Role: ai.RoleUser, Content: "question 2"}, last[2])
}

func TestStreamTurn_SystemMessagesNeverSent(t *testing.T) {
	model := &fakeModel{replies: []reply{textReply("ok")}}
	engine := newEngine(model, inmemory.New(), nil)
	conv := New()
	conv.Messages = append(conv.Messages, ChatMessage{ID: "sys", Role: RoleSystem, Content: "internal note"})

	stream, err := engine.StreamTurn(context.Background(), conv, "hello")
	require.NoError(t, err)
	_, err = collect(t, stream)
	require.NoError(t, err)

	for _, message := range model.requests[0] {
		assert.NotEqual(t, ai.RoleSystem, message.Role)
	}
}

func TestStreamTurn_TemplateErrorIsSynchronous(t *testing.T) {
	model := &fakeModel{replies: []reply{textReply("x")}}
	engine := newEngine(model, inmemory.New(), []agent.Option{agent.WithTemplate("Hi {name}, tools: {tools}")})
	conv := New()

	stream, err := engine.StreamTurn(context.Background(), conv, "hello")
	require.ErrorIs(t, err, agent.ErrInvalidTemplate)
	assert.Nil(t, stream)
	assert.Empty(t, conv.Messages)
	assert.Equal(t, 0, model.calls())
	assert.NoError(t, conv.Reset(), "the lock must be released")
}

func TestStreamTurn_TurnOptions(t *testing.T) {
	runner := &capturingRunner{inner: agent.New(&fakeModel{replies: []reply{textReply("ok")}}, inmemory.New())}
	engine := NewEngine(runner)
	conv := New(WithID("conv-42"), WithSpaceIDs("default"))

	stream, err := engine.StreamTurn(context.Background(), conv, "  hello  ",
		WithMemorySpaces("override"),
		WithTurnMetadata(map[string]any{"channel": "cli"}),
	)
	require.NoError(t, err)
	_, err = collect(t, stream)
	require.NoError(t, err)

	require.Len(t, runner.inputs, 1)
	in := runner.inputs[0]
	assert.Equal(t, "hello", in.Query)
	assert.Equal(t, []string{"override"}, in.Scope.SpaceIDs)
	assert.Equal(t, "conv-42", in.Scope.SessionID)
	assert.Equal(t, []string{"default"}, conv.MemorySpaceIDs, "per-turn override must not change the conversation")

	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, "cli", conv.Messages[0].Metadata["channel"])
}

func TestStreamTurn_ConcurrentConversationsAreIndependent(t *testing.T) {
	engine := newEngine(&fakeModel{replies: []reply{textReply("ok")}}, inmemory.New(), nil)

	convs := []*ConversationState{New(), New(), New()}
	errs := make(chan error, len(convs))
	for _, conv := range convs {
		go func() {
			stream, err := engine.StreamTurn(context.Background(), conv, "hello")
			if err != nil {
				errs <- err
				return
			}
			_, err = stream.Collect()
			errs <- err
		}()
	}
	for range convs {
		require.NoError(t, <-errs)
	}
	for _, conv := range convs {
		assert.Len(t, conv.Messages, 2)
	}
}

func TestStreamTurn_IngestNoteIsStored(t *testing.T) {
	store := inmemory.New()
	model := &fakeModel{replies: []reply{
		toolReply(memorytools.IngestToolName, `{"note":"<p>Allergic to <b>penicillin</b></p>"}`),
		textReply("Noted."),
	}}
	engine := newEngine(model, store, nil)
	conv := New()

	stream, err := engine.StreamTurn(context.Background(), conv, "I'm allergic to penicillin")
	require.NoError(t, err)
	events, err := collect(t, stream)
	require.NoError(t, err)

	var ingest *ToolInfo
	for _, event := range events {
		if event.Kind == EventToolCallCompleted && event.Tool.Name == memorytools.IngestToolName {
			ingest = event.Tool
		}
	}
	require.NotNil(t, ingest)
	assert.True(t, strings.HasPrefix(ingest.Result, "Memory stored: Allergic to **penicillin**"))
	assert.Equal(t, 1, store.Count())
}

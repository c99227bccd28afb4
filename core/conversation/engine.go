package conversation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leofalp/mammochat/patterns/agent"
	"github.com/leofalp/mammochat/providers/ai"
	"github.com/leofalp/mammochat/providers/observability"
	"github.com/leofalp/mammochat/providers/tool/memorytools"
)

// DefaultHistoryWindow is how many recent user and assistant messages are
// sent to the model each turn.
const DefaultHistoryWindow = 20

// Runner produces the agent side of a turn. *agent.Agent satisfies it.
type Runner interface {
	Run(ctx context.Context, in agent.Input) (*agent.Stream, error)
}

// Engine turns user utterances into event streams. It keeps no
// per-conversation state and can serve many conversations at once.
type Engine struct {
	runner        Runner
	observer      observability.Provider
	historyWindow int
	now           func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHistoryWindow sets how many recent messages reach the model.
func WithHistoryWindow(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.historyWindow = n
		}
	}
}

// WithObserver records a conversation.turn span, turn metrics and logs.
func WithObserver(observer observability.Provider) EngineOption {
	return func(e *Engine) {
		e.observer = observer
	}
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine returns an Engine that delegates turns to runner.
func NewEngine(runner Runner, opts ...EngineOption) *Engine {
	e := &Engine{
		runner:        runner,
		historyWindow: DefaultHistoryWindow,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.observer = observability.OrNop(e.observer)
	return e
}

// TurnOption adjusts a single turn.
type TurnOption func(*turnOptions)

type turnOptions struct {
	spaceIDs  []string
	spacesSet bool
	metadata  map[string]any
}

// WithMemorySpaces overrides the conversation's memory scope for this turn.
func WithMemorySpaces(ids ...string) TurnOption {
	return func(o *turnOptions) {
		o.spaceIDs = slices.Clone(ids)
		o.spacesSet = true
	}
}

// WithTurnMetadata is stored on the user message.
func WithTurnMetadata(metadata map[string]any) TurnOption {
	return func(o *turnOptions) {
		o.metadata = maps.Clone(metadata)
	}
}

// StreamTurn runs one turn. Empty text, a conversation that is not active, or
// a conversation with a turn already running are rejected with an *Error
// before anything is emitted or changed. A broken prompt template is also
// returned here, before the user message is appended.
//
// The returned stream holds the conversation until it ends, the consumer
// stops ranging, or Close is called on a stream that is never iterated.
func (e *Engine) StreamTurn(ctx context.Context, conv *ConversationState, userText string, opts ...TurnOption) (*TurnStream, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return nil, newError(KindInvalidInput, "message text is empty", nil)
	}
	if conv == nil {
		return nil, newError(KindInvalidState, "conversation is nil", nil)
	}
	if !conv.turn.TryLock() {
		return nil, newError(KindConversationBusy, "another turn is running", nil)
	}
	if conv.Status != StatusActive {
		conv.turn.Unlock()
		return nil, newError(KindInvalidState, fmt.Sprintf("conversation is %s", conv.Status), nil)
	}

	var o turnOptions
	for _, opt := range opts {
		opt(&o)
	}
	spaceIDs := conv.MemorySpaceIDs
	if o.spacesSet {
		spaceIDs = o.spaceIDs
	}

	userMessage := ChatMessage{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   text,
		CreatedAt: e.now().UTC(),
		Metadata:  o.metadata,
	}
	history := e.window(conv.Messages, userMessage)

	ctx, span := e.observer.StartSpan(ctx, observability.SpanConversationTurn,
		observability.String(observability.AttrConversationID, conv.ID),
		observability.Int(observability.AttrTurnHistorySize, len(history)),
		observability.Strings(observability.AttrMemorySpaceIDs, spaceIDs),
	)
	ctx = observability.ContextWithSpan(ctx, span)

	agentStream, err := e.runner.Run(ctx, agent.Input{
		Query:   text,
		History: history,
		Scope:   memorytools.Scope{SpaceIDs: slices.Clone(spaceIDs), SessionID: conv.ID},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(observability.StatusError, err.Error())
		span.End()
		conv.turn.Unlock()
		return nil, fmt.Errorf("conversation: %w", err)
	}

	conv.appendMessage(userMessage)

	stream := &TurnStream{release: func() {
		span.End()
		conv.turn.Unlock()
	}}
	stream.iterator = e.turnIterator(ctx, span, conv, agentStream)
	return stream, nil
}

// window returns the prompt history: the last historyWindow user and
// assistant messages, ending with the new user message.
func (e *Engine) window(messages []ChatMessage, next ChatMessage) []ai.Message {
	history := make([]ai.Message, 0, e.historyWindow)
	history = append(history, ai.Message{Role: ai.RoleUser, Content: next.Content})
	for i := len(messages) - 1; i >= 0 && len(history) < e.historyWindow; i-- {
		switch messages[i].Role {
		case RoleUser:
			history = append(history, ai.Message{Role: ai.RoleUser, Content: messages[i].Content})
		case RoleAssistant:
			history = append(history, ai.Message{Role: ai.RoleAssistant, Content: messages[i].Content})
		}
	}
	slices.Reverse(history)
	return history
}

// turnIterator runs with the turn lock held; the TurnStream releases it and
// ends span when the iterator returns.
func (e *Engine) turnIterator(
	ctx context.Context,
	span observability.Span,
	conv *ConversationState,
	agentStream *agent.Stream,
) func(yield func(Event, error) bool) {
	return func(yield func(Event, error) bool) {
		start := time.Now()
		messageID := uuid.NewString()
		seq := 0
		emit := func(event Event, err error) bool {
			event.Seq = seq
			event.MessageID = messageID
			seq++
			return yield(event, err)
		}
		finish := func(outcome string, turnErr *Error) {
			attrs := []observability.Attribute{observability.String(observability.AttrTurnOutcome, outcome)}
			if turnErr != nil {
				attrs = append(attrs, observability.String(observability.AttrErrorKind, string(turnErr.Kind)))
			}
			span.SetAttributes(append(attrs,
				observability.Int(observability.AttrTurnEvents, seq),
				observability.String(observability.AttrConversationStatus, string(conv.Status)),
			)...)
			e.observer.Counter(observability.MetricTurnCount).Add(ctx, 1, attrs...)
			e.observer.Histogram(observability.MetricTurnDuration).Record(ctx, time.Since(start).Seconds(), attrs...)
		}

		if !emit(Event{Kind: EventMessageStart}, nil) {
			e.cancelled(ctx, conv, span)
			finish("cancelled", nil)
			return
		}

		var (
			answer strings.Builder
			steps  []ExecutionStep
		)
		for event, err := range agentStream.Iter() {
			if err != nil {
				if ctx.Err() != nil {
					e.cancelled(ctx, conv, span)
					finish("cancelled", nil)
					return
				}
				turnErr := classify(err)
				conv.appendSteps(steps)
				conv.Status = StatusErrored
				conv.UpdatedAt = e.now().UTC()

				span.RecordError(err)
				span.SetStatus(observability.StatusError, turnErr.Error())
				e.observer.Error(ctx, "turn failed",
					observability.String(observability.AttrConversationID, conv.ID),
					observability.String(observability.AttrErrorKind, string(turnErr.Kind)),
					observability.Error(err),
				)
				finish("error", turnErr)
				emit(Event{Kind: EventError, Err: turnErr}, turnErr)
				return
			}

			var out Event
			switch event.Type {
			case agent.EventChunk:
				answer.WriteString(event.Text)
				out = Event{Kind: EventChunk, Text: event.Text}
			case agent.EventToolCallStarted:
				out = Event{Kind: EventToolCallStarted, Tool: toolInfo(event.Step)}
			case agent.EventToolCallCompleted:
				step := executionStep(event.Step)
				steps = append(steps, step)
				out = Event{Kind: EventToolCallCompleted, Tool: toolInfo(event.Step)}
				out.Tool.Result = step.Result
				out.Tool.Error = step.Error
			default:
				continue
			}
			if !emit(out, nil) {
				e.cancelled(ctx, conv, span)
				finish("cancelled", nil)
				return
			}
		}

		now := e.now().UTC()
		conv.appendMessage(ChatMessage{
			ID:        messageID,
			Role:      RoleAssistant,
			Content:   answer.String(),
			CreatedAt: now,
		})
		conv.appendSteps(steps)
		conv.Status = StatusActive

		span.SetStatus(observability.StatusOK, "")
		e.observer.Debug(ctx, "turn completed",
			observability.String(observability.AttrConversationID, conv.ID),
			observability.Int("turn.steps", len(steps)),
		)
		finish("ok", nil)
		emit(Event{Kind: EventMessageEnd, Text: answer.String()}, nil)
	}
}

// cancelled leaves the conversation active with only the user message added.
func (e *Engine) cancelled(ctx context.Context, conv *ConversationState, span observability.Span) {
	conv.Status = StatusActive
	span.SetAttributes(observability.Bool("conversation.turn.cancelled", true))
	e.observer.Info(ctx, "turn cancelled", observability.String(observability.AttrConversationID, conv.ID))
}

func toolInfo(step *agent.Step) *ToolInfo {
	return &ToolInfo{
		StepID: step.ID,
		CallID: step.CallID,
		Name:   step.Tool,
		Input:  maps.Clone(step.Input),
		Round:  step.Round,
	}
}

func executionStep(step *agent.Step) ExecutionStep {
	out := ExecutionStep{
		ID:        step.ID,
		Tool:      step.Tool,
		Input:     maps.Clone(step.Input),
		Result:    step.Result,
		Duration:  step.Duration,
		Round:     step.Round,
		StartedAt: step.StartedAt,
	}
	if step.Failed() {
		out.Error = &StepError{Kind: Classify(step.Err), Message: step.Err.Error()}
		if errors.Is(step.Err, agent.ErrMemoryUnavailable) {
			out.Error.Marker = agent.ErrMemoryUnavailable.Error()
		}
	}
	return out
}

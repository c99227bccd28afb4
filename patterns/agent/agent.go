package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leofalp/mammochat/providers/ai"
	"github.com/leofalp/mammochat/providers/memory"
	"github.com/leofalp/mammochat/providers/observability"
	"github.com/leofalp/mammochat/providers/tool/memorytools"
)

// Defaults for the agent limits.
const (
	DefaultMaxToolRounds     = 8
	DefaultMaxParallelTools  = 4
	DefaultMemorySearchLimit = memorytools.DefaultSearchLimit
)

// Completer is the model gateway the agent drives. *client.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, messages []ai.Message, tools []ai.ToolDescription, systemPrompt string) (*ai.ChatStream, error)
}

// Agent runs the memory-first protocol and the bounded tool-call loop for one
// turn at a time. It holds no per-turn state and is safe for concurrent use.
type Agent struct {
	model     Completer
	toolset   *memorytools.Toolset
	tools     []ai.ToolDescription
	templates TemplateSource
	observer  observability.Provider

	maxToolRounds     int
	maxParallelTools  int
	memorySearchLimit int
	memoryPolicy      MemoryFailurePolicy
}

// Option configures an Agent.
type Option func(*Agent)

// WithTemplateSource sets where the system prompt template comes from.
func WithTemplateSource(source TemplateSource) Option {
	return func(a *Agent) {
		if source != nil {
			a.templates = source
		}
	}
}

// WithTemplate is shorthand for WithTemplateSource(StaticTemplate(template)).
func WithTemplate(template string) Option {
	return WithTemplateSource(StaticTemplate(template))
}

// WithMaxToolRounds bounds how many rounds of tool calls one turn may run.
func WithMaxToolRounds(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxToolRounds = n
		}
	}
}

// WithMaxParallelTools bounds how many calls of one round run at once.
func WithMaxParallelTools(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxParallelTools = n
		}
	}
}

// WithMemorySearchLimit sets how many episodes the memory-first lookup asks for.
func WithMemorySearchLimit(n int) Option {
	return func(a *Agent) {
		if n > 0 && n <= memorytools.MaxSearchLimit {
			a.memorySearchLimit = n
		}
	}
}

// WithMemoryFailurePolicy sets how memory gateway errors affect a turn.
func WithMemoryFailurePolicy(policy MemoryFailurePolicy) Option {
	return func(a *Agent) {
		a.memoryPolicy = policy
	}
}

// WithObserver enables span events, metrics and logs for tool calls.
func WithObserver(observer observability.Provider) Option {
	return func(a *Agent) {
		a.observer = observer
	}
}

// WithTools overrides the tool descriptors advertised to the model. Only the
// memory tools can be executed; other names fail as unknown tools.
func WithTools(tools []ai.ToolDescription) Option {
	return func(a *Agent) {
		a.tools = tools
	}
}

// New builds an Agent that talks to model and stores memories in mem.
func New(model Completer, mem memory.Provider, opts ...Option) *Agent {
	a := &Agent{
		model:             model,
		toolset:           memorytools.New(mem),
		tools:             memorytools.Descriptions(),
		templates:         StaticTemplate(DefaultTemplate),
		maxToolRounds:     DefaultMaxToolRounds,
		maxParallelTools:  DefaultMaxParallelTools,
		memorySearchLimit: DefaultMemorySearchLimit,
		memoryPolicy:      DegradeOnMemoryFailure,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.observer = observability.OrNop(a.observer)
	return a
}

// MemoryPolicy returns the configured memory failure policy.
func (a *Agent) MemoryPolicy() MemoryFailurePolicy { return a.memoryPolicy }

// Input is one turn handed to the agent.
type Input struct {
	// Query is the user's utterance. It is also the memory-first search query.
	Query string
	// History is the prompt context, oldest first, ending with the user's
	// message. It must not contain system messages.
	History []ai.Message
	Scope   memorytools.Scope
}

// Run compiles the system prompt and returns the turn as a lazy stream.
// Template and tool list problems are returned here, before any network call.
func (a *Agent) Run(ctx context.Context, in Input) (*Stream, error) {
	template, err := a.templates.Template()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	prompt, err := CompilePrompt(template, a.tools)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, fmt.Errorf("agent: empty query: %w", memory.ErrInvalidRequest)
	}

	return &Stream{iterator: func(yield func(Event, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		t := &turn{
			agent:    a,
			prompt:   prompt,
			query:    query,
			scope:    in.Scope,
			messages: slices.Clone(in.History),
			yield:    yield,
		}
		if err := t.run(ctx); err != nil && !errors.Is(err, errStopped) {
			yield(Event{}, err)
		}
	}}, nil
}

// errStopped is returned internally when the consumer stops ranging.
var errStopped = errors.New("agent: consumer stopped")

type turn struct {
	agent    *Agent
	prompt   *Prompt
	query    string
	scope    memorytools.Scope
	messages []ai.Message
	yield    func(Event, error) bool

	// answer is every text delta of the turn, across rounds.
	answer strings.Builder
}

func (t *turn) emit(event Event) error {
	if !t.yield(event, nil) {
		return errStopped
	}
	return nil
}

func (t *turn) run(ctx context.Context) error {
	memoryContext, err := t.prefetch(ctx)
	if err != nil {
		return err
	}
	systemPrompt := t.prompt.Render(memoryContext)

	for round := 1; ; round++ {
		observability.AddSpanEvent(ctx, observability.EventModelRoundStart,
			observability.Int(observability.AttrToolRound, round),
			observability.Int(observability.AttrRequestMessagesCount, len(t.messages)),
		)

		text, calls, err := t.complete(ctx, round, systemPrompt)
		if err != nil {
			return err
		}

		if len(calls) == 0 {
			if strings.TrimSpace(t.answer.String()) == "" {
				return fmt.Errorf("%w: %w", ai.ErrModel, ErrEmptyReply)
			}
			return nil
		}

		if round > t.agent.maxToolRounds {
			return fmt.Errorf("%w: %d rounds", ErrToolLoopExceeded, t.agent.maxToolRounds)
		}

		t.messages = append(t.messages, ai.Message{Role: ai.RoleAssistant, Content: text, ToolCalls: calls})
		results, err := t.runTools(ctx, round, calls)
		if err != nil {
			return err
		}
		t.messages = append(t.messages, results...)
	}
}

// prefetch is the memory-first lookup. It always produces a memory context
// unless the policy is FailOnMemoryFailure and the lookup failed.
func (t *turn) prefetch(ctx context.Context) (string, error) {
	a := t.agent
	step := &Step{
		ID:        uuid.NewString(),
		CallID:    "prefetch",
		Tool:      memorytools.SearchToolName,
		Input:     memorytools.Input(memorytools.SearchCall{Query: t.query, Limit: a.memorySearchLimit}),
		Round:     0,
		StartedAt: time.Now(),
	}

	observability.AddSpanEvent(ctx, observability.EventMemoryPrefetchStart,
		observability.String(observability.AttrMemoryQuery, t.query),
		observability.Strings(observability.AttrMemorySpaceIDs, t.scope.SpaceIDs),
	)
	if err := t.emit(Event{Type: EventToolCallStarted, Round: 0, Step: cloneStep(step)}); err != nil {
		return "", err
	}

	memories, err := a.toolset.Search(ctx, t.query, a.memorySearchLimit, t.scope)
	step.Duration = time.Since(step.StartedAt)

	degraded := false
	switch {
	case err == nil:
		step.Result = fmt.Sprintf("%d memories found", len(memories))
	case ctx.Err() != nil:
		return "", ctx.Err()
	case a.memoryPolicy == FailOnMemoryFailure:
		step.Err = err
	default:
		degraded = true
		step.Err = fmt.Errorf("%w: %w", ErrMemoryUnavailable, err)
		a.observer.Counter(observability.MetricMemoryDegradedCount).Add(ctx, 1)
		a.observer.Warn(ctx, "memory lookup failed, continuing without memory context", observability.Error(err))
	}

	observability.AddSpanEvent(ctx, observability.EventMemoryPrefetchEnd,
		observability.Int(observability.AttrMemoryEpisodes, len(memories)),
		observability.Bool("memory.degraded", degraded),
	)
	t.recordToolCall(ctx, step)
	if err := t.emit(Event{Type: EventToolCallCompleted, Round: 0, Step: step}); err != nil {
		return "", err
	}

	if err != nil && !degraded {
		return "", err
	}
	return renderMemory(memories, degraded), nil
}

// complete runs one model call, forwarding text deltas as they arrive.
func (t *turn) complete(ctx context.Context, round int, systemPrompt string) (string, []ai.ToolCall, error) {
	stream, err := t.agent.model.Complete(ctx, t.messages, t.agent.tools, systemPrompt)
	if err != nil {
		return "", nil, err
	}

	var (
		text strings.Builder
		acc  ai.ToolCallAccumulator
	)
	for event, err := range stream.Iter() {
		if err != nil {
			return "", nil, err
		}
		switch event.Type {
		case ai.StreamEventContent:
			if event.Content == "" {
				continue
			}
			text.WriteString(event.Content)
			t.answer.WriteString(event.Content)
			if err := t.emit(Event{Type: EventChunk, Round: round, Text: event.Content}); err != nil {
				return "", nil, err
			}
		case ai.StreamEventToolCall:
			acc.Add(event.ToolCall)
		}
	}

	calls := acc.ToolCalls()
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("call_%d_%d", round, i)
		}
	}
	return text.String(), calls, nil
}

func (t *turn) recordToolCall(ctx context.Context, step *Step) {
	status := "ok"
	if step.Failed() {
		status = "error"
	}
	t.agent.observer.Counter(observability.MetricToolCallCount).Add(ctx, 1,
		observability.String(observability.AttrToolName, step.Tool),
		observability.String(observability.AttrStatus, status),
	)
}

func cloneStep(step *Step) *Step {
	clone := *step
	return &clone
}

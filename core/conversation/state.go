package conversation

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Retention limits on what a conversation keeps. Appending past a limit drops
// the oldest entries, so ExecutionHistory is a bounded recent audit trail and
// not a complete record of a long conversation. The model sees only the
// engine's history window.
const (
	MaxMessages       = 1000
	MaxExecutionSteps = 500
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusErrored   Status = "errored"
)

// Role is the author of a ChatMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one utterance. It is not modified once appended.
type ChatMessage struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StepError describes why a tool invocation failed. Marker is set to
// "memory_unavailable" when a memory-first lookup failed and the turn went
// on without memory context.
type StepError struct {
	Kind    ErrorKind `json:"kind"`
	Marker  string    `json:"marker,omitempty"`
	Message string    `json:"message"`
}

// ExecutionStep is the audit record of one tool invocation.
type ExecutionStep struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Input     map[string]any `json:"input,omitempty"`
	Result    string         `json:"result,omitempty"`
	Error     *StepError     `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Round     int            `json:"round"` // 0 is the memory-first lookup
	StartedAt time.Time      `json:"started_at"`
}

// ConversationState is one dialogue. The engine mutates it only while holding
// its turn lock; callers should touch it between turns only.
type ConversationState struct {
	ID               string          `json:"id"`
	Status           Status          `json:"status"`
	Messages         []ChatMessage   `json:"messages"`
	ExecutionHistory []ExecutionStep `json:"execution_history"`
	MemorySpaceIDs   []string        `json:"memory_space_ids,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	turn sync.Mutex
}

// StateOption configures a new conversation.
type StateOption func(*ConversationState)

// WithID sets the conversation identifier instead of generating one.
func WithID(id string) StateOption {
	return func(c *ConversationState) {
		if id != "" {
			c.ID = id
		}
	}
}

// WithSpaceIDs scopes the conversation's memory lookups.
func WithSpaceIDs(ids ...string) StateOption {
	return func(c *ConversationState) {
		c.MemorySpaceIDs = slices.Clone(ids)
	}
}

// New starts an empty, active conversation.
func New(opts ...StateOption) *ConversationState {
	now := time.Now().UTC()
	c := &ConversationState{
		ID:        uuid.NewString(),
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reset clears messages and steps and makes the conversation active again.
// It fails with ConversationBusy while a turn is running.
func (c *ConversationState) Reset() error {
	return c.between(func() {
		c.Messages = nil
		c.ExecutionHistory = nil
		c.Status = StatusActive
	})
}

// Reopen makes an errored or completed conversation active, keeping history.
func (c *ConversationState) Reopen() error {
	return c.between(func() {
		c.Status = StatusActive
	})
}

// Complete marks the conversation finished. No turn can run until Reopen or Reset.
func (c *ConversationState) Complete() error {
	return c.between(func() {
		c.Status = StatusCompleted
	})
}

// SetMemorySpaces replaces the memory scope. It is rejected while a turn runs.
func (c *ConversationState) SetMemorySpaces(ids ...string) error {
	return c.between(func() {
		c.MemorySpaceIDs = slices.Clone(ids)
	})
}

func (c *ConversationState) between(mutate func()) error {
	if !c.turn.TryLock() {
		return newError(KindConversationBusy, "a turn is running", nil)
	}
	defer c.turn.Unlock()
	mutate()
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// LastAssistantMessage returns a copy of the most recent assistant message,
// or nil if there is none.
func (c *ConversationState) LastAssistantMessage() *ChatMessage {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			message := copyMessage(c.Messages[i])
			return &message
		}
	}
	return nil
}

// Snapshot returns a deep copy that shares nothing with c. Take it between
// turns.
func (c *ConversationState) Snapshot() *ConversationState {
	snapshot := &ConversationState{
		ID:             c.ID,
		Status:         c.Status,
		MemorySpaceIDs: slices.Clone(c.MemorySpaceIDs),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
	if c.Messages != nil {
		snapshot.Messages = make([]ChatMessage, len(c.Messages))
		for i, message := range c.Messages {
			snapshot.Messages[i] = copyMessage(message)
		}
	}
	if c.ExecutionHistory != nil {
		snapshot.ExecutionHistory = make([]ExecutionStep, len(c.ExecutionHistory))
		for i, step := range c.ExecutionHistory {
			snapshot.ExecutionHistory[i] = copyStep(step)
		}
	}
	return snapshot
}

func (c *ConversationState) appendMessage(message ChatMessage) {
	c.Messages = append(c.Messages, message)
	if overflow := len(c.Messages) - MaxMessages; overflow > 0 {
		c.Messages = slices.Delete(c.Messages, 0, overflow)
	}
	c.UpdatedAt = message.CreatedAt
}

func (c *ConversationState) appendSteps(steps []ExecutionStep) {
	if len(steps) == 0 {
		return
	}
	c.ExecutionHistory = append(c.ExecutionHistory, steps...)
	if overflow := len(c.ExecutionHistory) - MaxExecutionSteps; overflow > 0 {
		c.ExecutionHistory = slices.Delete(c.ExecutionHistory, 0, overflow)
	}
}

func copyMessage(message ChatMessage) ChatMessage {
	message.Metadata = maps.Clone(message.Metadata)
	return message
}

func copyStep(step ExecutionStep) ExecutionStep {
	step.Input = maps.Clone(step.Input)
	if step.Error != nil {
		stepErr := *step.Error
		step.Error = &stepErr
	}
	return step
}

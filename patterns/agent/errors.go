package agent

import "errors"

var (
	// ErrToolLoopExceeded ends a turn whose model kept requesting tools past
	// the configured round limit.
	ErrToolLoopExceeded = errors.New("agent: tool round limit exceeded")

	// ErrEmptyReply is returned when the model ends a turn without tool calls
	// and no round of the turn produced any non-blank text.
	ErrEmptyReply = errors.New("agent: turn ended without answer text")

	// ErrInvalidTemplate is returned before any network call when the system
	// prompt template is empty, lacks {tools}, or names an unknown placeholder.
	ErrInvalidTemplate = errors.New("agent: invalid prompt template")

	// ErrInvalidTools is returned before any network call when the tool list
	// is empty or has unnamed or duplicated entries.
	ErrInvalidTools = errors.New("agent: invalid tool list")

	// ErrMemoryUnavailable marks a memory-first lookup that failed and was
	// degraded to an empty memory context.
	ErrMemoryUnavailable = errors.New("memory_unavailable")
)

// MemoryFailurePolicy decides what a memory gateway error does to a turn.
type MemoryFailurePolicy int

const (
	// DegradeOnMemoryFailure records the failure, continues without memory
	// context, and reports failed model-requested calls back to the model.
	DegradeOnMemoryFailure MemoryFailurePolicy = iota
	// FailOnMemoryFailure ends the turn on the first memory gateway error.
	FailOnMemoryFailure
)

func (p MemoryFailurePolicy) String() string {
	switch p {
	case DegradeOnMemoryFailure:
		return "degrade"
	case FailOnMemoryFailure:
		return "fail"
	default:
		return "unknown"
	}
}

package conversation

// EventKind identifies a turn event.
type EventKind string

const (
	EventMessageStart      EventKind = "MESSAGE_START"
	EventToolCallStarted   EventKind = "TOOL_CALL_STARTED"
	EventToolCallCompleted EventKind = "TOOL_CALL_COMPLETED"
	EventChunk             EventKind = "CHUNK"
	EventMessageEnd        EventKind = "MESSAGE_END"
	EventError             EventKind = "ERROR"
)

// Terminal reports whether k ends a turn.
func (k EventKind) Terminal() bool {
	return k == EventMessageEnd || k == EventError
}

// ToolInfo describes a tool call on TOOL_CALL_* events. Result and Error are
// set on TOOL_CALL_COMPLETED only.
type ToolInfo struct {
	StepID string         `json:"step_id"`
	CallID string         `json:"call_id"`
	Name   string         `json:"name"`
	Input  map[string]any `json:"input,omitempty"`
	Round  int            `json:"round"`
	Result string         `json:"result,omitempty"`
	Error  *StepError     `json:"error,omitempty"`
}

// Event is one element of a turn's stream. Seq is its 0-based position. Text
// is the delta on CHUNK and the full answer on MESSAGE_END. MessageID names
// the assistant message the turn produces and is the same on every event.
type Event struct {
	Kind      EventKind `json:"kind"`
	Seq       int       `json:"seq"`
	Text      string    `json:"text,omitempty"`
	Tool      *ToolInfo `json:"tool,omitempty"`
	Err       *Error    `json:"-"`
	MessageID string    `json:"message_id"`
}

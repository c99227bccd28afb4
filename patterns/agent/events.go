package agent

import (
	"iter"
	"strings"
	"time"
)

// EventType identifies what an Event reports.
type EventType string

const (
	// EventToolCallStarted is emitted before a tool call is dispatched. Calls
	// of one round are announced in request order before any of them runs.
	EventToolCallStarted EventType = "tool_call_started"

	// EventToolCallCompleted carries the finished Step. Completions of one
	// round are emitted in request order once every call has settled.
	EventToolCallCompleted EventType = "tool_call_completed"

	// EventChunk carries a text delta from the model.
	EventChunk EventType = "chunk"
)

// Event is one observable step of a turn.
type Event struct {
	Type  EventType
	Round int    // 0 for the memory-first lookup, then 1-based model rounds
	Text  string // EventChunk only
	Step  *Step  // tool events only
}

// Step records one tool invocation. On EventToolCallStarted only the
// identifying fields are set; the completed event carries the same ID with
// Result or Err filled in.
type Step struct {
	ID        string
	CallID    string
	Tool      string
	Input     map[string]any
	Result    string
	Err       error
	Round     int
	StartedAt time.Time
	Duration  time.Duration
}

// Failed reports whether the call ended with an error.
func (s *Step) Failed() bool { return s.Err != nil }

// Prefetch reports whether this is the memory-first lookup.
func (s *Step) Prefetch() bool { return s.Round == 0 }

// Result is a completed turn.
type Result struct {
	Text   string // concatenation of every text delta of the turn
	Steps  []Step
	Rounds int
}

// Stream is a lazy agent turn. Nothing touches the network until it is
// iterated. A stream can be consumed only once.
type Stream struct {
	iterator iter.Seq2[Event, error]
}

// Iter returns the event iterator. A non-nil error ends the turn; breaking
// out of the loop cancels outstanding gateway calls.
func (s *Stream) Iter() iter.Seq2[Event, error] {
	return s.iterator
}

// Collect drains the stream. On error the steps completed so far are
// returned together with the error.
func (s *Stream) Collect() (*Result, error) {
	result := &Result{}
	var text strings.Builder

	for event, err := range s.iterator {
		if err != nil {
			result.Text = text.String()
			return result, err
		}
		if event.Round > result.Rounds {
			result.Rounds = event.Round
		}
		switch event.Type {
		case EventChunk:
			text.WriteString(event.Text)
		case EventToolCallCompleted:
			result.Steps = append(result.Steps, *event.Step)
		}
	}

	result.Text = text.String()
	return result, nil
}

package conversation

import (
	"errors"
	"iter"
	"sync"
	"sync/atomic"
)

// ErrStreamConsumed is yielded when a TurnStream is iterated a second time.
var ErrStreamConsumed = errors.New("conversation: turn stream already consumed")

// TurnStream is the lazy event sequence of one turn. It can be iterated once.
type TurnStream struct {
	iterator func(yield func(Event, error) bool)
	release  func()

	started atomic.Bool
	once    sync.Once
}

// Iter yields the turn's events. MESSAGE_START comes first and MESSAGE_END or
// ERROR last; the ERROR event is yielded together with its *Error. Breaking
// out of the loop cancels the turn: the conversation stays active with only
// the user message added.
func (s *TurnStream) Iter() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if s.started.Swap(true) {
			yield(Event{}, ErrStreamConsumed)
			return
		}
		defer s.done()
		s.iterator(yield)
	}
}

// Collect drains the stream and returns every event. When the turn failed the
// events end with ERROR and the error is its *Error.
func (s *TurnStream) Collect() ([]Event, error) {
	var events []Event
	for event, err := range s.Iter() {
		if err != nil {
			if event.Kind == EventError {
				events = append(events, event)
			}
			return events, err
		}
		events = append(events, event)
	}
	return events, nil
}

// Close releases the conversation of a stream that will not be iterated. It
// does nothing once iteration has started.
func (s *TurnStream) Close() {
	if s.started.Swap(true) {
		return
	}
	s.done()
}

func (s *TurnStream) done() {
	s.once.Do(s.release)
}

package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/leofalp/mammochat/patterns/agent"
	"github.com/leofalp/mammochat/providers/ai"
	"github.com/leofalp/mammochat/providers/memory"
	"github.com/leofalp/mammochat/providers/tool/memorytools"
)

// ErrorKind classifies why a turn was rejected or failed.
type ErrorKind string

const (
	KindInvalidInput     ErrorKind = "InvalidInput"
	KindInvalidState     ErrorKind = "InvalidState"
	KindConversationBusy ErrorKind = "ConversationBusy"
	KindAuthentication   ErrorKind = "AuthenticationError"
	KindTransport        ErrorKind = "TransportError"
	KindToolInput        ErrorKind = "ToolInputError"
	KindToolLoopExceeded ErrorKind = "ToolLoopExceeded"
	KindModel            ErrorKind = "ModelError"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidState     = errors.New("invalid conversation state")
	ErrConversationBusy = errors.New("conversation busy")
	ErrAuthentication   = errors.New("authentication error")
	ErrTransport        = errors.New("transport error")
	ErrToolInput        = errors.New("tool input error")
	ErrToolLoopExceeded = errors.New("tool loop exceeded")
	ErrModel            = errors.New("model error")
)

var sentinels = map[ErrorKind]error{
	KindInvalidInput:     ErrInvalidInput,
	KindInvalidState:     ErrInvalidState,
	KindConversationBusy: ErrConversationBusy,
	KindAuthentication:   ErrAuthentication,
	KindTransport:        ErrTransport,
	KindToolInput:        ErrToolInput,
	KindToolLoopExceeded: ErrToolLoopExceeded,
	KindModel:            ErrModel,
}

// Retryable reports whether retrying the whole turn may succeed.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTransport, KindConversationBusy:
		return true
	default:
		return false
	}
}

// Error is a classified turn failure. The ERROR event carries one, and the
// synchronous rejections of StreamTurn return one.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Kind]
	return ok && target == sentinel
}

// Classify maps a gateway or agent error to an ErrorKind.
func Classify(err error) ErrorKind {
	var turnErr *Error
	if errors.As(err, &turnErr) {
		return turnErr.Kind
	}

	var inputErr *memorytools.InputError
	switch {
	case errors.Is(err, ai.ErrAuthentication), errors.Is(err, memory.ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ai.ErrTransport),
		errors.Is(err, memory.ErrTransport),
		errors.Is(err, memory.ErrMalformedResponse),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTransport
	case errors.Is(err, agent.ErrToolLoopExceeded):
		return KindToolLoopExceeded
	case errors.As(err, &inputErr), errors.Is(err, memory.ErrInvalidRequest):
		return KindToolInput
	default:
		return KindModel
	}
}

// classify wraps err in an *Error unless it already is one.
func classify(err error) *Error {
	var turnErr *Error
	if errors.As(err, &turnErr) {
		return turnErr
	}
	return newError(Classify(err), "", err)
}

package memorytools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leofalp/mammochat/core/parse"
)

// Tool names advertised to the model.
const (
	SearchToolName = "memory_search"
	IngestToolName = "memory_ingest"
)

const (
	// DefaultSearchLimit applies when the model omits limit or sends 0.
	DefaultSearchLimit = 5
	// MaxSearchLimit is the largest limit the model may request.
	MaxSearchLimit = 100
)

// Call is one validated tool invocation. The set is closed: only SearchCall
// and IngestCall implement it.
type Call interface {
	ToolName() string
	isCall()
}

// SearchCall looks up long-term memory.
type SearchCall struct {
	Query string `json:"query" jsonschema:"required,minLength=1" jsonschema_description:"What to look for in the user's long-term memory."`
	Limit int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100,default=5" jsonschema_description:"Maximum number of memories to return."`
}

// IngestCall stores a note in long-term memory.
type IngestCall struct {
	Note    string `json:"note" jsonschema:"required,minLength=1" jsonschema_description:"The information to remember, written as a standalone note."`
	SpaceID string `json:"space_id,omitempty" jsonschema_description:"Optional memory space to store the note in."`
}

func (SearchCall) ToolName() string { return SearchToolName }
func (IngestCall) ToolName() string { return IngestToolName }
func (SearchCall) isCall()          {}
func (IngestCall) isCall()          {}

// InputError reports a tool call that could not be turned into a Call. It
// fails that call alone; the model receives it as a failed tool result.
type InputError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid call to %q: %s: %v", e.Tool, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid call to %q: %s", e.Tool, e.Reason)
}

func (e *InputError) Unwrap() error { return e.Err }

// ErrUnknownTool is wrapped by the InputError returned for names outside the set.
var ErrUnknownTool = errors.New("unknown tool")

// Parse validates a model-requested call. Slightly broken JSON is repaired
// first; empty arguments are treated as {}.
func Parse(name, rawArgs string) (Call, error) {
	switch name {
	case SearchToolName:
		call, err := parse.ParseArgs[SearchCall](rawArgs)
		if err != nil {
			return nil, &InputError{Tool: name, Reason: "arguments are not valid JSON", Err: err}
		}
		call.Query = strings.TrimSpace(call.Query)
		if call.Query == "" {
			return nil, &InputError{Tool: name, Reason: "query is required"}
		}
		if call.Limit == 0 {
			call.Limit = DefaultSearchLimit
		}
		if call.Limit < 1 || call.Limit > MaxSearchLimit {
			return nil, &InputError{Tool: name, Reason: fmt.Sprintf("limit must be between 1 and %d, got %d", MaxSearchLimit, call.Limit)}
		}
		return call, nil

	case IngestToolName:
		call, err := parse.ParseArgs[IngestCall](rawArgs)
		if err != nil {
			return nil, &InputError{Tool: name, Reason: "arguments are not valid JSON", Err: err}
		}
		if strings.TrimSpace(call.Note) == "" {
			return nil, &InputError{Tool: name, Reason: "note is required"}
		}
		call.SpaceID = strings.TrimSpace(call.SpaceID)
		return call, nil

	default:
		return nil, &InputError{Tool: name, Reason: "not one of memory_search, memory_ingest", Err: ErrUnknownTool}
	}
}

// Input returns the call's arguments as a map, for execution records.
func Input(call Call) map[string]any {
	switch c := call.(type) {
	case SearchCall:
		return map[string]any{"query": c.Query, "limit": c.Limit}
	case IngestCall:
		input := map[string]any{"note": c.Note}
		if c.SpaceID != "" {
			input["space_id"] = c.SpaceID
		}
		return input
	default:
		return nil
	}
}

package memorytools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/leofalp/mammochat/providers/ai"
	"github.com/leofalp/mammochat/providers/memory"
	"github.com/leofalp/mammochat/providers/tool"
)

const (
	// IngestSource tags episodes stored by the assistant.
	IngestSource = "chat_agent"

	ingestPreviewRunes = 50
)

const (
	searchDescription = "Search the user's long-term memory for episodes related to the query. Returns the matching memory texts, most relevant first."
	ingestDescription = "Store a new note in the user's long-term memory. Use it for durable facts the user shares about themselves or their care."
)

// Scope is the per-turn context a call runs in.
type Scope struct {
	SpaceIDs  []string
	SessionID string
}

// Result is what a call produced. Text is fed back to the model; Summary is a
// short line for execution records.
type Result struct {
	Text    string
	Summary string
}

type searchOutput struct {
	Memories []string `json:"memories"`
	Total    int      `json:"total"`
}

// Toolset executes calls against one memory gateway.
type Toolset struct {
	search *tool.Tool[searchInput, searchOutput]
	ingest *tool.Tool[ingestInput, string]
}

type searchInput struct {
	SearchCall
	Scope Scope
}

type ingestInput struct {
	IngestCall
	Scope Scope
}

// New returns a Toolset backed by provider.
func New(provider memory.Provider) *Toolset {
	return &Toolset{
		search: tool.NewTool(SearchToolName, func(ctx context.Context, in searchInput) (searchOutput, error) {
			result, err := provider.Search(ctx, memory.SearchRequest{
				Query:    in.Query,
				SpaceIDs: in.Scope.SpaceIDs,
				Limit:    in.Limit,
			})
			if err != nil {
				return searchOutput{}, err
			}
			return searchOutput{Memories: result.Bodies(), Total: result.Total}, nil
		}),
		ingest: tool.NewTool(IngestToolName, func(ctx context.Context, in ingestInput) (string, error) {
			note := NormalizeNote(in.Note)
			_, err := provider.Ingest(ctx, memory.IngestRequest{
				Text:      note,
				SpaceID:   in.SpaceID,
				SessionID: in.Scope.SessionID,
				Source:    IngestSource,
			})
			if err != nil {
				return "", err
			}
			return IngestConfirmation(note), nil
		}),
	}
}

// Execute runs call. Gateway errors are returned unchanged so callers can
// classify them with errors.Is.
func (t *Toolset) Execute(ctx context.Context, call Call, scope Scope) (Result, error) {
	switch c := call.(type) {
	case SearchCall:
		out, err := t.search.Run(ctx, searchInput{SearchCall: c, Scope: scope})
		if err != nil {
			return Result{}, err
		}
		data, err := json.Marshal(out.Memories)
		if err != nil {
			return Result{}, fmt.Errorf("encode memories: %w", err)
		}
		return Result{Text: string(data), Summary: fmt.Sprintf("%d memories found", len(out.Memories))}, nil

	case IngestCall:
		confirmation, err := t.ingest.Run(ctx, ingestInput{IngestCall: c, Scope: scope})
		if err != nil {
			return Result{}, err
		}
		return Result{Text: confirmation, Summary: confirmation}, nil

	default:
		return Result{}, &InputError{Tool: fmt.Sprintf("%T", call), Reason: "unsupported call", Err: ErrUnknownTool}
	}
}

// Search is the memory-first lookup done before the first model call. It
// returns the raw result so the caller can render it into the prompt.
func (t *Toolset) Search(ctx context.Context, query string, limit int, scope Scope) ([]string, error) {
	out, err := t.search.Run(ctx, searchInput{SearchCall: SearchCall{Query: query, Limit: limit}, Scope: scope})
	if err != nil {
		return nil, err
	}
	return out.Memories, nil
}

// Descriptions returns the descriptors of both tools, search first.
func Descriptions() []ai.ToolDescription {
	return []ai.ToolDescription{
		{Name: SearchToolName, Description: searchDescription, Parameters: tool.GenerateSchema[SearchCall]()},
		{Name: IngestToolName, Description: ingestDescription, Parameters: tool.GenerateSchema[IngestCall]()},
	}
}

// IngestConfirmation is the text returned to the model after a note is stored.
func IngestConfirmation(note string) string {
	runes := []rune(note)
	if len(runes) > ingestPreviewRunes {
		runes = runes[:ingestPreviewRunes]
	}
	return "Memory stored: " + string(runes) + "..."
}

var htmlTag = regexp.MustCompile(`(?i)<(p|br|div|ul|ol|li|b|i|strong|em|h[1-6]|a|span|table|tr|td)[\s>/]`)

// NormalizeNote trims the note and converts HTML fragments to Markdown so
// stored memories are plain text. Notes without HTML tags are left as they are.
func NormalizeNote(note string) string {
	note = strings.TrimSpace(note)
	if !htmlTag.MatchString(note) {
		return note
	}
	markdown, err := htmltomarkdown.ConvertString(note)
	if err != nil || strings.TrimSpace(markdown) == "" {
		return note
	}
	return strings.TrimSpace(markdown)
}

package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultSearchLimit is used when a SearchRequest leaves Limit at zero.
	DefaultSearchLimit = 10

	// MaxSearchResults caps the episodes kept in one SearchResult.
	MaxSearchResults = 100
)

// Provider is the memory gateway. Implementations are built with explicit
// credentials or connections; none of them retry.
type Provider interface {
	// Search returns the episodes most relevant to the query, newest first for
	// backends without ranking.
	Search(ctx context.Context, request SearchRequest) (*SearchResult, error)

	// Ingest stores a new episode and returns it with its assigned ID.
	Ingest(ctx context.Context, request IngestRequest) (*Episode, error)

	// ListSpaces returns the spaces visible to the credential.
	ListSpaces(ctx context.Context) ([]Space, error)
}

// SearchRequest scopes a memory search. An empty SpaceIDs searches every space.
type SearchRequest struct {
	Query              string   `json:"query"`
	SpaceIDs           []string `json:"space_ids,omitempty"`
	Limit              int      `json:"limit,omitempty"`
	IncludeInvalidated bool     `json:"include_invalidated,omitempty"`
}

// Normalize validates the request and applies the default and maximum limit.
func (r SearchRequest) Normalize() (SearchRequest, error) {
	r.Query = strings.TrimSpace(r.Query)
	if r.Query == "" {
		return r, fmt.Errorf("%w: empty search query", ErrInvalidRequest)
	}
	if r.Limit < 0 {
		return r, fmt.Errorf("%w: negative limit %d", ErrInvalidRequest, r.Limit)
	}
	if r.Limit == 0 {
		r.Limit = DefaultSearchLimit
	}
	if r.Limit > MaxSearchResults {
		r.Limit = MaxSearchResults
	}
	return r, nil
}

// IngestRequest is one episode to store.
type IngestRequest struct {
	Text      string `json:"episode_body"`
	SpaceID   string `json:"space_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

// Validate rejects requests with no text.
func (r IngestRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: empty episode text", ErrInvalidRequest)
	}
	return nil
}

// Episode is one stored memory.
type Episode struct {
	ID          string         `json:"episode_id"`
	Body        string         `json:"body"`
	SpaceID     string         `json:"space_id,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	Source      string         `json:"source,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitzero"`
	Invalidated bool           `json:"invalidated,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SearchResult holds at most MaxSearchResults episodes. Total is the count
// reported by the backend and may exceed len(Episodes).
type SearchResult struct {
	Episodes []Episode `json:"episodes"`
	Total    int       `json:"total"`
}

// NewSearchResult builds a capped result. A negative total means "unknown" and
// is replaced with the number of episodes received.
func NewSearchResult(episodes []Episode, total int) *SearchResult {
	if total < 0 {
		total = len(episodes)
	}
	if len(episodes) > MaxSearchResults {
		episodes = episodes[:MaxSearchResults]
	}
	if episodes == nil {
		episodes = []Episode{}
	}
	return &SearchResult{Episodes: episodes, Total: total}
}

// Bodies returns the episode texts in result order.
func (r *SearchResult) Bodies() []string {
	if r == nil {
		return nil
	}
	bodies := make([]string, 0, len(r.Episodes))
	for _, episode := range r.Episodes {
		bodies = append(bodies, episode.Body)
	}
	return bodies
}

// Space groups episodes.
type Space struct {
	ID          string    `json:"space_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

package inmemory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leofalp/mammochat/providers/memory"
	"github.com/leofalp/mammochat/providers/observability"
)

const backendName = "inmemory"

// Store is a concurrency-safe, slice-backed episode store.
type Store struct {
	mu       sync.RWMutex
	episodes []memory.Episode
	spaces   []memory.Space
	now      func() time.Time
}

var _ memory.Provider = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithSpaces seeds the spaces returned by ListSpaces.
func WithSpaces(spaces ...memory.Space) Option {
	return func(s *Store) {
		s.spaces = append(s.spaces, spaces...)
	}
}

// WithEpisodes seeds stored episodes. Missing IDs are generated.
func WithEpisodes(episodes ...memory.Episode) Option {
	return func(s *Store) {
		for _, episode := range episodes {
			if episode.ID == "" {
				episode.ID = uuid.NewString()
			}
			s.episodes = append(s.episodes, episode)
		}
	}
}

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		episodes: []memory.Episode{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search matches the whole query or any of its terms case-insensitively.
// Episodes matching more terms come first; ties are broken newest first.
func (s *Store) Search(ctx context.Context, request memory.SearchRequest) (*memory.SearchResult, error) {
	request, err := request.Normalize()
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(request.Query)
	terms := queryTerms(query)

	type scored struct {
		episode memory.Episode
		score   int
	}

	s.mu.RLock()
	matches := make([]scored, 0)
	for _, episode := range s.episodes {
		if episode.Invalidated && !request.IncludeInvalidated {
			continue
		}
		if len(request.SpaceIDs) > 0 && !slices.Contains(request.SpaceIDs, episode.SpaceID) {
			continue
		}
		if score := matchScore(strings.ToLower(episode.Body), query, terms); score > 0 {
			matches = append(matches, scored{episode: copyEpisode(episode), score: score})
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matches, func(a, b scored) int {
		if a.score != b.score {
			return b.score - a.score
		}
		return b.episode.CreatedAt.Compare(a.episode.CreatedAt)
	})

	total := len(matches)
	if len(matches) > request.Limit {
		matches = matches[:request.Limit]
	}

	episodes := make([]memory.Episode, 0, len(matches))
	for _, m := range matches {
		episodes = append(episodes, m.episode)
	}

	observability.AddSpanEvent(ctx, observability.EventMemorySearch,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.Int(observability.AttrMemoryEpisodes, len(episodes)),
	)

	return memory.NewSearchResult(episodes, total), nil
}

// Ingest stores a copy of the request as a new episode.
func (s *Store) Ingest(ctx context.Context, request memory.IngestRequest) (*memory.Episode, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	episode := memory.Episode{
		ID:        uuid.NewString(),
		Body:      request.Text,
		SpaceID:   request.SpaceID,
		SessionID: request.SessionID,
		Source:    request.Source,
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	s.episodes = append(s.episodes, episode)
	total := len(s.episodes)
	s.mu.Unlock()

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventMemoryIngest,
			observability.String(observability.AttrMemoryBackend, backendName),
			observability.Int(observability.AttrMemoryTextLength, len(request.Text)),
		)
		span.SetAttributes(observability.Int(observability.AttrMemoryEpisodes, total))
	}

	return &episode, nil
}

// ListSpaces returns a copy of the seeded and added spaces.
func (s *Store) ListSpaces(_ context.Context) ([]memory.Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]memory.Space, len(s.spaces))
	copy(out, s.spaces)
	return out, nil
}

// AddSpace registers a space. A missing ID is generated.
func (s *Store) AddSpace(space memory.Space) memory.Space {
	if space.ID == "" {
		space.ID = uuid.NewString()
	}
	if space.CreatedAt.IsZero() {
		space.CreatedAt = s.now().UTC()
	}
	s.mu.Lock()
	s.spaces = append(s.spaces, space)
	s.mu.Unlock()
	return space
}

// Invalidate hides an episode from searches that do not ask for invalidated
// episodes.
func (s *Store) Invalidate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.episodes {
		if s.episodes[i].ID == id {
			s.episodes[i].Invalidated = true
			return nil
		}
	}
	return fmt.Errorf("inmemory: episode %q not found", id)
}

// Count returns the number of stored episodes, invalidated ones included.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.episodes)
}

func queryTerms(query string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !(r == '-' || r == '_' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r > 127)
	})
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		if len([]rune(field)) >= 3 && !slices.Contains(terms, field) {
			terms = append(terms, field)
		}
	}
	return terms
}

// matchScore counts matched terms; a body containing the whole query scores
// above any partial match.
func matchScore(body, query string, terms []string) int {
	score := 0
	for _, term := range terms {
		if strings.Contains(body, term) {
			score++
		}
	}
	if strings.Contains(body, query) {
		score += len(terms) + 1
	}
	return score
}

func copyEpisode(episode memory.Episode) memory.Episode {
	episode.Metadata = maps.Clone(episode.Metadata)
	return episode
}

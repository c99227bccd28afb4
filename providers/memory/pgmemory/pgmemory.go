package pgmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leofalp/mammochat/providers/memory"
	"github.com/leofalp/mammochat/providers/observability"
)

const (
	defaultEpisodesTable = "mammochat_episodes"
	defaultSpacesTable   = "mammochat_spaces"

	backendName = "pgmemory"
)

// Querier abstracts the pgx methods the store needs. *pgxpool.Pool, *pgx.Conn
// and pgx.Tx all satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements [memory.Provider] on PostgreSQL. It holds no state besides
// the connection, so one Store can serve every conversation.
type Store struct {
	db            Querier
	episodesTable string
	spacesTable   string
}

var _ memory.Provider = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTableNames overrides the default table names. Names are sanitized with
// pgx.Identifier because they are interpolated into SQL.
func WithTableNames(episodes, spaces string) Option {
	return func(s *Store) {
		if episodes != "" {
			s.episodesTable = pgx.Identifier{episodes}.Sanitize()
		}
		if spaces != "" {
			s.spacesTable = pgx.Identifier{spaces}.Sanitize()
		}
	}
}

// New returns a Store on db. Call EnsureSchema once before first use unless
// the tables are managed by migrations.
func New(db Querier, opts ...Option) *Store {
	s := &Store{
		db:            db,
		episodesTable: defaultEpisodesTable,
		spacesTable:   defaultSpacesTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search is a case-insensitive substring match over episode bodies, newest
// first. Total counts every match, not just the returned page.
func (s *Store) Search(ctx context.Context, request memory.SearchRequest) (*memory.SearchResult, error) {
	request, err := request.Normalize()
	if err != nil {
		return nil, err
	}

	spaceIDs := request.SpaceIDs
	if spaceIDs == nil {
		spaceIDs = []string{}
	}

	query := fmt.Sprintf(`SELECT id, body, space_id, session_id, source, metadata, invalidated, created_at, COUNT(*) OVER () AS total
		FROM %s
		WHERE body ILIKE '%%' || $1 || '%%' ESCAPE '\'
		  AND (cardinality($2::text[]) = 0 OR space_id = ANY($2::text[]))
		  AND ($3 OR NOT invalidated)
		ORDER BY created_at DESC, seq DESC
		LIMIT $4`, s.episodesTable)

	rows, err := s.db.Query(ctx, query, escapeLike(request.Query), spaceIDs, request.IncludeInvalidated, request.Limit)
	if err != nil {
		return nil, fmt.Errorf("%w: pgmemory: search: %w", memory.ErrTransport, err)
	}
	defer rows.Close()

	episodes := make([]memory.Episode, 0, request.Limit)
	total := 0
	for rows.Next() {
		var (
			episode      memory.Episode
			metadataJSON []byte
		)
		if err := rows.Scan(
			&episode.ID, &episode.Body, &episode.SpaceID, &episode.SessionID, &episode.Source,
			&metadataJSON, &episode.Invalidated, &episode.CreatedAt, &total,
		); err != nil {
			return nil, fmt.Errorf("%w: pgmemory: scan episode: %w", memory.ErrMalformedResponse, err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &episode.Metadata); err != nil {
				return nil, fmt.Errorf("%w: pgmemory: episode metadata: %w", memory.ErrMalformedResponse, err)
			}
		}
		episodes = append(episodes, episode)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: pgmemory: iterate episodes: %w", memory.ErrTransport, err)
	}

	observability.AddSpanEvent(ctx, observability.EventMemorySearch,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.Int(observability.AttrMemoryEpisodes, len(episodes)),
	)

	return memory.NewSearchResult(episodes, total), nil
}

// Ingest inserts a new episode and returns it with the database timestamp.
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
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, body, space_id, session_id, source)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`, s.episodesTable)

	err := s.db.QueryRow(ctx, query, episode.ID, episode.Body, episode.SpaceID, episode.SessionID, episode.Source).
		Scan(&episode.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: pgmemory: ingest: %w", memory.ErrTransport, err)
	}

	observability.AddSpanEvent(ctx, observability.EventMemoryIngest,
		observability.String(observability.AttrMemoryBackend, backendName),
		observability.Int(observability.AttrMemoryTextLength, len(request.Text)),
	)

	return &episode, nil
}

// ListSpaces returns every space ordered by name.
func (s *Store) ListSpaces(ctx context.Context) ([]memory.Space, error) {
	query := fmt.Sprintf(`SELECT id, name, description, created_at FROM %s ORDER BY name ASC`, s.spacesTable)

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: pgmemory: list spaces: %w", memory.ErrTransport, err)
	}
	defer rows.Close()

	spaces := []memory.Space{}
	for rows.Next() {
		var space memory.Space
		if err := rows.Scan(&space.ID, &space.Name, &space.Description, &space.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: pgmemory: scan space: %w", memory.ErrMalformedResponse, err)
		}
		spaces = append(spaces, space)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: pgmemory: iterate spaces: %w", memory.ErrTransport, err)
	}

	observability.AddSpanEvent(ctx, observability.EventMemoryListSpaces,
		observability.String(observability.AttrMemoryBackend, backendName),
	)
	return spaces, nil
}

// CreateSpace inserts a space, generating an ID when none is given. An
// existing ID keeps its row and updates name and description.
func (s *Store) CreateSpace(ctx context.Context, space memory.Space) (memory.Space, error) {
	if strings.TrimSpace(space.Name) == "" {
		return memory.Space{}, fmt.Errorf("%w: space name is required", memory.ErrInvalidRequest)
	}
	if space.ID == "" {
		space.ID = uuid.NewString()
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, name, description) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description
		RETURNING created_at`, s.spacesTable)

	if err := s.db.QueryRow(ctx, query, space.ID, space.Name, space.Description).Scan(&space.CreatedAt); err != nil {
		return memory.Space{}, fmt.Errorf("%w: pgmemory: create space: %w", memory.ErrTransport, err)
	}
	return space, nil
}

// Invalidate marks an episode as superseded. It returns pgx.ErrNoRows when the
// episode does not exist.
func (s *Store) Invalidate(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET invalidated = TRUE WHERE id = $1`, s.episodesTable)

	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%w: pgmemory: invalidate: %w", memory.ErrTransport, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgmemory: invalidate %q: %w", id, pgx.ErrNoRows)
	}
	return nil
}

// Ping checks the connection with a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("%w: pgmemory: ping: %w", memory.ErrTransport, err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

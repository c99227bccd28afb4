package pgmemory

import (
	"context"
	"fmt"
	"strings"
)

// seq gives a stable order for episodes inserted within the same microsecond.
const createEpisodesTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    id          TEXT PRIMARY KEY,
    seq         BIGSERIAL NOT NULL,
    body        TEXT NOT NULL,
    space_id    TEXT NOT NULL DEFAULT '',
    session_id  TEXT NOT NULL DEFAULT '',
    source      TEXT NOT NULL DEFAULT '',
    metadata    JSONB,
    invalidated BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const createSpacesTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const createSpaceCreatedIndexSQL = `CREATE INDEX IF NOT EXISTS idx_%s_space_created
    ON %s (space_id, created_at DESC)`

// EnsureSchema creates both tables and the search index if they are missing.
// It is meant for development; production schemas belong to migrations.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createEpisodesTableSQL, s.episodesTable)); err != nil {
		return fmt.Errorf("pgmemory: create episodes table: %w", err)
	}

	if _, err := s.db.Exec(ctx, fmt.Sprintf(createSpacesTableSQL, s.spacesTable)); err != nil {
		return fmt.Errorf("pgmemory: create spaces table: %w", err)
	}

	indexName := indexSafeName(s.episodesTable)
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createSpaceCreatedIndexSQL, indexName, s.episodesTable)); err != nil {
		return fmt.Errorf("pgmemory: create space_created index: %w", err)
	}

	return nil
}

// indexSafeName strips the quotes pgx.Identifier adds so the table name can be
// embedded in an index name.
func indexSafeName(table string) string {
	return strings.ReplaceAll(table, `"`, "")
}

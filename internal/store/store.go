// Package store persists conversation snapshots in a local SQLite database
// so a session can be resumed after the process exits.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"github.com/leofalp/mammochat/core/conversation"
)

const titleLength = 60

var (
	// ErrNotFound is returned by Load and Delete when no row has the id.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalid is returned for a conversation without an id, or a stored
	// row whose state does not belong to the id it was loaded by.
	ErrInvalid = errors.New("invalid conversation")
)

// Summary is one row of List.
type Summary struct {
	ID        string
	Status    conversation.Status
	Title     string
	Messages  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store saves and loads conversations. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path, creating parent directories.
// The path ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database. The Store must not be used afterwards.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes a snapshot of conv, replacing any earlier one with the same ID.
// Call it between turns.
func (s *Store) Save(ctx context.Context, conv *conversation.ConversationState) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalid)
	}
	snapshot := conv.Snapshot()
	state, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", snapshot.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, status, title, messages, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			title = excluded.title,
			messages = excluded.messages,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		snapshot.ID, string(snapshot.Status), title(snapshot), len(snapshot.Messages), string(state),
		snapshot.CreatedAt.UnixMilli(), snapshot.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", snapshot.ID, err)
	}
	return nil
}

// Load returns the saved conversation. The result shares nothing with the
// store and can be passed straight to the engine.
func (s *Store) Load(ctx context.Context, id string) (*conversation.ConversationState, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM conversations WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", id, err)
	}

	conv := &conversation.ConversationState{}
	if err := json.Unmarshal([]byte(state), conv); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", id, err)
	}
	if conv.ID != id {
		return nil, fmt.Errorf("%w: stored id %q does not match %q", ErrInvalid, conv.ID, id)
	}
	return conv, nil
}

// List returns the most recently updated conversations first. limit <= 0
// means no limit.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, title, messages, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			summary          Summary
			status           string
			created, updated int64
		)
		if err := rows.Scan(&summary.ID, &status, &summary.Title, &summary.Messages, &created, &updated); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		summary.Status = conversation.Status(status)
		summary.CreatedAt = time.UnixMilli(created).UTC()
		summary.UpdatedAt = time.UnixMilli(updated).UTC()
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return summaries, nil
}

// Delete removes a conversation. Deleting an unknown ID returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// title is the first user message, shortened for listings.
func title(conv *conversation.ConversationState) string {
	for _, message := range conv.Messages {
		if message.Role != conversation.RoleUser {
			continue
		}
		text := strings.Join(strings.Fields(message.Content), " ")
		if utf8.RuneCountInString(text) <= titleLength {
			return text
		}
		runes := []rune(text)
		return string(runes[:titleLength-1]) + "…"
	}
	return ""
}

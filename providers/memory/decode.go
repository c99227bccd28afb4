package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

// The remote service is not consistent about field names, so decoding goes
// through these wire shapes and takes the first non-empty alternative.

type episodeWire struct {
	EpisodeID   json.RawMessage `json:"episode_id"`
	ID          json.RawMessage `json:"id"`
	UUID        json.RawMessage `json:"uuid"`
	Body        string          `json:"body"`
	Content     string          `json:"content"`
	EpisodeBody string          `json:"episode_body"`
	SpaceID     string          `json:"space_id"`
	SessionID   string          `json:"session_id"`
	Source      string          `json:"source"`
	CreatedAt   string          `json:"created_at"`
	Invalidated bool            `json:"invalidated"`
	Metadata    map[string]any  `json:"metadata"`
}

// UnmarshalJSON accepts episode_id|id|uuid for the ID and
// body|content|episode_body for the text. IDs may be strings or numbers.
func (e *Episode) UnmarshalJSON(data []byte) error {
	var wire episodeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*e = Episode{
		ID:          firstNonEmpty(rawID(wire.EpisodeID), rawID(wire.ID), rawID(wire.UUID)),
		Body:        firstNonEmpty(wire.Body, wire.Content, wire.EpisodeBody),
		SpaceID:     wire.SpaceID,
		SessionID:   wire.SessionID,
		Source:      wire.Source,
		CreatedAt:   parseTime(wire.CreatedAt),
		Invalidated: wire.Invalidated,
		Metadata:    wire.Metadata,
	}
	return nil
}

type spaceWire struct {
	SpaceID     json.RawMessage `json:"space_id"`
	ID          json.RawMessage `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	CreatedAt   string          `json:"created_at"`
}

// UnmarshalJSON accepts space_id|id for the ID.
func (s *Space) UnmarshalJSON(data []byte) error {
	var wire spaceWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*s = Space{
		ID:          firstNonEmpty(rawID(wire.SpaceID), rawID(wire.ID)),
		Name:        wire.Name,
		Description: wire.Description,
		CreatedAt:   parseTime(wire.CreatedAt),
	}
	return nil
}

type searchResultWire struct {
	Episodes []Episode `json:"episodes"`
	Results  []Episode `json:"results"`
	Total    *int      `json:"total"`
}

// UnmarshalJSON reads episodes (or results), defaults a missing total to the
// number of episodes and applies the MaxSearchResults cap.
func (r *SearchResult) UnmarshalJSON(data []byte) error {
	var wire searchResultWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	episodes := wire.Episodes
	if episodes == nil {
		episodes = wire.Results
	}
	total := -1
	if wire.Total != nil {
		total = *wire.Total
	}

	*r = *NewSearchResult(episodes, total)
	return nil
}

// DecodeSpaces accepts either a bare array or an object wrapping it under
// "spaces" or "data".
func DecodeSpaces(data []byte) ([]Space, error) {
	var spaces []Space
	if err := json.Unmarshal(data, &spaces); err == nil {
		return spaces, nil
	}

	var wrapped struct {
		Spaces []Space `json:"spaces"`
		Data   []Space `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode spaces: %w", err)
	}
	if wrapped.Spaces != nil {
		return wrapped.Spaces, nil
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	return []Space{}, nil
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leofalp/mammochat/core/conversation"
	"github.com/leofalp/mammochat/core/health"
	"github.com/leofalp/mammochat/internal/store"
	"github.com/leofalp/mammochat/providers/memory"
)

var errUnknownCommand = errors.New("unknown command, type /help")

const helpText = `Commands:
  /reset             start over, keeping the conversation id
  /spaces [id ...]   show memory spaces, or scope this conversation to the given ids
  /health            check the model and memory services
  /history           show this conversation
  /sessions          list saved conversations
  /quit              exit`

// session is one interactive conversation. It turns input lines into turns
// or commands and saves the conversation after each.
type session struct {
	engine *conversation.Engine
	memory memory.Provider
	health *health.Service
	store  *store.Store
	conv   *conversation.ConversationState
	render *renderer
}

// handle runs one input line. quit is true when the user asked to exit.
func (s *session) handle(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if strings.HasPrefix(line, "/") {
		return s.command(ctx, line)
	}
	return false, s.turn(ctx, line)
}

func (s *session) turn(ctx context.Context, text string) error {
	stream, err := s.engine.StreamTurn(ctx, s.conv, text)
	if err != nil {
		return err
	}
	for event, err := range stream.Iter() {
		if err != nil && event.Kind != conversation.EventError {
			return err
		}
		s.render.Event(event)
	}
	if ctx.Err() != nil {
		s.render.Info("Cancelled.")
	}
	if s.conv.Status == conversation.StatusErrored {
		// Errors are reported on the stream; the conversation stays usable.
		if err := s.conv.Reopen(); err != nil {
			return err
		}
	}
	return s.save(context.WithoutCancel(ctx))
}

func (s *session) save(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.Save(ctx, s.conv)
}

func (s *session) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "/quit", "/exit", "/q":
		return true, nil
	case "/help", "/?":
		s.render.Info("%s", helpText)
	case "/reset":
		if err := s.conv.Reset(); err != nil {
			return false, err
		}
		s.render.Info("Conversation cleared.")
		return false, s.save(ctx)
	case "/spaces":
		return false, s.spaces(ctx, args)
	case "/health":
		s.render.Health(s.health.Run(ctx))
	case "/history":
		s.render.History(s.conv)
	case "/sessions":
		return false, s.sessions(ctx)
	default:
		return false, fmt.Errorf("%s: %w", name, errUnknownCommand)
	}
	return false, nil
}

func (s *session) spaces(ctx context.Context, ids []string) error {
	if len(ids) > 0 {
		if err := s.conv.SetMemorySpaces(ids...); err != nil {
			return err
		}
		s.render.Info("Memory scoped to %s.", strings.Join(ids, ", "))
		return s.save(ctx)
	}

	spaces, err := s.memory.ListSpaces(ctx)
	if err != nil {
		return fmt.Errorf("list spaces: %w", err)
	}
	if len(spaces) == 0 {
		s.render.Info("No memory spaces.")
	}
	for _, space := range spaces {
		s.render.Info("%s  %s", space.ID, space.Name)
	}
	if len(s.conv.MemorySpaceIDs) == 0 {
		s.render.Info("This conversation searches all spaces.")
	} else {
		s.render.Info("This conversation searches %s.", strings.Join(s.conv.MemorySpaceIDs, ", "))
	}
	return nil
}

func (s *session) sessions(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	summaries, err := s.store.List(ctx, 20)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		s.render.Info("No saved conversations.")
	}
	for _, summary := range summaries {
		marker := " "
		if summary.ID == s.conv.ID {
			marker = "*"
		}
		s.render.Info("%s %s  %s  %3d msgs  %s", marker, summary.ID,
			summary.UpdatedAt.Local().Format("2006-01-02 15:04"), summary.Messages, summary.Title)
	}
	return nil
}

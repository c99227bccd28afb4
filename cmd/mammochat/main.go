// Command mammochat is an interactive chat with a memory-first agent.
//
//	mammochat [-config mammochat.toml] [-resume <conversation-id>]
//
// Settings come from the config file, .env and the environment; see
// internal/config. Ctrl+C cancels a running answer, Ctrl+D or /quit exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/leofalp/mammochat/core/conversation"
	"github.com/leofalp/mammochat/internal/config"
	"github.com/leofalp/mammochat/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML config file (default $MAMMOCHAT_CONFIG or ./mammochat.toml)")
		resume     = flag.String("resume", "", "resume a saved conversation by id")
		spaces     = flag.String("spaces", "", "comma-separated memory space ids for a new conversation")
		check      = flag.Bool("health", false, "check the model and memory services and exit")
	)
	flag.Parse()

	if err := run(context.Background(), *configPath, *resume, *spaces, *check); err != nil {
		fmt.Fprintln(os.Stderr, "mammochat:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, resume, spaces string, check bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := newRenderer(os.Stdout)
	if check {
		report := a.health.Run(ctx)
		out.Health(report)
		if !report.Healthy() {
			return errors.New("unhealthy")
		}
		return nil
	}

	conv, err := openConversation(ctx, a.store, resume, spaces, cfg.Memory.SpaceIDs)
	if err != nil {
		return err
	}

	s := &session{
		engine: a.engine,
		memory: a.memory,
		health: a.health,
		store:  a.store,
		conv:   conv,
		render: out,
	}
	return repl(ctx, s, cfg.Store.HistoryFile)
}

func openConversation(ctx context.Context, st *store.Store, resume, spaces string, defaults []string) (*conversation.ConversationState, error) {
	if resume != "" {
		conv, err := st.Load(ctx, resume)
		if err != nil {
			return nil, err
		}
		if conv.Status != conversation.StatusActive {
			if err := conv.Reopen(); err != nil {
				return nil, err
			}
		}
		return conv, nil
	}

	ids := defaults
	if spaces != "" {
		ids = nil
		for _, id := range strings.Split(spaces, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return conversation.New(conversation.WithSpaceIDs(ids...)), nil
}

func repl(ctx context.Context, s *session, historyFile string) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			_, _ = line.ReadHistory(f)
			_ = f.Close()
		}
		defer saveHistory(line, historyFile)
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		s.render.Info("MammoChat · conversation %s · /help for commands", s.conv.ID)
		if n := len(s.conv.Messages); n > 0 {
			s.render.Info("Resumed with %d messages.", n)
		}
	}
	prompt := "you › "

	for {
		input, err := line.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(os.Stdout)
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		turnCtx, cancel := interruptible(ctx)
		quit, err := s.handle(turnCtx, input)
		cancel()
		if err != nil {
			s.render.Error(err)
		}
		if quit {
			return nil
		}
	}
}

// interruptible returns a context cancelled by Ctrl+C. liner owns Ctrl+C
// while prompting, so the signal only arrives while a turn runs.
func interruptible(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(signals)
		cancel()
	}
}

func saveHistory(line *liner.State, path string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}

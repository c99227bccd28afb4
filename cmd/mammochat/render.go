package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/leofalp/mammochat/core/conversation"
	"github.com/leofalp/mammochat/core/health"
)

const inputPreview = 60

type styles struct {
	prompt    lipgloss.Style
	assistant lipgloss.Style
	tool      lipgloss.Style
	ok        lipgloss.Style
	failed    lipgloss.Style
	muted     lipgloss.Style
	title     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		prompt:    r.NewStyle().Foreground(lipgloss.Color("13")).Bold(true),
		assistant: r.NewStyle().Foreground(lipgloss.Color("14")).Bold(true),
		tool:      r.NewStyle().Foreground(lipgloss.Color("8")),
		ok:        r.NewStyle().Foreground(lipgloss.Color("2")),
		failed:    r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		muted:     r.NewStyle().Faint(true),
		title:     r.NewStyle().Bold(true).Underline(true),
	}
}

// renderer prints turn events as they arrive. Colours are dropped when out is
// not a terminal.
type renderer struct {
	out      io.Writer
	styles   styles
	midLine  bool
	answered bool
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, styles: newStyles(lipgloss.NewRenderer(out))}
}

func (r *renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func (r *renderer) breakLine() {
	if r.midLine {
		r.printf("\n")
		r.midLine = false
	}
}

// Event renders one turn event.
func (r *renderer) Event(event conversation.Event) {
	switch event.Kind {
	case conversation.EventMessageStart:
		r.midLine, r.answered = false, false
	case conversation.EventToolCallStarted:
		r.breakLine()
		r.printf("%s\n", r.styles.tool.Render(fmt.Sprintf("  → %s(%s)", event.Tool.Name, formatInput(event.Tool.Input))))
	case conversation.EventToolCallCompleted:
		r.breakLine()
		r.toolCompleted(event.Tool)
	case conversation.EventChunk:
		if !r.answered {
			r.breakLine()
			r.printf("%s ", r.styles.assistant.Render("MammoChat ›"))
			r.answered = true
		}
		r.printf("%s", event.Text)
		r.midLine = !strings.HasSuffix(event.Text, "\n")
	case conversation.EventMessageEnd:
		r.breakLine()
	case conversation.EventError:
		r.breakLine()
		if event.Err != nil {
			r.Error(event.Err)
		}
	}
}

func (r *renderer) toolCompleted(tool *conversation.ToolInfo) {
	if tool.Error == nil {
		r.printf("%s %s\n", r.styles.ok.Render("  ✓"), r.styles.tool.Render(tool.Name+": "+firstLine(tool.Result)))
		return
	}
	label := string(tool.Error.Kind)
	if tool.Error.Marker != "" {
		label = tool.Error.Marker
	}
	r.printf("%s %s\n", r.styles.failed.Render("  ✗"), r.styles.tool.Render(fmt.Sprintf("%s: %s (%s)", tool.Name, tool.Error.Message, label)))
}

// Error renders a turn or command failure.
func (r *renderer) Error(err error) {
	if err == nil {
		return
	}
	message := err.Error()
	var convErr *conversation.Error
	if errors.As(err, &convErr) && convErr.Kind.Retryable() {
		message += " (retryable, send the message again)"
	}
	r.printf("%s %s\n", r.styles.failed.Render("error:"), message)
}

// Info prints a muted status line.
func (r *renderer) Info(format string, args ...any) {
	r.breakLine()
	r.printf("%s\n", r.styles.muted.Render(fmt.Sprintf(format, args...)))
}

// Health prints one line per check.
func (r *renderer) Health(report health.Report) {
	r.printf("%s\n", r.styles.title.Render("Health: "+string(report.Status)))
	for _, check := range report.Checks {
		mark := r.styles.ok.Render("✓")
		if check.Status != health.StatusHealthy {
			mark = r.styles.failed.Render("✗")
		}
		r.printf("  %s %-12s %s %s\n", mark, check.Name, check.Message, r.styles.muted.Render(check.Duration.Round(time.Millisecond).String()))
	}
}

// History prints the conversation transcript with a step count per turn.
func (r *renderer) History(conv *conversation.ConversationState) {
	if len(conv.Messages) == 0 {
		r.Info("No messages yet.")
		return
	}
	r.printf("%s\n", r.styles.title.Render(fmt.Sprintf("Conversation %s (%s)", conv.ID, conv.Status)))
	for _, message := range conv.Messages {
		who := r.styles.prompt.Render("you")
		if message.Role == conversation.RoleAssistant {
			who = r.styles.assistant.Render("MammoChat")
		}
		r.printf("%s %s %s\n", r.styles.muted.Render(message.CreatedAt.Local().Format("15:04")), who, firstLine(message.Content))
	}
	r.Info("%d tool calls recorded", len(conv.ExecutionHistory))
}

func formatInput(input map[string]any) string {
	keys := make([]string, 0, len(input))
	for key := range input {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := fmt.Sprint(input[key])
		if s, ok := input[key].(string); ok {
			value = fmt.Sprintf("%q", truncate(s, inputPreview))
		}
		parts = append(parts, key+"="+value)
	}
	return strings.Join(parts, ", ")
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return truncate(line, 100)
}

func truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n-1]) + "…"
}

package slogobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Handler is a slog.Handler that renders records in one of the Format layouts.
// Attribute keys are emitted in sorted order so output is stable across runs.
type Handler struct {
	format Format
	level  slog.Level
	output io.Writer
	styles *levelStyles
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Format Format
	Level  slog.Level
	Output io.Writer // defaults to os.Stderr
	Colors bool      // enabled automatically when Output is a terminal
}

// NewHandler creates a Handler from opts; a nil opts yields compact INFO output on stderr.
func NewHandler(opts *HandlerOptions) *Handler {
	if opts == nil {
		opts = &HandlerOptions{}
	}
	output := opts.Output
	if output == nil {
		output = os.Stderr
	}
	format := opts.Format
	if format == "" {
		format = FormatCompact
	}

	colors := opts.Colors
	if !colors && format != FormatJSON {
		if f, ok := output.(*os.File); ok {
			colors = term.IsTerminal(int(f.Fd()))
		}
	}

	handler := &Handler{
		format: format,
		level:  opts.Level,
		output: output,
		mu:     &sync.Mutex{},
	}
	if colors && format != FormatJSON {
		handler.styles = newLevelStyles(output)
	}
	return handler
}

// Enabled reports whether records at level are written.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle renders and writes r.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var line []byte
	var err error

	switch h.format {
	case FormatPretty:
		line = h.renderPretty(r)
	case FormatJSON:
		line, err = h.renderJSON(r)
	default:
		line = h.renderCompact(r)
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.output.Write(line)
	return err
}

// WithAttrs returns a Handler that always includes attrs.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(slices.Clone(h.attrs), attrs...)
	return &clone
}

// WithGroup returns a Handler that prefixes later keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clone(h.groups), name)
	return &clone
}

func (h *Handler) renderCompact(r slog.Record) []byte {
	var b strings.Builder
	b.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	b.WriteByte(' ')
	b.WriteString(h.styleLevel(r.Level, fmt.Sprintf("%5s", levelString(r.Level))))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	attrs := h.collectAttrs(r)
	if len(attrs) > 0 {
		encoded, err := json.Marshal(attrs)
		if err != nil {
			encoded = []byte(`{"slogobs.error":"unencodable attributes"}`)
		}
		b.WriteString(" → ")
		b.Write(encoded)
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func (h *Handler) renderPretty(r slog.Record) []byte {
	var b strings.Builder
	b.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	b.WriteString(" | ")
	b.WriteString(h.styleLevel(r.Level, fmt.Sprintf("%-5s", levelString(r.Level))))
	b.WriteString(" | ")
	b.WriteString(r.Message)
	b.WriteByte('\n')

	attrs := h.collectAttrs(r)
	for _, key := range sortedKeys(attrs) {
		fmt.Fprintf(&b, "    • %s = %v\n", key, attrs[key])
	}
	return []byte(b.String())
}

func (h *Handler) renderJSON(r slog.Record) ([]byte, error) {
	data := h.collectAttrs(r)
	data["time"] = r.Time.Format("2006-01-02T15:04:05.000Z07:00")
	data["level"] = levelString(r.Level)
	data["msg"] = r.Message

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(encoded, '\n'), nil
}

// collectAttrs merges handler-level and record-level attributes, applying
// group prefixes. encoding/json sorts map keys, which keeps compact and JSON
// output deterministic.
func (h *Handler) collectAttrs(r slog.Record) map[string]any {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, attr := range h.attrs {
		h.addAttr(attrs, attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		h.addAttr(attrs, attr)
		return true
	})
	return attrs
}

func (h *Handler) addAttr(attrs map[string]any, attr slog.Attr) {
	key := attr.Key
	if len(h.groups) > 0 {
		key = strings.Join(h.groups, ".") + "." + key
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindDuration {
		attrs[key] = value.Duration().String()
		return
	}
	attrs[key] = value.Any()
}

func (h *Handler) styleLevel(level slog.Level, label string) string {
	if h.styles == nil {
		return label
	}
	return h.styles.forLevel(level).Render(label)
}

func sortedKeys(attrs map[string]any) []string {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

type levelStyles struct {
	trace, debug, info, warn, err lipgloss.Style
}

func newLevelStyles(output io.Writer) *levelStyles {
	renderer := lipgloss.NewRenderer(output)
	return &levelStyles{
		trace: renderer.NewStyle().Foreground(lipgloss.Color("8")),
		debug: renderer.NewStyle().Foreground(lipgloss.Color("4")),
		info:  renderer.NewStyle().Foreground(lipgloss.Color("2")),
		warn:  renderer.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		err:   renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
}

func (s *levelStyles) forLevel(level slog.Level) lipgloss.Style {
	switch {
	case level < slog.LevelDebug:
		return s.trace
	case level < slog.LevelInfo:
		return s.debug
	case level < slog.LevelWarn:
		return s.info
	case level < slog.LevelError:
		return s.warn
	default:
		return s.err
	}
}

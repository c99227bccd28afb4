package slogobs

import (
	"log/slog"
	"os"
	"strings"
)

// Format selects how the Handler renders records.
type Format string

const (
	// FormatCompact is a single line with JSON-encoded attributes:
	//	2026-03-02 10:40:35 DEBUG turn started → {"conversation.id":"c1"}
	FormatCompact Format = "compact"

	// FormatPretty prints one attribute per line under the message.
	FormatPretty Format = "pretty"

	// FormatJSON is one JSON object per record, for log aggregation.
	FormatJSON Format = "json"
)

// LevelTrace sits below slog.LevelDebug and is used by Observer.Trace.
const LevelTrace = slog.LevelDebug - 4

// ParseFormat maps a case-insensitive name to a Format, defaulting to FormatCompact.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pretty":
		return FormatPretty
	case "json":
		return FormatJSON
	default:
		return FormatCompact
	}
}

// String returns the format name.
func (f Format) String() string { return string(f) }

// ParseLogLevel maps trace, debug, info, warn(ing) and error to a slog.Level.
// Unknown values map to slog.LevelInfo.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FormatFromEnv reads MAMMOCHAT_LOG_FORMAT, then LOG_FORMAT.
func FormatFromEnv() Format {
	return ParseFormat(firstEnv("MAMMOCHAT_LOG_FORMAT", "LOG_FORMAT"))
}

// LevelFromEnv reads MAMMOCHAT_LOG_LEVEL, then LOG_LEVEL.
func LevelFromEnv() slog.Level {
	return ParseLogLevel(firstEnv("MAMMOCHAT_LOG_LEVEL", "LOG_LEVEL"))
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

// levelString returns the fixed label printed for level.
func levelString(level slog.Level) string {
	switch {
	case level < slog.LevelDebug:
		return "TRACE"
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}
